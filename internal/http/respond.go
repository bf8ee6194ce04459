package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"receipts/internal/core"
	"receipts/internal/docstore"
	"receipts/internal/export"
	"receipts/internal/identity"
	"receipts/internal/imagehost"
	"receipts/internal/ledger"
	applog "receipts/internal/log"
	"receipts/internal/session"
)

type errorBody struct {
	Error string `json:"error"`
}

// requestError is a malformed request: bad JSON, a bad path value.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{msg: msg} }

var validationErrors = []error{
	core.ErrInvalidKind,
	core.ErrZeroDate,
	core.ErrInvalidDate,
	core.ErrInvalidAmount,
	core.ErrEmptyDescription,
	core.ErrTooManyImages,
	core.ErrImagesOnExpense,
	core.ErrEmptyProjectName,
	core.ErrEmptyClient,
	core.ErrEmptyAddress,
	core.ErrEmptyMobile,
	core.ErrInvalidYearMonth,
	core.ErrInvalidFilter,
	core.ErrUnknownProject,
	identity.ErrInvalidEmail,
	identity.ErrWeakPassword,
	export.ErrUnsupportedImage,
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity
		}
	}
	switch {
	case errors.Is(err, identity.ErrEmailInUse):
		return http.StatusConflict
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, ledger.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, export.ErrNoReceipts), errors.Is(err, imagehost.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, docstore.ErrRemote), errors.Is(err, imagehost.ErrUpload):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrSubscribe):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends {"error": ...}. Server-side failures are logged and their
// details withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, status,
			applog.FieldError, err)
		msg = http.StatusText(status)
		if status == http.StatusServiceUnavailable {
			msg = "your records are not available right now, try again shortly"
		}
	}
	writeJSON(w, status, errorBody{Error: msg})
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return badRequest("request body too large")
		}
		return badRequest("malformed JSON body: " + err.Error())
	}
	return nil
}
