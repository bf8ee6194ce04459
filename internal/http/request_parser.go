package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"receipts/internal/core"
	"receipts/internal/ledger"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// projectRequest is the body of POST and PUT /api/projects. Image is a new
// photo, base64 in JSON; ImageID keeps the current one.
type projectRequest struct {
	Name    string `json:"name"`
	Client  string `json:"client"`
	Address string `json:"address"`
	Mobile  string `json:"mobile"`
	ImageID string `json:"image_id"`
	Image   []byte `json:"image"`
}

// entryRequest is the body of POST and PUT /api/entries. Price accepts a
// JSON number or a decimal string with either separator.
type entryRequest struct {
	Kind          string      `json:"kind"`
	Date          string      `json:"date"`
	Price         json.Number `json:"price"`
	ProjectID     string      `json:"project_id"`
	Description   string      `json:"description"`
	ReceiptImages []string    `json:"receipt_images"`
	NewImages     [][]byte    `json:"new_images"`
}

// UnmarshalJSON lets price arrive quoted as well.
func (e *entryRequest) UnmarshalJSON(data []byte) error {
	type plain entryRequest
	aux := struct {
		*plain
		Price json.RawMessage `json:"price"`
	}{plain: (*plain)(e)}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&aux); err != nil {
		return err
	}
	raw := strings.TrimSpace(string(aux.Price))
	if raw == "" || raw == "null" {
		e.Price = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(aux.Price, &s); err != nil {
			return err
		}
		e.Price = json.Number(s)
		return nil
	}
	e.Price = json.Number(raw)
	return nil
}

func (p projectRequest) draft(id string) ledger.ProjectDraft {
	return ledger.ProjectDraft{
		ID:      id,
		Name:    p.Name,
		Client:  p.Client,
		Address: p.Address,
		Mobile:  p.Mobile,
		ImageID: strings.TrimSpace(p.ImageID),
		Image:   p.Image,
	}
}

// draft validates the wire values that need parsing; the ledger checks the
// rest.
func (e entryRequest) draft(id string) (ledger.EntryDraft, error) {
	kind := core.EntryKind(strings.ToLower(strings.TrimSpace(e.Kind)))
	if !kind.Valid() {
		return ledger.EntryDraft{}, core.ErrInvalidKind
	}
	date, err := core.ParseDate(strings.TrimSpace(e.Date))
	if err != nil {
		return ledger.EntryDraft{}, err
	}
	cents, err := core.ParseDecimalToCents(e.Price.String())
	if err != nil {
		return ledger.EntryDraft{}, err
	}
	return ledger.EntryDraft{
		ID:          id,
		Kind:        kind,
		Date:        date,
		Price:       core.Money{Cents: cents},
		ProjectID:   core.NormalizeProjectRef(e.ProjectID),
		Description: e.Description,
		KeepImages:  e.ReceiptImages,
		NewImages:   e.NewImages,
	}, nil
}

// filterFromQuery reads kind, project and month; absent values match all.
func filterFromQuery(r *http.Request) (core.Filter, error) {
	q := r.URL.Query()
	return core.ParseFilter(
		strings.TrimSpace(q.Get("kind")),
		strings.TrimSpace(q.Get("project")),
		strings.TrimSpace(q.Get("month")),
	)
}

// monthFromQuery reads ?month=YYYY-MM, defaulting to today's month.
func (s *Server) monthFromQuery(r *http.Request) (core.YearMonth, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("month"))
	if raw == "" {
		return s.views.Today().YearMonth(), nil
	}
	return core.ParseYearMonth(raw)
}

func pathID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return "", badRequest("missing id")
	}
	return id, nil
}
