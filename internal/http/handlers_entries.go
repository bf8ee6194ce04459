package http

import (
	"net/http"

	"receipts/internal/ledger"
	applog "receipts/internal/log"
)

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, total := s.views.Entries(f)
	writeJSON(w, http.StatusOK, entryListResponse{
		Entries: s.entriesJSON(entries),
		Total:   total.Dollars(),
	})
}

func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.views.Months())
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	s.saveEntry(w, r, "", http.StatusCreated)
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.saveEntry(w, r, id, http.StatusOK)
}

func (s *Server) saveEntry(w http.ResponseWriter, r *http.Request, id string, status int) {
	var req entryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	draft, err := req.draft(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.ledger.SaveEntry(r.Context(), draft)
	if err != nil {
		writeError(w, r, err)
		return
	}
	uid := ""
	if u, ok := s.auth.Current(); ok {
		uid = u.ID
	}
	applog.NewStructuredLogger(applog.FromContext(r.Context())).LogEntrySaved(r.Context(),
		uid, saved, string(draft.Kind), draft.Price.Cents, len(draft.KeepImages)+len(draft.NewImages))
	writeJSON(w, status, idResponse{ID: saved})
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteEntry(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Entry deleted",
		applog.FieldEntryID, id,
		applog.FieldOperation, applog.OpDelete)
	w.WriteHeader(http.StatusNoContent)
}

var _ Ledger = (*ledger.Service)(nil)
