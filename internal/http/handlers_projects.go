package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"receipts/internal/core"
	"receipts/internal/docstore"
	"receipts/internal/export"
	applog "receipts/internal/log"
)

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.projectsJSON(s.views.Projects()))
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	detail, ok := s.views.Project(id)
	if !ok {
		writeError(w, r, fmt.Errorf("project %s: %w", id, docstore.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, s.projectDetailJSON(detail))
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id, err := s.ledger.SaveProject(r.Context(), req.draft(""))
	if err != nil {
		writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Project created",
		applog.FieldProjectID, id,
		applog.FieldOperation, applog.OpCreate)
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req projectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.ledger.SaveProject(r.Context(), req.draft(id)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: id})
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteProject(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Project deleted",
		applog.FieldProjectID, id,
		applog.FieldOperation, applog.OpDelete)
	w.WriteHeader(http.StatusNoContent)
}

// handleProjectEntries lists the project's entries, newest first, with the
// project total.
func (s *Server) handleProjectEntries(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	detail, ok := s.views.Project(id)
	if !ok {
		writeError(w, r, fmt.Errorf("project %s: %w", id, docstore.ErrNotFound))
		return
	}
	entries := make([]core.EnrichedEntry, 0, len(detail.Entries))
	for _, e := range detail.Entries {
		entries = append(entries, core.EnrichedEntry{Entry: e, ProjectName: detail.Project.Name})
	}
	writeJSON(w, http.StatusOK, entryListResponse{
		Entries: s.entriesJSON(entries),
		Total:   detail.Total.Dollars(),
	})
}

// handleProjectReceipts renders the whole PDF before any header is written;
// failures are answered as JSON.
func (s *Server) handleProjectReceipts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	detail, ok := s.views.Project(id)
	if !ok {
		writeError(w, r, fmt.Errorf("project %s: %w", id, docstore.ErrNotFound))
		return
	}

	var buf bytes.Buffer
	pages, err := s.exporter.ProjectReceipts(r.Context(), &buf, detail.Project, detail.Entries)
	if err != nil {
		if statusFor(err) >= http.StatusInternalServerError {
			s.events.LogError(r.Context(), "Receipts export failed", err, applog.OpExport,
				applog.NewFields().WithProject(id))
		}
		writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Receipts exported",
		applog.FieldProjectID, id,
		applog.FieldOperation, applog.OpExport,
		"pages", pages)

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(detail.Project)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
