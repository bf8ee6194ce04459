package http

import (
	"fmt"
	"net/http"
	"strings"

	"receipts/internal/core"
	"receipts/internal/imagehost"
)

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	ym, err := s.monthFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	grid, total := s.views.Calendar(ym)
	writeJSON(w, http.StatusOK, calendarJSON(ym, grid, total))
}

// handleDay returns the entries of one day with full-size receipt links.
func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	d, err := core.ParseDate(r.PathValue("date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	detail, ok := s.views.Day(d, func(id string) string { return s.images.URL(id, 0, 0) })
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "nothing recorded on " + d.String()})
		return
	}
	var total core.Money
	entries := make([]entryResponse, 0, len(detail))
	for _, e := range detail {
		total = total.Add(e.Price)
		urls := e.ImageURLs
		if urls == nil {
			urls = []string{}
		}
		entries = append(entries, s.entryJSON(e.EnrichedEntry, urls))
	}
	writeJSON(w, http.StatusOK, dayResponse{Date: d.String(), Total: total.Dollars(), Entries: entries})
}

// handleImage serves images held by the in-process host. A leading
// transformation segment (c_fill,w_..) is ignored.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if first, rest, ok := strings.Cut(id, "/"); ok && strings.HasPrefix(first, "c_") {
		id = rest
	}
	if id == "" {
		writeError(w, r, fmt.Errorf("%w: empty id", imagehost.ErrNotFound))
		return
	}
	data, err := s.images.Fetch(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "private, max-age=3600, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
