package http

import (
	"receipts/internal/core"
	"receipts/internal/session"
)

type (
	userResponse struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Session string `json:"session"`
		Token   string `json:"token,omitempty"`
	}

	idResponse struct {
		ID string `json:"id"`
	}

	projectResponse struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Client   string `json:"client"`
		Address  string `json:"address"`
		Mobile   string `json:"mobile"`
		ImageID  string `json:"image_id,omitempty"`
		ImageURL string `json:"image_url,omitempty"`
	}

	projectDetailResponse struct {
		Project    projectResponse `json:"project"`
		Total      float64         `json:"total"`
		EntryCount int             `json:"entry_count"`
	}

	entryResponse struct {
		ID            string   `json:"id"`
		Kind          string   `json:"kind"`
		Date          string   `json:"date"`
		Price         float64  `json:"price"`
		ProjectID     string   `json:"project_id"`
		ProjectName   string   `json:"project_name"`
		Description   string   `json:"description"`
		ReceiptImages []string `json:"receipt_images"`
		ImageURLs     []string `json:"image_urls"`
	}

	entryListResponse struct {
		Entries []entryResponse `json:"entries"`
		Total   float64         `json:"total"`
	}

	calendarDayResponse struct {
		Date         string  `json:"date"`
		Day          int     `json:"day"`
		CurrentMonth bool    `json:"current_month"`
		Today        bool    `json:"today"`
		Total        float64 `json:"total"`
	}

	calendarResponse struct {
		Month string                `json:"month"`
		Prev  string                `json:"prev"`
		Next  string                `json:"next"`
		Total float64               `json:"total"`
		Days  []calendarDayResponse `json:"days"`
	}

	dayResponse struct {
		Date    string          `json:"date"`
		Total   float64         `json:"total"`
		Entries []entryResponse `json:"entries"`
	}
)

func (s *Server) projectJSON(p core.Project) projectResponse {
	out := projectResponse{
		ID:      p.ID,
		Name:    p.Name,
		Client:  p.Client,
		Address: p.Address,
		Mobile:  p.Mobile,
		ImageID: p.ImageID,
	}
	if p.ImageID != "" {
		out.ImageURL = s.images.URL(p.ImageID, thumbWidth, thumbHeight)
	}
	return out
}

func (s *Server) projectsJSON(projects []core.Project) []projectResponse {
	out := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, s.projectJSON(p))
	}
	return out
}

func (s *Server) projectDetailJSON(d session.ProjectDetail) projectDetailResponse {
	return projectDetailResponse{
		Project:    s.projectJSON(d.Project),
		Total:      d.Total.Dollars(),
		EntryCount: len(d.Entries),
	}
}

// entryJSON renders e. urls are the display links for its receipts; nil
// derives thumbnails from the image host.
func (s *Server) entryJSON(e core.EnrichedEntry, urls []string) entryResponse {
	images := e.ReceiptImages
	if images == nil {
		images = []string{}
	}
	if urls == nil {
		urls = make([]string, 0, len(images))
		for _, id := range images {
			urls = append(urls, s.images.URL(id, thumbWidth, thumbHeight))
		}
	}
	return entryResponse{
		ID:            e.ID,
		Kind:          string(e.Kind),
		Date:          e.Date.String(),
		Price:         e.Price.Dollars(),
		ProjectID:     e.ProjectID,
		ProjectName:   e.ProjectName,
		Description:   e.Description,
		ReceiptImages: images,
		ImageURLs:     urls,
	}
}

func (s *Server) entriesJSON(entries []core.EnrichedEntry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.entryJSON(e, nil))
	}
	return out
}

func calendarJSON(ym core.YearMonth, grid []core.CalendarDay, total core.Money) calendarResponse {
	days := make([]calendarDayResponse, 0, len(grid))
	for _, d := range grid {
		days = append(days, calendarDayResponse{
			Date:         d.Date.String(),
			Day:          d.DayOfMonth,
			CurrentMonth: d.IsCurrentMonth,
			Today:        d.IsToday,
			Total:        d.Total.Dollars(),
		})
	}
	return calendarResponse{
		Month: ym.String(),
		Prev:  ym.AddMonths(-1).String(),
		Next:  ym.AddMonths(1).String(),
		Total: total.Dollars(),
		Days:  days,
	}
}
