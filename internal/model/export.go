package model

import "time"

// LeadExport is the top-level JSON structure for lead export.
type LeadExport struct {
	ExportedAt time.Time    `json:"exported_at"`
	Total      int          `json:"total"`
	Leads      []LeadRecord `json:"leads"`
}

// LeadRecord flattens one lead with its diagnostic for export.
type LeadRecord struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	DiagnosticSlug  string    `json:"diagnostic_slug,omitempty"`
	DiagnosticTitle string    `json:"diagnostic_title,omitempty"`
	Profile         string    `json:"profile"`
	RawTotal        int       `json:"raw_total"`
	Score           int       `json:"score"`
	Answers         []int     `json:"answers"`
	CreatedAt       time.Time `json:"created_at"`
}
