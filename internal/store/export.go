package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/tetrispositiva/diagnostico/internal/model"
)

// LeadRecords returns every lead joined with its diagnostic, newest first.
// Leads whose diagnostic was deleted keep empty slug and title.
func (s *Store) LeadRecords(ctx context.Context) ([]model.LeadRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.name, l.email, l.phone, l.answers, l.raw_total, l.score, l.profile,
		       d.slug, d.title, l.created_at
		FROM leads l
		LEFT JOIN diagnostics d ON d.id = l.diagnostic_id
		ORDER BY l.created_at DESC, l.id`)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	var records []model.LeadRecord
	for rows.Next() {
		var (
			rec         model.LeadRecord
			answers     string
			slug, title sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Email, &rec.Phone, &answers, &rec.RawTotal,
			&rec.Score, &rec.Profile, &slug, &title, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(answers), &rec.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of lead %s: %w", rec.ID, err)
		}
		rec.DiagnosticSlug = slug.String
		rec.DiagnosticTitle = title.String
		records = append(records, rec)
	}
	return records, rows.Err()
}
