package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tetrispositiva/diagnostico/internal/model"
	"github.com/tetrispositiva/diagnostico/internal/wire"
)

const leadColumns = `id, name, email, phone, answers, raw_total, score, profile, diagnostic_id, created_at`

func scanLead(row rowScanner) (model.Lead, error) {
	var (
		l       model.Lead
		answers string
		diagID  sql.NullString
	)
	err := row.Scan(&l.ID, &l.Contact.Name, &l.Contact.Email, &l.Contact.Phone, &answers,
		&l.RawTotal, &l.Score, &l.Profile, &diagID, &l.CreatedAt)
	if err != nil {
		return model.Lead{}, err
	}
	l.DiagnosticID = diagID.String
	if err := json.Unmarshal([]byte(answers), &l.Answers); err != nil {
		return model.Lead{}, fmt.Errorf("decode answers of lead %s: %w", l.ID, err)
	}
	return l, nil
}

// CreateLead stores a lead, assigning an ID and timestamp when missing.
func (s *Store) CreateLead(ctx context.Context, l model.Lead) (model.Lead, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	l.CreatedAt = l.CreatedAt.UTC()
	if l.Answers == nil {
		l.Answers = []int{}
	}
	answers, err := json.Marshal(l.Answers)
	if err != nil {
		return model.Lead{}, fmt.Errorf("encode answers: %w", err)
	}
	var diagID sql.NullString
	if l.DiagnosticID != "" {
		diagID = sql.NullString{String: l.DiagnosticID, Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leads (`+leadColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Contact.Name, l.Contact.Email, l.Contact.Phone, string(answers),
		l.RawTotal, l.Score, l.Profile, diagID, l.CreatedAt,
	)
	if err != nil {
		return model.Lead{}, fmt.Errorf("insert lead: %w", err)
	}
	return l, nil
}

// SaveLead stores a lead payload; it lets the store act as a submission sink
// when the wizard runs against a local database.
func (s *Store) SaveLead(ctx context.Context, p wire.LeadPayload) error {
	_, err := s.CreateLead(ctx, p.Model())
	return err
}

// ListLeads returns all leads, newest first.
func (s *Store) ListLeads(ctx context.Context) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+leadColumns+` FROM leads ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// GetLead returns a lead by ID.
func (s *Store) GetLead(ctx context.Context, id string) (model.Lead, error) {
	l, err := scanLead(s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Lead{}, model.ErrLeadNotFound
	}
	return l, err
}

// DeleteLead removes a lead.
func (s *Store) DeleteLead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrLeadNotFound
	}
	return nil
}
