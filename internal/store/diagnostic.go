package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tetrispositiva/diagnostico/internal/model"
)

const diagnosticColumns = `id, slug, title, description, is_active, score_mode, min_raw, max_raw, questions, bands, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDiagnostic(row rowScanner) (model.Diagnostic, error) {
	var (
		d              model.Diagnostic
		mode           string
		minRaw, maxRaw sql.NullInt64
		questions      string
		bands          string
	)
	err := row.Scan(&d.ID, &d.Slug, &d.Title, &d.Description, &d.IsActive, &mode,
		&minRaw, &maxRaw, &questions, &bands, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return model.Diagnostic{}, err
	}
	d.ScoreMode = model.ScoreMode(mode)
	if minRaw.Valid {
		v := int(minRaw.Int64)
		d.MinRaw = &v
	}
	if maxRaw.Valid {
		v := int(maxRaw.Int64)
		d.MaxRaw = &v
	}
	if err := json.Unmarshal([]byte(questions), &d.Questions); err != nil {
		return model.Diagnostic{}, fmt.Errorf("decode questions of %s: %w", d.Slug, err)
	}
	if err := json.Unmarshal([]byte(bands), &d.Bands); err != nil {
		return model.Diagnostic{}, fmt.Errorf("decode bands of %s: %w", d.Slug, err)
	}
	return d, nil
}

// GetDiagnostic returns the diagnostic with the given slug.
func (s *Store) GetDiagnostic(ctx context.Context, slug string) (model.Diagnostic, error) {
	d, err := scanDiagnostic(s.db.QueryRowContext(ctx,
		`SELECT `+diagnosticColumns+` FROM diagnostics WHERE slug = ?`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Diagnostic{}, model.ErrDiagnosticNotFound
	}
	return d, err
}

// GetDiagnosticByID returns the diagnostic with the given ID.
func (s *Store) GetDiagnosticByID(ctx context.Context, id string) (model.Diagnostic, error) {
	d, err := scanDiagnostic(s.db.QueryRowContext(ctx,
		`SELECT `+diagnosticColumns+` FROM diagnostics WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Diagnostic{}, model.ErrDiagnosticNotFound
	}
	return d, err
}

// ListDiagnostics returns all diagnostics, oldest first.
func (s *Store) ListDiagnostics(ctx context.Context) ([]model.Diagnostic, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+diagnosticColumns+` FROM diagnostics ORDER BY created_at, slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Diagnostic
	for rows.Next() {
		d, err := scanDiagnostic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DiagnosticCount returns the number of stored diagnostics.
func (s *Store) DiagnosticCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM diagnostics`).Scan(&n)
	return n, err
}

// SaveDiagnostic inserts d, or replaces the stored one with the same ID.
// Missing IDs on the diagnostic, its questions, options and bands are filled in.
func (s *Store) SaveDiagnostic(ctx context.Context, d model.Diagnostic) (model.Diagnostic, error) {
	d = d.WithIDs()
	questions, err := json.Marshal(d.Questions)
	if err != nil {
		return model.Diagnostic{}, fmt.Errorf("encode questions: %w", err)
	}
	bands, err := json.Marshal(d.Bands)
	if err != nil {
		return model.Diagnostic{}, fmt.Errorf("encode bands: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Diagnostic{}, err
	}
	defer tx.Rollback()

	var owner string
	err = tx.QueryRowContext(ctx, `SELECT id FROM diagnostics WHERE slug = ? AND id <> ?`, d.Slug, d.ID).Scan(&owner)
	if err == nil {
		return model.Diagnostic{}, fmt.Errorf("%w: %s", model.ErrDuplicateSlug, d.Slug)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Diagnostic{}, err
	}

	now := time.Now().UTC()
	var created time.Time
	err = tx.QueryRowContext(ctx, `SELECT created_at FROM diagnostics WHERE id = ?`, d.ID).Scan(&created)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if d.CreatedAt.IsZero() {
			d.CreatedAt = now
		}
		d.CreatedAt = d.CreatedAt.UTC()
		d.UpdatedAt = now
		_, err = tx.ExecContext(ctx,
			`INSERT INTO diagnostics (`+diagnosticColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.Slug, d.Title, d.Description, d.IsActive, string(d.ScoreMode),
			nullInt(d.MinRaw), nullInt(d.MaxRaw), string(questions), string(bands), d.CreatedAt, d.UpdatedAt)
	case err == nil:
		d.CreatedAt = created
		d.UpdatedAt = now
		_, err = tx.ExecContext(ctx,
			`UPDATE diagnostics SET slug = ?, title = ?, description = ?, is_active = ?, score_mode = ?,
			 min_raw = ?, max_raw = ?, questions = ?, bands = ?, updated_at = ? WHERE id = ?`,
			d.Slug, d.Title, d.Description, d.IsActive, string(d.ScoreMode),
			nullInt(d.MinRaw), nullInt(d.MaxRaw), string(questions), string(bands), d.UpdatedAt, d.ID)
	}
	if err != nil {
		return model.Diagnostic{}, fmt.Errorf("save diagnostic %s: %w", d.Slug, err)
	}
	if err := tx.Commit(); err != nil {
		return model.Diagnostic{}, err
	}
	slog.Info("saved diagnostic", "id", d.ID, "slug", d.Slug, "questions", len(d.Questions), "bands", len(d.Bands))
	return d, nil
}

// DeleteDiagnostic removes a diagnostic. Leads keep their diagnostic_id.
func (s *Store) DeleteDiagnostic(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM diagnostics WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrDiagnosticNotFound
	}
	return nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
