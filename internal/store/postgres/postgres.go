// Package postgres is the PostgreSQL repository for diagnostics, leads and
// admin sessions. Questions, bands and answers live in JSONB columns.
package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/tetrispositiva/diagnostico/internal/model"
	"github.com/tetrispositiva/diagnostico/internal/wire"
)

const authSessionTTL = 24 * time.Hour

// Store wraps a pgx pool. The schema is created by the migrations package.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool to dsn and checks it is reachable.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const diagnosticColumns = `id, slug, title, description, is_active, score_mode, min_raw, max_raw, questions, bands, created_at, updated_at`

func scanDiagnostic(row pgx.Row) (model.Diagnostic, error) {
	var (
		d                model.Diagnostic
		mode             string
		questions, bands []byte
	)
	err := row.Scan(&d.ID, &d.Slug, &d.Title, &d.Description, &d.IsActive, &mode,
		&d.MinRaw, &d.MaxRaw, &questions, &bands, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return model.Diagnostic{}, err
	}
	d.ScoreMode = model.ScoreMode(mode)
	if err := json.Unmarshal(questions, &d.Questions); err != nil {
		return model.Diagnostic{}, fmt.Errorf("unmarshal questions of %s: %w", d.Slug, err)
	}
	if err := json.Unmarshal(bands, &d.Bands); err != nil {
		return model.Diagnostic{}, fmt.Errorf("unmarshal bands of %s: %w", d.Slug, err)
	}
	return d, nil
}

// GetDiagnostic returns the diagnostic with the given slug.
func (s *Store) GetDiagnostic(ctx context.Context, slug string) (model.Diagnostic, error) {
	d, err := scanDiagnostic(s.pool.QueryRow(ctx, `SELECT `+diagnosticColumns+` FROM diagnostics WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Diagnostic{}, model.ErrDiagnosticNotFound
	}
	if err != nil {
		return model.Diagnostic{}, fmt.Errorf("load diagnostic: %w", err)
	}
	return d, nil
}

// GetDiagnosticByID returns the diagnostic with the given ID.
func (s *Store) GetDiagnosticByID(ctx context.Context, id string) (model.Diagnostic, error) {
	d, err := scanDiagnostic(s.pool.QueryRow(ctx, `SELECT `+diagnosticColumns+` FROM diagnostics WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Diagnostic{}, model.ErrDiagnosticNotFound
	}
	if err != nil {
		return model.Diagnostic{}, fmt.Errorf("load diagnostic: %w", err)
	}
	return d, nil
}

// ListDiagnostics returns all diagnostics, oldest first.
func (s *Store) ListDiagnostics(ctx context.Context) ([]model.Diagnostic, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+diagnosticColumns+` FROM diagnostics ORDER BY created_at, slug`)
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
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM diagnostics`).Scan(&n)
	return n, err
}

// SaveDiagnostic inserts d, or replaces the stored one with the same ID.
func (s *Store) SaveDiagnostic(ctx context.Context, d model.Diagnostic) (model.Diagnostic, error) {
	d = d.WithIDs()
	questions, err := json.Marshal(d.Questions)
	if err != nil {
		return model.Diagnostic{}, fmt.Errorf("marshal questions: %w", err)
	}
	bands, err := json.Marshal(d.Bands)
	if err != nil {
		return model.Diagnostic{}, fmt.Errorf("marshal bands: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Diagnostic{}, err
	}
	defer tx.Rollback(ctx)

	var owner string
	err = tx.QueryRow(ctx, `SELECT id FROM diagnostics WHERE slug = $1 AND id <> $2`, d.Slug, d.ID).Scan(&owner)
	if err == nil {
		return model.Diagnostic{}, fmt.Errorf("%w: %s", model.ErrDuplicateSlug, d.Slug)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Diagnostic{}, err
	}

	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = time.Now().UTC()
	err = tx.QueryRow(ctx, `
		INSERT INTO diagnostics (`+diagnosticColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			slug = EXCLUDED.slug, title = EXCLUDED.title, description = EXCLUDED.description,
			is_active = EXCLUDED.is_active, score_mode = EXCLUDED.score_mode,
			min_raw = EXCLUDED.min_raw, max_raw = EXCLUDED.max_raw,
			questions = EXCLUDED.questions, bands = EXCLUDED.bands, updated_at = EXCLUDED.updated_at
		RETURNING created_at`,
		d.ID, d.Slug, d.Title, d.Description, d.IsActive, string(d.ScoreMode),
		d.MinRaw, d.MaxRaw, questions, bands, d.CreatedAt, d.UpdatedAt,
	).Scan(&d.CreatedAt)
	if err != nil {
		return model.Diagnostic{}, fmt.Errorf("save diagnostic %s: %w", d.Slug, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Diagnostic{}, err
	}
	slog.Info("saved diagnostic", "id", d.ID, "slug", d.Slug, "questions", len(d.Questions), "bands", len(d.Bands))
	return d, nil
}

// DeleteDiagnostic removes a diagnostic. Leads keep their diagnostic_id.
func (s *Store) DeleteDiagnostic(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM diagnostics WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrDiagnosticNotFound
	}
	return nil
}

const leadColumns = `id, name, email, phone, answers, raw_total, score, profile, diagnostic_id, created_at`

func scanLead(row pgx.Row) (model.Lead, error) {
	var (
		l       model.Lead
		answers []byte
		diagID  *string
	)
	err := row.Scan(&l.ID, &l.Contact.Name, &l.Contact.Email, &l.Contact.Phone, &answers,
		&l.RawTotal, &l.Score, &l.Profile, &diagID, &l.CreatedAt)
	if err != nil {
		return model.Lead{}, err
	}
	if diagID != nil {
		l.DiagnosticID = *diagID
	}
	if err := json.Unmarshal(answers, &l.Answers); err != nil {
		return model.Lead{}, fmt.Errorf("unmarshal answers of lead %s: %w", l.ID, err)
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
		return model.Lead{}, fmt.Errorf("marshal answers: %w", err)
	}
	var diagID *string
	if l.DiagnosticID != "" {
		diagID = &l.DiagnosticID
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO leads (`+leadColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		l.ID, l.Contact.Name, l.Contact.Email, l.Contact.Phone, answers,
		l.RawTotal, l.Score, l.Profile, diagID, l.CreatedAt,
	)
	if err != nil {
		return model.Lead{}, fmt.Errorf("insert lead: %w", err)
	}
	return l, nil
}

// SaveLead stores a lead payload.
func (s *Store) SaveLead(ctx context.Context, p wire.LeadPayload) error {
	_, err := s.CreateLead(ctx, p.Model())
	return err
}

// ListLeads returns all leads, newest first.
func (s *Store) ListLeads(ctx context.Context) ([]model.Lead, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+leadColumns+` FROM leads ORDER BY created_at DESC, id`)
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
	l, err := scanLead(s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Lead{}, model.ErrLeadNotFound
	}
	return l, err
}

// DeleteLead removes a lead.
func (s *Store) DeleteLead(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrLeadNotFound
	}
	return nil
}

// LeadRecords returns every lead joined with its diagnostic, newest first.
func (s *Store) LeadRecords(ctx context.Context) ([]model.LeadRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT l.id, l.name, l.email, l.phone, l.answers, l.raw_total, l.score, l.profile,
		       COALESCE(d.slug, ''), COALESCE(d.title, ''), l.created_at
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
			rec     model.LeadRecord
			answers []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Email, &rec.Phone, &answers, &rec.RawTotal,
			&rec.Score, &rec.Profile, &rec.DiagnosticSlug, &rec.DiagnosticTitle, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(answers, &rec.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers of lead %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CreateAuthSession issues a new admin token.
func (s *Store) CreateAuthSession(ctx context.Context, username string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO auth_sessions (id, username, created_at, expires_at) VALUES ($1, $2, $3, $4)`,
		token, username, now, now.Add(authSessionTTL))
	if err != nil {
		return "", err
	}
	return token, nil
}

// GetAuthSession returns the live session for token, or nil.
func (s *Store) GetAuthSession(ctx context.Context, token string) (*model.AuthSession, error) {
	var sess model.AuthSession
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, created_at, expires_at FROM auth_sessions WHERE id = $1 AND expires_at > now()`, token,
	).Scan(&sess.ID, &sess.Username, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// DeleteAuthSession removes a session token.
func (s *Store) DeleteAuthSession(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE id = $1`, token)
	return err
}

// CleanupExpiredSessions removes expired sessions and reports how many.
func (s *Store) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetImportedFileHash returns the sha256 recorded for filename, or "".
func (s *Store) GetImportedFileHash(ctx context.Context, filename string) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx, `SELECT sha256 FROM imported_files WHERE filename = $1`, filename).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records that filename with the given hash was imported.
func (s *Store) SetImportedFileHash(ctx context.Context, filename, hash string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO imported_files (filename, sha256, imported_at) VALUES ($1, $2, now())
		 ON CONFLICT (filename) DO UPDATE SET sha256 = EXCLUDED.sha256, imported_at = EXCLUDED.imported_at`,
		filename, hash)
	return err
}
