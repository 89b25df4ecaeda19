package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetImportedFileHash returns the sha256 recorded for filename, or "".
func (s *Store) GetImportedFileHash(ctx context.Context, filename string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT sha256 FROM imported_files WHERE filename = ?`, filename).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records that filename with the given hash was imported.
func (s *Store) SetImportedFileHash(ctx context.Context, filename, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO imported_files (filename, sha256, imported_at) VALUES (?, ?, ?)
		 ON CONFLICT(filename) DO UPDATE SET sha256 = excluded.sha256, imported_at = excluded.imported_at`,
		filename, hash, time.Now().UTC(),
	)
	return err
}
