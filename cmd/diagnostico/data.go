package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tetrispositiva/diagnostico/internal/export"
	"github.com/tetrispositiva/diagnostico/internal/model"
	"github.com/tetrispositiva/diagnostico/internal/quizbank"
	"github.com/tetrispositiva/diagnostico/internal/store/postgres/migrations"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Load diagnostics from YAML or JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)
			repo, err := openRepository(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer repo.Close()
			n, err := importDiagnostics(cmd.Context(), repo, args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d diagnostic(s)\n", n)
			return nil
		},
	}
	addStorageFlags(cmd)
	addLoggingFlags(cmd)
	return cmd
}

// importDiagnostics stores every diagnostic found in paths. A file whose
// content was already imported is skipped. A diagnostic whose slug exists
// replaces the stored one.
func importDiagnostics(ctx context.Context, repo repository, paths []string) (int, error) {
	imported := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return imported, fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := repo.GetImportedFileHash(ctx, path)
		if err != nil {
			return imported, fmt.Errorf("check import status for %s: %w", path, err)
		}
		if storedHash == hash {
			slog.Info("diagnostic file unchanged, skipping", "path", path)
			continue
		}

		diagnostics, err := quizbank.Decode(data)
		if err != nil {
			return imported, fmt.Errorf("%s: %w", path, err)
		}
		for _, d := range diagnostics {
			if err := quizbank.Validate(d); err != nil {
				return imported, fmt.Errorf("%s: %w", path, err)
			}
		}

		for _, d := range diagnostics {
			if d.ID == "" {
				existing, err := repo.GetDiagnostic(ctx, d.Slug)
				switch {
				case err == nil:
					d.ID = existing.ID
					d.CreatedAt = existing.CreatedAt
				case !errors.Is(err, model.ErrDiagnosticNotFound):
					return imported, fmt.Errorf("look up %s: %w", d.Slug, err)
				}
			}
			saved, err := repo.SaveDiagnostic(ctx, d)
			if err != nil {
				return imported, fmt.Errorf("save %s from %s: %w", d.Slug, path, err)
			}
			slog.Info("imported diagnostic", "slug", saved.Slug, "questions", len(saved.Questions), "path", path)
			imported++
		}

		if err := repo.SetImportedFileHash(ctx, path, hash); err != nil {
			return imported, fmt.Errorf("record import for %s: %w", path, err)
		}
	}
	return imported, nil
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every lead with its diagnostic as JSON or XLSX",
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)
			repo, err := openRepository(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer repo.Close()

			out := cmd.OutOrStdout()
			if path := v.GetString("output"); path != "-" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("create %s: %w", path, err)
				}
				defer f.Close()
				out = f
			}
			return writeExport(cmd.Context(), repo, v.GetString("format"), out)
		},
	}
	addStorageFlags(cmd)
	addLoggingFlags(cmd)
	f := cmd.Flags()
	f.StringP("format", "f", "json", "Output format (json, xlsx)")
	f.StringP("output", "o", "-", "Output file; - writes to stdout")
	return cmd
}

func writeExport(ctx context.Context, repo repository, format string, w io.Writer) error {
	records, err := repo.LeadRecords(ctx)
	if err != nil {
		return fmt.Errorf("load leads: %w", err)
	}
	switch format {
	case "json":
		return export.JSON(w, records, time.Now().UTC())
	case "xlsx":
		return export.XLSX(w, records)
	}
	return fmt.Errorf("unknown export format %q", format)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply PostgreSQL schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)
			dsn := v.GetString("postgres-url")
			if dsn == "" {
				return errors.New("--postgres-url is required")
			}
			return migrations.Apply(cmd.Context(), dsn)
		},
	}
	addStorageFlags(cmd)
	addLoggingFlags(cmd)
	return cmd
}
