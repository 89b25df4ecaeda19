package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tetrispositiva/diagnostico/internal/model"
	"github.com/tetrispositiva/diagnostico/internal/store/postgres/migrations"
	"github.com/tetrispositiva/diagnostico/internal/wire"
)

func requireDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "diag", "POSTGRES_PASSWORD": "diagpass", "POSTGRES_DB": "diagdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return fmt.Sprintf("postgres://diag:diagpass@%s:%s/diagdb?sslmode=disable", host, port.Port())
}

// newTestStore starts a container, migrates it twice to check the
// migrations are idempotent, and connects a pool.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	requireDocker(t)
	ctx := context.Background()
	dsn := startPostgres(t, ctx)

	var err error
	for i := 0; i < 10; i++ {
		// the port opens before postgres accepts connections
		if err = migrations.Apply(ctx, dsn); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := migrations.Apply(ctx, dsn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	s, err := Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lo, hi := 2, 8
	d, err := s.SaveDiagnostic(ctx, model.Diagnostic{
		Title:     "Vendas",
		Slug:      "vendas",
		IsActive:  true,
		ScoreMode: model.ScoreRaw,
		MinRaw:    &lo,
		MaxRaw:    &hi,
		Questions: []model.Question{{Text: "Q1", Options: []model.Option{{Text: "a", Points: 1}, {Text: "b", Points: 4}}}},
		Bands:     []model.ProfileBand{{Profile: "X", ScoreMin: 0, ScoreMax: 8, Level: 1}},
	})
	if err != nil {
		t.Fatalf("SaveDiagnostic: %v", err)
	}

	t.Run("diagnostics", func(t *testing.T) {
		got, err := s.GetDiagnostic(ctx, "vendas")
		if err != nil {
			t.Fatalf("GetDiagnostic: %v", err)
		}
		if got.ID != d.ID || got.ScoreMode != model.ScoreRaw || got.MinRaw == nil || *got.MaxRaw != 8 {
			t.Errorf("unexpected diagnostic %+v", got)
		}
		if len(got.Questions) != 1 || got.Questions[0].Options[1].Points != 4 {
			t.Errorf("questions = %+v", got.Questions)
		}
		if _, err := s.GetDiagnostic(ctx, "nope"); !errors.Is(err, model.ErrDiagnosticNotFound) {
			t.Errorf("expected ErrDiagnosticNotFound, got %v", err)
		}

		d.Title = "Vendas 2"
		d.MinRaw = nil
		updated, err := s.SaveDiagnostic(ctx, d)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if !updated.CreatedAt.Equal(d.CreatedAt) {
			t.Errorf("created_at changed: %v != %v", updated.CreatedAt, d.CreatedAt)
		}
		got, _ = s.GetDiagnosticByID(ctx, d.ID)
		if got.Title != "Vendas 2" || got.MinRaw != nil {
			t.Errorf("update not stored: %+v", got)
		}

		dup := model.Diagnostic{Title: "Outro", Slug: "vendas"}
		if _, err := s.SaveDiagnostic(ctx, dup); !errors.Is(err, model.ErrDuplicateSlug) {
			t.Errorf("expected ErrDuplicateSlug, got %v", err)
		}
		n, err := s.DiagnosticCount(ctx)
		if err != nil || n != 1 {
			t.Errorf("DiagnosticCount = %d, %v", n, err)
		}
	})

	t.Run("leads", func(t *testing.T) {
		payload := wire.NewLeadPayload(model.Contact{Name: "Ana", Email: "ana@x.com", Phone: "11999999999"},
			[]int{4}, model.Result{RawTotal: 4, Score: 4, Profile: "X"}, d.ID, time.Now())
		if err := s.SaveLead(ctx, payload); err != nil {
			t.Fatalf("SaveLead: %v", err)
		}
		leads, err := s.ListLeads(ctx)
		if err != nil || len(leads) != 1 {
			t.Fatalf("ListLeads = %d, %v", len(leads), err)
		}
		if leads[0].DiagnosticID != d.ID || leads[0].Answers[0] != 4 {
			t.Errorf("lead = %+v", leads[0])
		}
		records, err := s.LeadRecords(ctx)
		if err != nil || len(records) != 1 || records[0].DiagnosticSlug != "vendas" {
			t.Errorf("LeadRecords = %+v, %v", records, err)
		}
		if err := s.DeleteLead(ctx, leads[0].ID); err != nil {
			t.Fatalf("DeleteLead: %v", err)
		}
		if _, err := s.GetLead(ctx, leads[0].ID); !errors.Is(err, model.ErrLeadNotFound) {
			t.Errorf("expected ErrLeadNotFound, got %v", err)
		}
	})

	t.Run("sessions", func(t *testing.T) {
		token, err := s.CreateAuthSession(ctx, "admin")
		if err != nil {
			t.Fatalf("CreateAuthSession: %v", err)
		}
		sess, err := s.GetAuthSession(ctx, token)
		if err != nil || sess == nil || sess.Username != "admin" {
			t.Fatalf("GetAuthSession = %+v, %v", sess, err)
		}
		if _, err := s.pool.Exec(ctx, `UPDATE auth_sessions SET expires_at = now() - interval '1 hour'`); err != nil {
			t.Fatal(err)
		}
		if sess, _ := s.GetAuthSession(ctx, token); sess != nil {
			t.Error("expired session should be invisible")
		}
		n, err := s.CleanupExpiredSessions(ctx)
		if err != nil || n != 1 {
			t.Errorf("CleanupExpiredSessions = %d, %v", n, err)
		}
	})

	t.Run("imported files", func(t *testing.T) {
		if h, _ := s.GetImportedFileHash(ctx, "a.yaml"); h != "" {
			t.Errorf("expected empty hash, got %q", h)
		}
		_ = s.SetImportedFileHash(ctx, "a.yaml", "abc")
		_ = s.SetImportedFileHash(ctx, "a.yaml", "def")
		if h, _ := s.GetImportedFileHash(ctx, "a.yaml"); h != "def" {
			t.Errorf("expected 'def', got %q", h)
		}
	})

	if err := s.DeleteDiagnostic(ctx, d.ID); err != nil {
		t.Fatalf("DeleteDiagnostic: %v", err)
	}
	if err := s.DeleteDiagnostic(ctx, d.ID); !errors.Is(err, model.ErrDiagnosticNotFound) {
		t.Errorf("second delete: %v", err)
	}
}
