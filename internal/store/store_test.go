package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/tetrispositiva/diagnostico/internal/model"
	"github.com/tetrispositiva/diagnostico/internal/wire"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testDiagnostic(slug string) model.Diagnostic {
	lo, hi := 2, 8
	return model.Diagnostic{
		Title:     "Teste " + slug,
		Slug:      slug,
		IsActive:  true,
		ScoreMode: model.ScoreRaw,
		MinRaw:    &lo,
		MaxRaw:    &hi,
		Questions: []model.Question{
			{Text: "Q1", Options: []model.Option{{Text: "a", Points: 1}, {Text: "b", Points: 4}}},
			{Text: "Q2", Options: []model.Option{{Text: "a", Points: 1}, {Text: "b", Points: 4}}},
		},
		Bands: []model.ProfileBand{
			{Profile: "X", ScoreMin: 5, ScoreMax: 8, Level: 2, Signals: []string{"s1"}},
		},
	}
}

func TestDiagnosticCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Empty DB should return zero count and empty list.
	count, err := s.DiagnosticCount(ctx)
	if err != nil {
		t.Fatalf("DiagnosticCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 diagnostics, got %d", count)
	}
	list, err := s.ListDiagnostics(ctx)
	if err != nil {
		t.Fatalf("ListDiagnostics: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}

	saved, err := s.SaveDiagnostic(ctx, testDiagnostic("vendas"))
	if err != nil {
		t.Fatalf("SaveDiagnostic: %v", err)
	}
	if saved.ID == "" || saved.Questions[0].ID == "" || saved.Questions[0].Options[1].ID == "" || saved.Bands[0].ID == "" {
		t.Fatalf("expected generated IDs, got %+v", saved)
	}
	if saved.CreatedAt.IsZero() || saved.UpdatedAt.IsZero() {
		t.Error("timestamps should be set")
	}

	got, err := s.GetDiagnostic(ctx, "vendas")
	if err != nil {
		t.Fatalf("GetDiagnostic: %v", err)
	}
	if got.ID != saved.ID || got.Title != "Teste vendas" || !got.IsActive {
		t.Errorf("unexpected diagnostic %+v", got)
	}
	if got.ScoreMode != model.ScoreRaw || got.MinRaw == nil || *got.MinRaw != 2 || *got.MaxRaw != 8 {
		t.Errorf("score settings lost: mode=%q min=%v max=%v", got.ScoreMode, got.MinRaw, got.MaxRaw)
	}
	if len(got.Questions) != 2 || got.Questions[1].Options[1].Points != 4 {
		t.Errorf("questions = %+v", got.Questions)
	}
	if !reflect.DeepEqual(got.Bands[0].Signals, []string{"s1"}) || got.Bands[0].EvolutionPlan == nil {
		t.Errorf("band = %+v", got.Bands[0])
	}

	byID, err := s.GetDiagnosticByID(ctx, saved.ID)
	if err != nil || byID.Slug != "vendas" {
		t.Fatalf("GetDiagnosticByID = %q, %v", byID.Slug, err)
	}

	// Update keeps the ID and creation time.
	saved.Title = "Renomeado"
	saved.IsActive = false
	saved.MinRaw = nil
	updated, err := s.SaveDiagnostic(ctx, saved)
	if err != nil {
		t.Fatalf("SaveDiagnostic update: %v", err)
	}
	if updated.ID != saved.ID || !updated.CreatedAt.Equal(saved.CreatedAt) {
		t.Errorf("update changed identity: %+v", updated)
	}
	got, _ = s.GetDiagnostic(ctx, "vendas")
	if got.Title != "Renomeado" || got.IsActive || got.MinRaw != nil {
		t.Errorf("update not stored: %+v", got)
	}

	// Not found.
	if _, err := s.GetDiagnostic(ctx, "nao-existe"); !errors.Is(err, model.ErrDiagnosticNotFound) {
		t.Errorf("expected ErrDiagnosticNotFound, got %v", err)
	}

	if err := s.DeleteDiagnostic(ctx, saved.ID); err != nil {
		t.Fatalf("DeleteDiagnostic: %v", err)
	}
	if err := s.DeleteDiagnostic(ctx, saved.ID); !errors.Is(err, model.ErrDiagnosticNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

func TestSaveDiagnosticDuplicateSlug(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.SaveDiagnostic(ctx, testDiagnostic("vendas")); err != nil {
		t.Fatal(err)
	}
	_, err := s.SaveDiagnostic(ctx, testDiagnostic("vendas"))
	if !errors.Is(err, model.ErrDuplicateSlug) {
		t.Fatalf("expected ErrDuplicateSlug, got %v", err)
	}
}

func TestListDiagnosticsOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, slug := range []string{"b", "a", "c"} {
		d := testDiagnostic(slug)
		d.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if _, err := s.SaveDiagnostic(ctx, d); err != nil {
			t.Fatal(err)
		}
	}
	list, err := s.ListDiagnostics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var slugs []string
	for _, d := range list {
		slugs = append(slugs, d.Slug)
	}
	if !reflect.DeepEqual(slugs, []string{"b", "a", "c"}) {
		t.Errorf("expected creation order [b a c], got %v", slugs)
	}
}

func TestLeads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d, err := s.SaveDiagnostic(ctx, testDiagnostic("vendas"))
	if err != nil {
		t.Fatal(err)
	}

	older, err := s.CreateLead(ctx, model.Lead{
		Contact:      model.Contact{Name: "Ana", Email: "ana@x.com", Phone: "11999999999"},
		Answers:      []int{3, 4},
		RawTotal:     7,
		Score:        7,
		Profile:      "X",
		DiagnosticID: d.ID,
		CreatedAt:    time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateLead: %v", err)
	}
	if older.ID == "" {
		t.Fatal("expected generated lead ID")
	}

	// Payload path used by the submission pipeline.
	payload := wire.NewLeadPayload(model.Contact{Name: "Bia", Email: "bia@x.com", Phone: "21988887777"},
		nil, model.Result{RawTotal: 2, Score: 0, Profile: "Y"}, "", time.Now())
	if err := s.SaveLead(ctx, payload); err != nil {
		t.Fatalf("SaveLead: %v", err)
	}

	leads, err := s.ListLeads(ctx)
	if err != nil {
		t.Fatalf("ListLeads: %v", err)
	}
	if len(leads) != 2 {
		t.Fatalf("expected 2 leads, got %d", len(leads))
	}
	if leads[0].Contact.Name != "Bia" || leads[1].Contact.Name != "Ana" {
		t.Errorf("expected newest first, got %s, %s", leads[0].Contact.Name, leads[1].Contact.Name)
	}
	if leads[0].Answers == nil || leads[0].DiagnosticID != "" {
		t.Errorf("lead without diagnostic = %+v", leads[0])
	}

	got, err := s.GetLead(ctx, older.ID)
	if err != nil {
		t.Fatalf("GetLead: %v", err)
	}
	if !reflect.DeepEqual(got.Answers, []int{3, 4}) || got.DiagnosticID != d.ID || got.Contact.Phone != "11999999999" {
		t.Errorf("GetLead = %+v", got)
	}

	records, err := s.LeadRecords(ctx)
	if err != nil {
		t.Fatalf("LeadRecords: %v", err)
	}
	if len(records) != 2 || records[1].DiagnosticSlug != "vendas" || records[1].DiagnosticTitle != "Teste vendas" {
		t.Errorf("records = %+v", records)
	}
	if records[0].DiagnosticSlug != "" {
		t.Errorf("lead without diagnostic should have no slug, got %q", records[0].DiagnosticSlug)
	}

	if err := s.DeleteLead(ctx, older.ID); err != nil {
		t.Fatalf("DeleteLead: %v", err)
	}
	if _, err := s.GetLead(ctx, older.ID); !errors.Is(err, model.ErrLeadNotFound) {
		t.Errorf("expected ErrLeadNotFound, got %v", err)
	}
	if err := s.DeleteLead(ctx, older.ID); !errors.Is(err, model.ErrLeadNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

func TestAuthSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	token, err := s.CreateAuthSession(ctx, "admin")
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(token))
	}

	sess, err := s.GetAuthSession(ctx, token)
	if err != nil {
		t.Fatalf("GetAuthSession: %v", err)
	}
	if sess == nil || sess.Username != "admin" {
		t.Fatalf("expected session for admin, got %+v", sess)
	}
	if d := sess.ExpiresAt.Sub(sess.CreatedAt); d != authSessionTTL {
		t.Errorf("ttl = %v", d)
	}

	// Unknown token.
	sess, err = s.GetAuthSession(ctx, "nope")
	if err != nil || sess != nil {
		t.Errorf("unknown token: %+v, %v", sess, err)
	}

	// Expired session is invisible and purged.
	past := time.Now().Add(-48 * time.Hour).UTC()
	if _, err := s.db.Exec(`INSERT INTO auth_sessions (id, username, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		"old", "admin", past, past.Add(authSessionTTL)); err != nil {
		t.Fatal(err)
	}
	n, err := s.CleanupExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("CleanupExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired session removed, got %d", n)
	}

	if err := s.DeleteAuthSession(ctx, token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	if sess, _ := s.GetAuthSession(ctx, token); sess != nil {
		t.Error("session should be gone after delete")
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Missing file returns empty string.
	hash, err := s.GetImportedFileHash(ctx, "banco.yaml")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := s.SetImportedFileHash(ctx, "banco.yaml", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	hash, _ = s.GetImportedFileHash(ctx, "banco.yaml")
	if hash != "abc123" {
		t.Errorf("expected 'abc123', got %q", hash)
	}

	// Update existing.
	if err := s.SetImportedFileHash(ctx, "banco.yaml", "def456"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	hash, _ = s.GetImportedFileHash(ctx, "banco.yaml")
	if hash != "def456" {
		t.Errorf("expected 'def456', got %q", hash)
	}
}

func TestFileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diagnostico.db")
	ctx := context.Background()

	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.SaveDiagnostic(ctx, testDiagnostic("vendas")); err != nil {
		t.Fatal(err)
	}
	s.Close()

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.GetDiagnostic(ctx, "vendas"); err != nil {
		t.Errorf("diagnostic lost after reopen: %v", err)
	}
}
