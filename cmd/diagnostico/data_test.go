package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tetrispositiva/diagnostico/internal/model"
	"github.com/tetrispositiva/diagnostico/internal/store"
)

const marketingYAML = `titulo: Marketing
slug: marketing
modo_pontuacao: raw
perguntas:
  - texto: Você mede o CAC?
    opcoes:
      - texto: Não
        pontos: 1
      - texto: Sim
        pontos: 4
perfis_resultado:
  - perfil: INICIANTE
    pontuacao_min: 0
    pontuacao_max: 2
    nivel: 1
  - perfil: AVANÇADO
    pontuacao_min: 3
    pontuacao_max: 4
    nivel: 4
`

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestImportDiagnostics(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	path := writeFile(t, t.TempDir(), "marketing.yaml", marketingYAML)

	n, err := importDiagnostics(ctx, db, []string{path})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 1 {
		t.Errorf("imported %d, want 1", n)
	}
	first, err := db.GetDiagnostic(ctx, "marketing")
	if err != nil {
		t.Fatalf("GetDiagnostic: %v", err)
	}

	// Unchanged content is skipped.
	n, err = importDiagnostics(ctx, db, []string{path})
	if err != nil || n != 0 {
		t.Fatalf("re-import = %d, %v; want 0, nil", n, err)
	}

	// Changed content replaces the diagnostic with the same slug.
	writeFile(t, filepath.Dir(path), "marketing.yaml", strings.Replace(marketingYAML, "titulo: Marketing", "titulo: Marketing 2", 1))
	if n, err = importDiagnostics(ctx, db, []string{path}); err != nil || n != 1 {
		t.Fatalf("changed import = %d, %v", n, err)
	}
	second, err := db.GetDiagnostic(ctx, "marketing")
	if err != nil {
		t.Fatalf("GetDiagnostic: %v", err)
	}
	if second.ID != first.ID || second.Title != "Marketing 2" {
		t.Errorf("replacement = %s %q, want ID %s and new title", second.ID, second.Title, first.ID)
	}
	if count, _ := db.DiagnosticCount(ctx); count != 1 {
		t.Errorf("diagnostic count = %d, want 1", count)
	}
}

func TestImportRejectsInvalidFile(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	bad := strings.Replace(marketingYAML, "slug: marketing", "slug: ''", 1)
	path := writeFile(t, t.TempDir(), "bad.yaml", bad)

	if _, err := importDiagnostics(ctx, db, []string{path}); err == nil {
		t.Fatal("expected validation error")
	}
	if hash, _ := db.GetImportedFileHash(ctx, path); hash != "" {
		t.Error("a rejected file must not be recorded as imported")
	}
}

func TestWriteExport(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	d, err := db.SaveDiagnostic(ctx, playDiagnostic())
	if err != nil {
		t.Fatalf("SaveDiagnostic: %v", err)
	}
	if _, err := db.CreateLead(ctx, model.Lead{
		Contact:      model.Contact{Name: "Joana Prado", Email: "joana@example.com", Phone: "11977776666"},
		Answers:      []int{4, 4},
		RawTotal:     8,
		Score:        100,
		Profile:      "ALTO",
		DiagnosticID: d.ID,
	}); err != nil {
		t.Fatalf("CreateLead: %v", err)
	}

	var buf bytes.Buffer
	if err := writeExport(ctx, db, "json", &buf); err != nil {
		t.Fatalf("json export: %v", err)
	}
	var doc model.LeadExport
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if doc.Total != 1 || len(doc.Leads) != 1 {
		t.Errorf("export = %+v", doc)
	}

	buf.Reset()
	if err := writeExport(ctx, db, "xlsx", &buf); err != nil {
		t.Fatalf("xlsx export: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("PK")) {
		t.Error("xlsx output is not a zip archive")
	}

	if err := writeExport(ctx, db, "csv", &buf); err == nil {
		t.Error("expected error for unknown format")
	}
}
