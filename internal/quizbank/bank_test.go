package quizbank

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tetrispositiva/diagnostico/internal/model"
)

func TestSlugFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"", DefaultSlug},
		{"/", DefaultSlug},
		{"/dashboard", DefaultSlug},
		{"/d/vendas", "vendas"},
		{"/vendas", "vendas"},
		{"/vendas/", "vendas"},
		{"/d/", DefaultSlug},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := SlugFromPath(tt.path); got != tt.want {
				t.Errorf("SlugFromPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

type failingSource struct {
	Source
	failSlugs map[string]bool
	listErr   error
}

func (s failingSource) GetDiagnostic(ctx context.Context, slug string) (model.Diagnostic, error) {
	if s.failSlugs[slug] {
		return model.Diagnostic{}, errors.New("upstream returned HTML")
	}
	return s.Source.GetDiagnostic(ctx, slug)
}

func (s failingSource) ListDiagnostics(ctx context.Context) ([]model.Diagnostic, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.Source.ListDiagnostics(ctx)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	inactive := model.Diagnostic{Slug: "antigo", Title: "Antigo"}
	active := model.Diagnostic{Slug: "vendas", Title: "Vendas", IsActive: true}

	t.Run("exact slug", func(t *testing.T) {
		d, err := Resolve(ctx, NewStatic(inactive, active), "antigo")
		if err != nil || d.Slug != "antigo" {
			t.Fatalf("Resolve = %q, %v", d.Slug, err)
		}
	})

	t.Run("missing slug falls back to first active", func(t *testing.T) {
		d, err := Resolve(ctx, NewStatic(inactive, active), "nao-existe")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if d.Slug != "vendas" {
			t.Errorf("fallback = %q, want vendas", d.Slug)
		}
	})

	t.Run("no active falls back to first listed", func(t *testing.T) {
		d, err := Resolve(ctx, NewStatic(inactive), "nao-existe")
		if err != nil || d.Slug != "antigo" {
			t.Fatalf("Resolve = %q, %v", d.Slug, err)
		}
	})

	t.Run("malformed upstream response falls back", func(t *testing.T) {
		src := failingSource{Source: NewStatic(active), failSlugs: map[string]bool{"x": true}}
		d, err := Resolve(ctx, src, "x")
		if err != nil || d.Slug != "vendas" {
			t.Fatalf("Resolve = %q, %v", d.Slug, err)
		}
	})

	t.Run("empty bank needs setup", func(t *testing.T) {
		_, err := Resolve(ctx, NewStatic(), DefaultSlug)
		if !errors.Is(err, model.ErrSetupRequired) {
			t.Fatalf("err = %v, want ErrSetupRequired", err)
		}
	})

	t.Run("list failure needs setup", func(t *testing.T) {
		src := failingSource{Source: NewStatic(), listErr: errors.New("connection refused")}
		_, err := Resolve(ctx, src, DefaultSlug)
		if !errors.Is(err, model.ErrSetupRequired) {
			t.Fatalf("err = %v, want ErrSetupRequired", err)
		}
	})
}

func TestValidate(t *testing.T) {
	valid := model.Diagnostic{
		Title: "Teste",
		Slug:  "teste-1",
		Questions: []model.Question{
			{Text: "Q1", Options: []model.Option{{Text: "A", Points: 1}}},
		},
		Bands: []model.ProfileBand{{Profile: "P", ScoreMin: 0, ScoreMax: 100, Level: 1}},
	}
	if err := Validate(valid); err != nil {
		t.Fatalf("valid diagnostic rejected: %v", err)
	}

	lo, hi := 10, 10
	tests := []struct {
		name   string
		mutate func(d *model.Diagnostic)
		want   string
	}{
		{"missing title", func(d *model.Diagnostic) { d.Title = " " }, "title"},
		{"bad slug", func(d *model.Diagnostic) { d.Slug = "Com Espaço" }, "slug"},
		{"reserved slug", func(d *model.Diagnostic) { d.Slug = "dashboard" }, "reserved"},
		{"question without options", func(d *model.Diagnostic) {
			d.Questions = []model.Question{{Text: "Q"}}
		}, "no options"},
		{"inverted band", func(d *model.Diagnostic) {
			d.Bands = []model.ProfileBand{{Profile: "P", ScoreMin: 50, ScoreMax: 10, Level: 1}}
		}, "min > max"},
		{"level out of range", func(d *model.Diagnostic) {
			d.Bands = []model.ProfileBand{{Profile: "P", ScoreMax: 10, Level: 5}}
		}, "level"},
		{"raw bounds", func(d *model.Diagnostic) { d.MinRaw, d.MaxRaw = &lo, &hi }, "raw score"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.mutate(&d)
			err := Validate(d)
			if !IsValidationError(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestDecodeFormats(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"single yaml", "titulo: A\nslug: a\n", []string{"a"}},
		{"yaml list", "- titulo: A\n  slug: a\n- titulo: B\n  slug: b\n", []string{"a", "b"}},
		{"multi document", "titulo: A\nslug: a\n---\ntitulo: B\nslug: b\n", []string{"a", "b"}},
		{"json", `{"titulo":"A","slug":"a","perguntas":[{"texto":"Q","opcoes":[{"texto":"x","pontos":2}]}]}`, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := Decode([]byte(tt.input))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if len(ds) != len(tt.want) {
				t.Fatalf("got %d diagnostics, want %d", len(ds), len(tt.want))
			}
			for i, slug := range tt.want {
				if ds[i].Slug != slug {
					t.Errorf("diagnostic %d slug = %q, want %q", i, ds[i].Slug, slug)
				}
				if !ds[i].IsActive {
					t.Errorf("diagnostic %d should default to active", i)
				}
			}
		})
	}

	if _, err := Decode([]byte("")); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := Decode([]byte("just a string")); err == nil {
		t.Error("expected error for scalar document")
	}
}

func TestDefaultDiagnostic(t *testing.T) {
	d, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if d.Slug != DefaultSlug {
		t.Errorf("slug = %q", d.Slug)
	}
	if len(d.Questions) != 18 {
		t.Fatalf("questions = %d, want 18", len(d.Questions))
	}
	for i, q := range d.Questions {
		if len(q.Options) != 4 {
			t.Errorf("question %d has %d options", i+1, len(q.Options))
		}
	}
	if len(d.Bands) != 4 {
		t.Fatalf("bands = %d, want 4", len(d.Bands))
	}
	if d.Bands[0].ScoreMin != 0 || d.Bands[3].ScoreMax != 100 {
		t.Errorf("bands should cover 0..100, got %d..%d", d.Bands[0].ScoreMin, d.Bands[3].ScoreMax)
	}
	if err := Validate(d); err != nil {
		t.Errorf("embedded diagnostic does not validate: %v", err)
	}
}
