// Package quizbank loads diagnostics for the wizard and resolves which one a
// visitor gets.
package quizbank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/tetrispositiva/diagnostico/internal/model"
)

// DefaultSlug is served at the site root.
const DefaultSlug = "diagnostico-financeiro"

// Source fetches diagnostics from a backing store, a remote API, or memory.
type Source interface {
	GetDiagnostic(ctx context.Context, slug string) (model.Diagnostic, error)
	ListDiagnostics(ctx context.Context) ([]model.Diagnostic, error)
}

// SlugFromPath derives the requested slug from a request path.
// Both /d/<slug> and /<slug> are accepted.
func SlugFromPath(path string) string {
	if path == "" || path == "/" || path == "/dashboard" {
		return DefaultSlug
	}
	slug := strings.TrimPrefix(path, "/d/")
	slug = strings.TrimPrefix(slug, "/")
	slug = strings.TrimSuffix(slug, "/")
	if slug == "" {
		return DefaultSlug
	}
	return slug
}

// Resolve loads the diagnostic for slug. Any failure falls back to the first
// active diagnostic the source lists; model.ErrSetupRequired is returned when
// nothing can be resolved.
func Resolve(ctx context.Context, src Source, slug string) (model.Diagnostic, error) {
	d, err := src.GetDiagnostic(ctx, slug)
	if err == nil {
		return d, nil
	}
	slog.Warn("diagnostic lookup failed, falling back", "slug", slug, "error", err)

	all, err := src.ListDiagnostics(ctx)
	if err != nil {
		slog.Error("list diagnostics for fallback", "error", err)
		return model.Diagnostic{}, fmt.Errorf("%w: %v", model.ErrSetupRequired, err)
	}
	candidate, ok := firstActive(all)
	if !ok {
		return model.Diagnostic{}, model.ErrSetupRequired
	}
	d, err = src.GetDiagnostic(ctx, candidate.Slug)
	if err != nil {
		slog.Error("load fallback diagnostic", "slug", candidate.Slug, "error", err)
		return model.Diagnostic{}, fmt.Errorf("%w: %v", model.ErrSetupRequired, err)
	}
	return d, nil
}

func firstActive(all []model.Diagnostic) (model.Diagnostic, bool) {
	for _, d := range all {
		if d.IsActive {
			return d, true
		}
	}
	if len(all) > 0 {
		return all[0], true
	}
	return model.Diagnostic{}, false
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidationError lists every problem found in a diagnostic definition.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid diagnostic: " + strings.Join(e.Problems, "; ")
}

// Validate checks a diagnostic before it is stored.
func Validate(d model.Diagnostic) error {
	var problems []string
	if strings.TrimSpace(d.Title) == "" {
		problems = append(problems, "title is required")
	}
	if !slugPattern.MatchString(d.Slug) {
		problems = append(problems, fmt.Sprintf("slug %q must be lowercase letters, digits and dashes", d.Slug))
	}
	if d.Slug == "dashboard" || d.Slug == "api" || d.Slug == "d" {
		problems = append(problems, fmt.Sprintf("slug %q is reserved", d.Slug))
	}
	for i, q := range d.Questions {
		if strings.TrimSpace(q.Text) == "" {
			problems = append(problems, fmt.Sprintf("question %d has no text", i+1))
		}
		if len(q.Options) == 0 {
			problems = append(problems, fmt.Sprintf("question %d has no options", i+1))
		}
	}
	for i, b := range d.Bands {
		if b.ScoreMin > b.ScoreMax {
			problems = append(problems, fmt.Sprintf("profile %d (%s) has min > max", i+1, b.Profile))
		}
		if b.Level < 1 || b.Level > 4 {
			problems = append(problems, fmt.Sprintf("profile %d (%s) level must be 1..4", i+1, b.Profile))
		}
		if strings.TrimSpace(b.Profile) == "" {
			problems = append(problems, fmt.Sprintf("profile %d has no name", i+1))
		}
	}
	if d.MinRaw != nil && d.MaxRaw != nil && *d.MinRaw >= *d.MaxRaw {
		problems = append(problems, "raw score minimum must be below maximum")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// IsValidationError reports whether err came from Validate.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Static serves diagnostics held in memory, keyed by slug.
type Static struct {
	order  []string
	bySlug map[string]model.Diagnostic
}

// NewStatic builds a static source preserving the given order for listing.
func NewStatic(diagnostics ...model.Diagnostic) *Static {
	s := &Static{bySlug: make(map[string]model.Diagnostic, len(diagnostics))}
	for _, d := range diagnostics {
		if _, dup := s.bySlug[d.Slug]; !dup {
			s.order = append(s.order, d.Slug)
		}
		s.bySlug[d.Slug] = d
	}
	return s
}

// GetDiagnostic returns the diagnostic with the given slug.
func (s *Static) GetDiagnostic(_ context.Context, slug string) (model.Diagnostic, error) {
	if d, ok := s.bySlug[slug]; ok {
		return d, nil
	}
	return model.Diagnostic{}, model.ErrDiagnosticNotFound
}

// ListDiagnostics returns every diagnostic in insertion order.
func (s *Static) ListDiagnostics(_ context.Context) ([]model.Diagnostic, error) {
	out := make([]model.Diagnostic, 0, len(s.order))
	for _, slug := range s.order {
		out = append(out, s.bySlug[slug])
	}
	return out, nil
}
