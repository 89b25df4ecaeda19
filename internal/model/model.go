package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ScoreMode selects how a raw point total is mapped onto profile bands.
type ScoreMode string

const (
	// ScoreNormalized rescales the raw total linearly onto 0..100.
	ScoreNormalized ScoreMode = "normalized"
	// ScoreRaw compares the raw total directly against band ranges.
	ScoreRaw ScoreMode = "raw"
)

// Option is one selectable answer of a question.
type Option struct {
	ID     string `json:"id,omitempty"`
	Text   string `json:"text"`
	Points int    `json:"points"`
}

// Question is a single quiz question with ordered options.
type Question struct {
	ID      string   `json:"id,omitempty"`
	Text    string   `json:"text"`
	Options []Option `json:"options"`
}

// ProfileBand maps a score range to a qualitative profile.
type ProfileBand struct {
	ID                  string   `json:"id,omitempty"`
	Profile             string   `json:"profile"`
	ScoreMin            int      `json:"score_min"`
	ScoreMax            int      `json:"score_max"`
	Level               int      `json:"level"`
	Description         string   `json:"description"`
	MainRisk            string   `json:"main_risk"`
	RecommendedSolution string   `json:"recommended_solution"`
	Signals             []string `json:"signals"`
	EvolutionPlan       []string `json:"evolution_plan"`
}

// Contains reports whether score falls inside the band's inclusive range.
func (b ProfileBand) Contains(score int) bool {
	return score >= b.ScoreMin && score <= b.ScoreMax
}

// Diagnostic is a quiz definition authored in the admin editor.
type Diagnostic struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Slug        string        `json:"slug"`
	IsActive    bool          `json:"is_active"`
	ScoreMode   ScoreMode     `json:"score_mode"`
	MinRaw      *int          `json:"min_raw,omitempty"` // nil derives from the questions
	MaxRaw      *int          `json:"max_raw,omitempty"`
	Questions   []Question    `json:"questions"`
	Bands       []ProfileBand `json:"bands"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Result is the outcome of scoring one completed quiz run.
type Result struct {
	RawTotal            int      `json:"raw_total"`
	Score               int      `json:"score"`
	Profile             string   `json:"profile"`
	Level               int      `json:"level"`
	Description         string   `json:"description"`
	Signals             []string `json:"signals"`
	MainRisk            string   `json:"main_risk"`
	EvolutionPlan       []string `json:"evolution_plan"`
	RecommendedSolution string   `json:"recommended_solution"`
}

// Contact holds the lead capture form fields.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Lead is a stored quiz run with contact details.
type Lead struct {
	ID           string    `json:"id"`
	Contact      Contact   `json:"contact"`
	Answers      []int     `json:"answers"`
	RawTotal     int       `json:"raw_total"`
	Score        int       `json:"score"`
	Profile      string    `json:"profile"`
	DiagnosticID string    `json:"diagnostic_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthSession represents an admin authentication session.
type AuthSession struct {
	ID        string
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// AppConfig holds runtime server parameters set via CLI flags.
type AppConfig struct {
	BasePath      string // URL prefix for sub-path deployments
	SecureCookies bool
	AdminUser     string
	DefaultSlug   string
	StaticDir     string // optional SPA build served at /
}

type adminCtxKey struct{}

// ContextWithAdmin stores the authenticated admin username in the request context.
func ContextWithAdmin(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, adminCtxKey{}, username)
}

// AdminFromContext retrieves the authenticated admin username, or "".
func AdminFromContext(ctx context.Context) string {
	u, _ := ctx.Value(adminCtxKey{}).(string)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// WithIDs returns a copy of d where every missing ID (the diagnostic, its
// questions, options and bands) is filled with a fresh UUID, the score mode
// defaults to normalized and band lists are never nil.
func (d Diagnostic) WithIDs() Diagnostic {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.ScoreMode == "" {
		d.ScoreMode = ScoreNormalized
	}
	questions := make([]Question, len(d.Questions))
	for i, q := range d.Questions {
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		opts := make([]Option, len(q.Options))
		for j, o := range q.Options {
			if o.ID == "" {
				o.ID = uuid.NewString()
			}
			opts[j] = o
		}
		q.Options = opts
		questions[i] = q
	}
	d.Questions = questions
	bands := make([]ProfileBand, len(d.Bands))
	for i, b := range d.Bands {
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		if b.Signals == nil {
			b.Signals = []string{}
		}
		if b.EvolutionPlan == nil {
			b.EvolutionPlan = []string{}
		}
		bands[i] = b
	}
	d.Bands = bands
	return d
}
