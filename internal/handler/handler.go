package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/tetrispositiva/diagnostico/internal/handler/views"
	"github.com/tetrispositiva/diagnostico/internal/llm"
	"github.com/tetrispositiva/diagnostico/internal/model"
	"github.com/tetrispositiva/diagnostico/internal/quizbank"
)

// Repository is the persistence the handlers need. Both the SQLite and the
// PostgreSQL stores satisfy it.
type Repository interface {
	GetDiagnosticByID(ctx context.Context, id string) (model.Diagnostic, error)
	ListDiagnostics(ctx context.Context) ([]model.Diagnostic, error)
	SaveDiagnostic(ctx context.Context, d model.Diagnostic) (model.Diagnostic, error)
	DeleteDiagnostic(ctx context.Context, id string) error

	CreateLead(ctx context.Context, l model.Lead) (model.Lead, error)
	ListLeads(ctx context.Context) ([]model.Lead, error)
	GetLead(ctx context.Context, id string) (model.Lead, error)
	DeleteLead(ctx context.Context, id string) error
	LeadRecords(ctx context.Context) ([]model.LeadRecord, error)

	CreateAuthSession(ctx context.Context, username string) (string, error)
	GetAuthSession(ctx context.Context, token string) (*model.AuthSession, error)
	DeleteAuthSession(ctx context.Context, token string) error

	GetImportedFileHash(ctx context.Context, filename string) (string, error)
	SetImportedFileHash(ctx context.Context, filename, hash string) error

	Ping(ctx context.Context) error
}

// Insighter writes a sales briefing for a lead.
type Insighter interface {
	LeadInsight(ctx context.Context, lead model.Lead, d model.Diagnostic) (*llm.Insight, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store        Repository
	bank         quizbank.Cache
	llm          Insighter
	config       model.AppConfig
	passwordHash []byte
}

// New creates a new Handler. The admin password is hashed once here; an empty
// password disables login. insighter may be nil.
func New(s Repository, bank quizbank.Cache, insighter Insighter, cfg model.AppConfig, adminPassword string) (*Handler, error) {
	if cfg.AdminUser == "" {
		cfg.AdminUser = "admin"
	}
	h := &Handler{store: s, bank: bank, llm: insighter, config: cfg}
	if adminPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
		h.passwordHash = hash
	}
	return h, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/diagnosticos", h.handleAPIListDiagnostics)
		r.Get("/diagnosticos/{slug}", h.handleAPIGetDiagnostic)
		r.Post("/leads", h.handleAPICreateLead)
		r.Post("/login", h.handleAPILogin)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAPIAuth)
			r.Post("/logout", h.handleAPILogout)
			r.Get("/leads", h.handleAPIListLeads)
			r.Delete("/leads/{id}", h.handleAPIDeleteLead)
			r.Get("/leads/{id}/insight", h.handleAPILeadInsight)
			r.Post("/diagnosticos", h.handleAPISaveDiagnostic)
			r.Delete("/diagnosticos/{id}", h.handleAPIDeleteDiagnostic)
			r.Get("/stats", h.handleAPIStats)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)

		r.Get("/dashboard/login", h.handleLoginPage)
		r.Post("/dashboard/login", h.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/dashboard", h.handleKanban)
			r.Get("/dashboard/analytics", h.handleAnalytics)
			r.Get("/dashboard/leads/{id}", h.handleLeadPage)
			r.Post("/dashboard/leads/{id}/delete", h.handleDeleteLead)
			r.Post("/dashboard/leads/{id}/insight", h.handleLeadInsight)
			r.Get("/dashboard/diagnosticos", h.handleDiagnosticsPage)
			r.Post("/dashboard/diagnosticos/upload", h.handleUploadDiagnostic)
			r.Post("/dashboard/diagnosticos/{id}/delete", h.handleDeleteDiagnostic)
			r.Get("/dashboard/export.xlsx", h.handleExportXLSX)
			r.Post("/dashboard/logout", h.handleLogout)
		})
	})

	if h.config.StaticDir != "" {
		r.Get("/*", h.handleStatic)
		return
	}
	r.Get("/", h.handleLanding)
	r.Get("/d/{slug}", h.handleLanding)
	r.Get("/{slug}", h.handleLanding)
}

// BasePathMiddleware stores the configured base path in the request context
// so views can build links.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// path prefixes an app path with the base path.
func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		slog.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "database unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleLanding(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if slug == "" {
		slug = h.config.DefaultSlug
	}
	if slug == "" {
		slug = quizbank.DefaultSlug
	}
	d, err := quizbank.Resolve(r.Context(), h.bank, slug)
	if err != nil {
		if !errors.Is(err, model.ErrSetupRequired) {
			slog.Error("resolve diagnostic", "slug", slug, "error", err)
		}
		h.renderStatus(w, r, http.StatusServiceUnavailable, views.SetupRequiredPage())
		return
	}
	h.renderHTML(w, r, views.LandingPage(d))
}

// handleStatic serves a single-page app build, falling back to index.html so
// client-side routes survive a reload.
func (h *Handler) handleStatic(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	full := filepath.Join(h.config.StaticDir, filepath.FromSlash(rel))
	if rel != "" && strings.HasPrefix(full, filepath.Clean(h.config.StaticDir)) {
		if info, err := os.Stat(full); err == nil && !info.IsDir() {
			http.ServeFile(w, r, full)
			return
		}
	}
	http.ServeFile(w, r, filepath.Join(h.config.StaticDir, "index.html"))
}

func (h *Handler) renderHTML(w http.ResponseWriter, r *http.Request, c templ.Component) {
	h.renderStatus(w, r, http.StatusOK, c)
}

func (h *Handler) renderStatus(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}
