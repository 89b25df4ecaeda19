package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tetrispositiva/diagnostico/internal/analytics"
	appI18n "github.com/tetrispositiva/diagnostico/internal/i18n"
	"github.com/tetrispositiva/diagnostico/internal/model"
	"github.com/tetrispositiva/diagnostico/internal/quizbank"
	"github.com/tetrispositiva/diagnostico/internal/wire"
	"github.com/tetrispositiva/diagnostico/internal/wizard"
)

type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

type statsResponse struct {
	Total        int                      `json:"total"`
	AverageRaw   float64                  `json:"average_raw"`
	AverageScore float64                  `json:"average_score"`
	TopProfile   string                   `json:"top_profile"`
	Counts       []analytics.ProfileCount `json:"counts"`
}

func (h *Handler) handleAPIListDiagnostics(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListDiagnostics(r.Context())
	if err != nil {
		slog.Error("list diagnostics", "error", err)
		writeStoreError(w, err)
		return
	}
	out := make([]wire.Diagnostic, 0, len(list))
	for _, d := range list {
		out = append(out, wire.FromDiagnostic(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleAPIGetDiagnostic(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	d, err := h.bank.GetDiagnostic(r.Context(), slug)
	if err != nil {
		if !errors.Is(err, model.ErrDiagnosticNotFound) {
			slog.Error("get diagnostic", "slug", slug, "error", err)
		}
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.FromDiagnostic(d))
}

// handleAPICreateLead stores a finished run. The contact fields are checked
// with the same rules the wizard applies client-side.
func (h *Handler) handleAPICreateLead(w http.ResponseWriter, r *http.Request) {
	var p wire.LeadPayload
	if err := decodeJSON(w, r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	form := wizard.LeadForm{Name: p.Nome, Email: p.Email, Phone: p.Whatsapp}
	if fieldErrs := form.Validate(); fieldErrs != nil {
		fields := make(map[string]string, len(fieldErrs))
		for field, msgID := range fieldErrs {
			fields[field] = appI18n.T(r.Context(), msgID)
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fieldErrs.Error(), Fields: fields})
		return
	}

	l := p.Model()
	l.Contact = form.Contact()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	saved, err := h.store.CreateLead(r.Context(), l)
	if err != nil {
		slog.Error("create lead", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to save lead"})
		return
	}
	slog.Info("lead stored", "id", saved.ID, "profile", saved.Profile, "score", saved.Score)
	writeJSON(w, http.StatusCreated, successResponse{Success: true, Data: []wire.Lead{wire.FromLead(saved)}})
}

func (h *Handler) handleAPILogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	switch err := h.checkCredentials(req.Username, req.Password); {
	case errors.Is(err, errLoginDisabled):
		slog.Error("login attempted without admin password configured")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msgLoginDisabled})
		return
	case err != nil:
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: appI18n.T(r.Context(), "LoginError")})
		return
	}

	token, err := h.store.CreateAuthSession(r.Context(), h.config.AdminUser)
	if err != nil {
		slog.Error("failed to create auth session", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "request failed"})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Success: true, Token: token})
}

func (h *Handler) handleAPILogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		token = sessionToken(r)
	}
	if err := h.store.DeleteAuthSession(r.Context(), token); err != nil {
		slog.Error("failed to delete auth session", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "request failed"})
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *Handler) handleAPIListLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := h.store.ListLeads(r.Context())
	if err != nil {
		slog.Error("list leads", "error", err)
		writeStoreError(w, err)
		return
	}
	leads = analytics.Filter(leads, r.URL.Query().Get("q"))
	out := make([]wire.Lead, 0, len(leads))
	for _, l := range leads {
		out = append(out, wire.FromLead(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleAPIDeleteLead(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteLead(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *Handler) handleAPILeadInsight(w http.ResponseWriter, r *http.Request) {
	if h.llm == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "insights are disabled"})
		return
	}
	lead, err := h.store.GetLead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	d, err := h.store.GetDiagnosticByID(r.Context(), lead.DiagnosticID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	insight, err := h.llm.LeadInsight(r.Context(), lead, d)
	if err != nil {
		slog.Error("lead insight", "lead_id", lead.ID, "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "insight generation failed"})
		return
	}
	writeJSON(w, http.StatusOK, insight)
}

// handleAPISaveDiagnostic creates a diagnostic, or updates it when the body
// carries the ID of an existing one.
func (h *Handler) handleAPISaveDiagnostic(w http.ResponseWriter, r *http.Request) {
	var body wire.Diagnostic
	if err := decodeJSON(w, r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	d := body.Model()
	if err := quizbank.Validate(d); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var previousSlug string
	if d.ID != "" {
		if old, err := h.store.GetDiagnosticByID(r.Context(), d.ID); err == nil {
			previousSlug = old.Slug
		}
	}
	saved, err := h.store.SaveDiagnostic(r.Context(), d)
	if err != nil {
		if !errors.Is(err, model.ErrDuplicateSlug) {
			slog.Error("save diagnostic", "slug", d.Slug, "error", err)
		}
		writeStoreError(w, err)
		return
	}
	h.bank.Invalidate(r.Context(), saved.Slug)
	if previousSlug != "" && previousSlug != saved.Slug {
		h.bank.Invalidate(r.Context(), previousSlug)
	}
	writeJSON(w, http.StatusOK, wire.FromDiagnostic(saved))
}

func (h *Handler) handleAPIDeleteDiagnostic(w http.ResponseWriter, r *http.Request) {
	if err := h.deleteDiagnostic(r, chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// deleteDiagnostic removes a diagnostic and drops it from the bank cache.
func (h *Handler) deleteDiagnostic(r *http.Request, id string) error {
	d, err := h.store.GetDiagnosticByID(r.Context(), id)
	if err != nil {
		return err
	}
	if err := h.store.DeleteDiagnostic(r.Context(), id); err != nil {
		return err
	}
	h.bank.Invalidate(r.Context(), d.Slug)
	slog.Info("deleted diagnostic", "id", id, "slug", d.Slug)
	return nil
}

func (h *Handler) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.stats(r)
	if err != nil {
		slog.Error("compute stats", "error", err)
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Total:        st.Total,
		AverageRaw:   st.AverageRaw,
		AverageScore: st.AverageScore,
		TopProfile:   st.TopProfile,
		Counts:       st.Counts,
	})
}

func (h *Handler) stats(r *http.Request) (analytics.Stats, error) {
	leads, err := h.store.ListLeads(r.Context())
	if err != nil {
		return analytics.Stats{}, err
	}
	diagnostics, err := h.store.ListDiagnostics(r.Context())
	if err != nil {
		return analytics.Stats{}, err
	}
	return analytics.Compute(leads, analytics.Profiles(diagnostics)), nil
}
