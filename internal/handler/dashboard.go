package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tetrispositiva/diagnostico/internal/analytics"
	"github.com/tetrispositiva/diagnostico/internal/export"
	"github.com/tetrispositiva/diagnostico/internal/handler/views"
	appI18n "github.com/tetrispositiva/diagnostico/internal/i18n"
	"github.com/tetrispositiva/diagnostico/internal/model"
)

func (h *Handler) handleKanban(w http.ResponseWriter, r *http.Request) {
	leads, err := h.store.ListLeads(r.Context())
	if err != nil {
		slog.Error("failed to list leads", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	diagnostics, err := h.store.ListDiagnostics(r.Context())
	if err != nil {
		slog.Error("failed to list diagnostics", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	q := r.URL.Query().Get("q")
	cols := analytics.Board(analytics.Filter(leads, q), analytics.Profiles(diagnostics))
	h.renderHTML(w, r, views.KanbanPage(cols, q))
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	st, err := h.stats(r)
	if err != nil {
		slog.Error("compute stats", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.renderHTML(w, r, views.AnalyticsPage(st))
}

// leadView loads a lead and, when it still exists, its diagnostic.
func (h *Handler) leadView(r *http.Request) (views.LeadView, error) {
	lead, err := h.store.GetLead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return views.LeadView{}, err
	}
	v := views.LeadView{Lead: lead, CanInsight: h.llm != nil}
	if lead.DiagnosticID != "" {
		d, err := h.store.GetDiagnosticByID(r.Context(), lead.DiagnosticID)
		switch {
		case err == nil:
			v.Diagnostic = &d
		case !errors.Is(err, model.ErrDiagnosticNotFound):
			return views.LeadView{}, err
		}
	}
	return v, nil
}

func (h *Handler) handleLeadPage(w http.ResponseWriter, r *http.Request) {
	v, err := h.leadView(r)
	if err != nil {
		h.leadError(w, r, err)
		return
	}
	h.renderHTML(w, r, views.LeadPage(v))
}

func (h *Handler) handleLeadInsight(w http.ResponseWriter, r *http.Request) {
	v, err := h.leadView(r)
	if err != nil {
		h.leadError(w, r, err)
		return
	}
	if h.llm == nil || v.Diagnostic == nil {
		v.InsightErr = appI18n.T(r.Context(), "InsightUnavailable")
		h.renderHTML(w, r, views.LeadPage(v))
		return
	}
	insight, err := h.llm.LeadInsight(r.Context(), v.Lead, *v.Diagnostic)
	if err != nil {
		slog.Error("lead insight", "lead_id", v.Lead.ID, "error", err)
		v.InsightErr = appI18n.T(r.Context(), "InsightUnavailable")
	}
	v.Insight = insight
	h.renderHTML(w, r, views.LeadPage(v))
}

func (h *Handler) handleDeleteLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteLead(r.Context(), id); err != nil {
		h.leadError(w, r, err)
		return
	}
	slog.Info("deleted lead", "id", id, "admin", model.AdminFromContext(r.Context()))
	http.Redirect(w, r, h.path("/dashboard"), http.StatusSeeOther)
}

func (h *Handler) leadError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, model.ErrLeadNotFound) {
		http.NotFound(w, r)
		return
	}
	slog.Error("lead lookup", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (h *Handler) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.LeadRecords(r.Context())
	if err != nil {
		slog.Error("failed to load lead records", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="leads.xlsx"`)
	if err := export.XLSX(w, records); err != nil {
		slog.Error("xlsx export", "error", err)
	}
}
