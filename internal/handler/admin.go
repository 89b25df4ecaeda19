package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tetrispositiva/diagnostico/internal/handler/views"
	appI18n "github.com/tetrispositiva/diagnostico/internal/i18n"
	"github.com/tetrispositiva/diagnostico/internal/model"
	"github.com/tetrispositiva/diagnostico/internal/quizbank"
)

func (h *Handler) handleDiagnosticsPage(w http.ResponseWriter, r *http.Request) {
	var notice views.Notice
	if r.URL.Query().Get("deleted") != "" {
		notice.Text = appI18n.T(r.Context(), "DiagnosticDeleted")
	}
	h.renderDiagnostics(w, r, http.StatusOK, notice)
}

func (h *Handler) renderDiagnostics(w http.ResponseWriter, r *http.Request, status int, notice views.Notice) {
	list, err := h.store.ListDiagnostics(r.Context())
	if err != nil {
		slog.Error("failed to list diagnostics", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.renderStatus(w, r, status, views.DiagnosticsPage(list, notice))
}

// handleUploadDiagnostic imports one or more diagnostics from a YAML or JSON
// file. A file whose content was already imported under the same name is
// skipped.
func (h *Handler) handleUploadDiagnostic(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "file too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("diagnostic_file")
	if err != nil {
		http.Error(w, "no file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		return
	}

	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])

	storedHash, err := h.store.GetImportedFileHash(r.Context(), header.Filename)
	if err != nil {
		slog.Error("failed to check import status", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if storedHash == hash {
		h.renderDiagnostics(w, r, http.StatusOK, views.Notice{Text: appI18n.T(r.Context(), "UploadDuplicate"), Error: true})
		return
	}

	invalid := func(err error) {
		h.renderDiagnostics(w, r, http.StatusBadRequest, views.Notice{
			Text:  appI18n.Td(r.Context(), "UploadInvalid", map[string]any{"Error": err.Error()}),
			Error: true,
		})
	}

	diagnostics, err := quizbank.Decode(data)
	if err != nil {
		invalid(err)
		return
	}
	for _, d := range diagnostics {
		if err := quizbank.Validate(d); err != nil {
			invalid(err)
			return
		}
	}

	for _, d := range diagnostics {
		saved, err := h.store.SaveDiagnostic(r.Context(), d)
		if errors.Is(err, model.ErrDuplicateSlug) {
			invalid(err)
			return
		}
		if err != nil {
			slog.Error("failed to save diagnostic", "slug", d.Slug, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		h.bank.Invalidate(r.Context(), saved.Slug)
	}

	if err := h.store.SetImportedFileHash(r.Context(), header.Filename, hash); err != nil {
		slog.Error("failed to record import", "error", err)
	}

	slog.Info("uploaded diagnostics via admin", "filename", header.Filename, "count", len(diagnostics))
	h.renderDiagnostics(w, r, http.StatusOK, views.Notice{Text: appI18n.Tp(r.Context(), "UploadSuccess", len(diagnostics))})
}

func (h *Handler) handleDeleteDiagnostic(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.deleteDiagnostic(r, id); err != nil {
		if errors.Is(err, model.ErrDiagnosticNotFound) {
			http.NotFound(w, r)
			return
		}
		slog.Error("failed to delete diagnostic", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.path("/dashboard/diagnosticos?deleted=1"), http.StatusSeeOther)
}
