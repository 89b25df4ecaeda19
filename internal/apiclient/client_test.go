package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tetrispositiva/diagnostico/internal/model"
	"github.com/tetrispositiva/diagnostico/internal/quizbank"
	"github.com/tetrispositiva/diagnostico/internal/wire"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	active := true
	vendas := wire.Diagnostic{ID: "d2", Titulo: "Vendas", Slug: "vendas", IsActive: &active,
		Perguntas: []wire.Question{{Texto: "Q", Opcoes: []wire.Option{{Texto: "a", Pontos: 2}}}}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/diagnosticos/vendas", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, vendas)
	})
	mux.HandleFunc("GET /api/diagnosticos/html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<!doctype html><html></html>"))
	})
	mux.HandleFunc("GET /api/diagnosticos/{slug}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Diagnóstico não encontrado"})
	})
	mux.HandleFunc("GET /api/diagnosticos", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []wire.Diagnostic{vendas})
	})
	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Username != "admin" || req.Password != "s3nha" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Credenciais inválidas"})
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{Success: true, Token: "tok-1"})
	})
	mux.HandleFunc("GET /api/leads", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		writeJSON(w, http.StatusOK, []wire.Lead{{ID: "l1", LeadPayload: wire.LeadPayload{Nome: "Ana", Score: 67}}})
	})
	mux.HandleFunc("POST /api/leads", func(w http.ResponseWriter, r *http.Request) {
		var p wire.LeadPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Nome == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid lead"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGetDiagnostic(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, srv.Client())
	ctx := context.Background()

	d, err := c.GetDiagnostic(ctx, "vendas")
	if err != nil {
		t.Fatalf("GetDiagnostic: %v", err)
	}
	if d.Title != "Vendas" || len(d.Questions) != 1 || d.Questions[0].Options[0].Points != 2 {
		t.Errorf("diagnostic = %+v", d)
	}

	for _, slug := range []string{"nope", "html"} {
		_, err := c.GetDiagnostic(ctx, slug)
		if !errors.Is(err, model.ErrDiagnosticNotFound) {
			t.Errorf("GetDiagnostic(%q) err = %v, want not found", slug, err)
		}
	}
}

func TestResolveThroughClientFallsBack(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, srv.Client())

	d, err := quizbank.Resolve(context.Background(), c, "html")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Slug != "vendas" {
		t.Errorf("fallback slug = %q, want vendas", d.Slug)
	}
}

func TestServiceUnavailable(t *testing.T) {
	srv := newServer(t)
	url := srv.URL
	srv.Close()

	_, err := New(url, nil).ListDiagnostics(context.Background())
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("err = %v, want ErrServiceUnavailable", err)
	}
}

func TestLoginAndLeads(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, srv.Client())
	ctx := context.Background()

	_, err := c.Login(ctx, "admin", "errada")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Login with bad password: %v", err)
	}
	if apiErr.Message != "Credenciais inválidas" {
		t.Errorf("message = %q", apiErr.Message)
	}

	if _, err := c.Leads(ctx); err == nil {
		t.Fatal("Leads without token should fail")
	}

	tok, err := c.Login(ctx, "admin", "s3nha")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	leads, err := c.WithToken(tok).Leads(ctx)
	if err != nil {
		t.Fatalf("Leads: %v", err)
	}
	if len(leads) != 1 || leads[0].ID != "l1" || leads[0].Contact.Name != "Ana" {
		t.Errorf("leads = %+v", leads)
	}
}

func TestSaveLead(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, srv.Client())
	if err := c.SaveLead(context.Background(), wire.LeadPayload{Nome: "Ana"}); err != nil {
		t.Fatalf("SaveLead: %v", err)
	}
	if err := c.SaveLead(context.Background(), wire.LeadPayload{}); err == nil {
		t.Error("expected 400 to surface as an error")
	}
}
