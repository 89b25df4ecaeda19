package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/tetrispositiva/diagnostico/internal/handler/views"
	appI18n "github.com/tetrispositiva/diagnostico/internal/i18n"
	"github.com/tetrispositiva/diagnostico/internal/model"
)

const (
	sessionCookieName = "session"
	csrfCookieName    = "csrf_token"
)

const (
	msgLoginDisabled   = "Admin password not configured in environment"
	msgUnauthenticated = "authentication required"
)

var (
	errLoginDisabled  = errors.New("admin password not configured")
	errBadCredentials = errors.New("bad credentials")
)

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (h *Handler) setCSRFCookie(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	token, err := generateCSRFToken()
	if err != nil {
		slog.Error("failed to generate CSRF token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return r, false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: false,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return r.WithContext(model.ContextWithCSRFToken(r.Context(), token)), true
}

// csrfMiddleware issues a fresh token on every request and checks the
// double-submitted token on state-changing ones.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			cookie, err := r.Cookie(csrfCookieName)
			if err != nil || cookie.Value == "" {
				slog.Warn("CSRF cookie missing")
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}
			formToken := r.FormValue("csrf_token")
			if formToken == "" {
				slog.Warn("CSRF form token missing")
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}
			if len(formToken) != len(cookie.Value) || subtle.ConstantTimeCompare([]byte(formToken), []byte(cookie.Value)) != 1 {
				slog.Warn("CSRF token mismatch")
				http.Error(w, "invalid csrf token", http.StatusForbidden)
				return
			}
		}
		r, ok := h.setCSRFCookie(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// adminFromToken returns the username owning token, or "".
func (h *Handler) adminFromToken(r *http.Request, token string) string {
	if token == "" {
		return ""
	}
	sess, err := h.store.GetAuthSession(r.Context(), token)
	if err != nil {
		slog.Error("failed to get auth session", "error", err)
		return ""
	}
	if sess == nil {
		return ""
	}
	return sess.Username
}

func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// requireAuth is middleware that checks for a valid session cookie.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := h.adminFromToken(r, sessionToken(r))
		if user == "" {
			h.redirectToLogin(w, r)
			return
		}
		ctx := model.ContextWithAdmin(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAPIAuth accepts a Bearer token or the dashboard session cookie.
func (h *Handler) requireAPIAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			token = sessionToken(r)
		}
		user := h.adminFromToken(r, token)
		if user == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: msgUnauthenticated})
			return
		}
		ctx := model.ContextWithAdmin(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.path("/dashboard/login"), http.StatusSeeOther)
}

// checkCredentials compares against the configured admin. Both fields are
// always checked so timing does not reveal which one was wrong.
func (h *Handler) checkCredentials(username, password string) error {
	if len(h.passwordHash) == 0 {
		return errLoginDisabled
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(h.config.AdminUser)) == 1
	passErr := bcrypt.CompareHashAndPassword(h.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		return errBadCredentials
	}
	return nil
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if h.adminFromToken(r, sessionToken(r)) != "" {
		http.Redirect(w, r, h.path("/dashboard"), http.StatusSeeOther)
		return
	}
	h.renderHTML(w, r, views.LoginPage(""))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")

	switch err := h.checkCredentials(username, password); {
	case errors.Is(err, errLoginDisabled):
		slog.Error("login attempted without admin password configured")
		h.renderStatus(w, r, http.StatusInternalServerError, views.LoginPage(appI18n.T(r.Context(), "LoginNotConfigured")))
		return
	case err != nil:
		slog.Warn("failed admin login", "username", username)
		h.renderStatus(w, r, http.StatusUnauthorized, views.LoginPage(appI18n.T(r.Context(), "LoginError")))
		return
	}

	token, err := h.store.CreateAuthSession(r.Context(), h.config.AdminUser)
	if err != nil {
		slog.Error("failed to create auth session", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.setSessionCookie(w, token)
	http.Redirect(w, r, h.path("/dashboard"), http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		if err := h.store.DeleteAuthSession(r.Context(), token); err != nil {
			slog.Error("failed to delete auth session", "error", err)
		}
	}
	h.setSessionCookie(w, "")
	http.Redirect(w, r, h.path("/dashboard/login"), http.StatusSeeOther)
}

// setSessionCookie stores token, or expires the cookie when token is empty.
func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	c := &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	}
	if token == "" {
		c.MaxAge = -1
	}
	http.SetCookie(w, c)
}
