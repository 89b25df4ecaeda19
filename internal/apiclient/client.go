// Package apiclient talks to a running diagnostico server. It serves as the
// quiz Source and lead sink for the terminal wizard.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/tetrispositiva/diagnostico/internal/model"
	"github.com/tetrispositiva/diagnostico/internal/wire"
)

// ErrServiceUnavailable wraps transport failures.
var ErrServiceUnavailable = errors.New("diagnostico service unavailable")

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return e.Message
}

type errorResponse struct {
	Error string `json:"error"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

// Client calls the public and admin endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// New returns a client for baseURL. A nil httpClient uses http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// WithToken returns a copy that sends token as a Bearer credential.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// GetDiagnostic fetches one diagnostic. Error statuses and bodies that are
// not JSON (an HTML fallback page, say) are both reported as not found.
func (c *Client) GetDiagnostic(ctx context.Context, slug string) (model.Diagnostic, error) {
	var w wire.Diagnostic
	err := c.doJSON(ctx, http.MethodGet, "/api/diagnosticos/"+url.PathEscape(slug), nil, &w)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) || errors.Is(err, errNotJSON) {
			return model.Diagnostic{}, fmt.Errorf("%w: %s: %v", model.ErrDiagnosticNotFound, slug, err)
		}
		return model.Diagnostic{}, err
	}
	return w.Model(), nil
}

// ListDiagnostics fetches every diagnostic.
func (c *Client) ListDiagnostics(ctx context.Context) ([]model.Diagnostic, error) {
	var ws []wire.Diagnostic
	if err := c.doJSON(ctx, http.MethodGet, "/api/diagnosticos", nil, &ws); err != nil {
		return nil, err
	}
	out := make([]model.Diagnostic, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Model())
	}
	return out, nil
}

// SaveLead posts a finished run.
func (c *Client) SaveLead(ctx context.Context, p wire.LeadPayload) error {
	return c.doJSON(ctx, http.MethodPost, "/api/leads", p, nil)
}

// Login exchanges admin credentials for a token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp loginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/login", loginRequest{Username: username, Password: password}, &resp); err != nil {
		return "", err
	}
	if !resp.Success || resp.Token == "" {
		return "", errors.New("login response carried no token")
	}
	return resp.Token, nil
}

// Logout revokes the client's token on the server.
func (c *Client) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/api/logout", nil, nil)
}

// Leads lists stored leads; requires a token.
func (c *Client) Leads(ctx context.Context) ([]model.Lead, error) {
	var ws []wire.Lead
	if err := c.doJSON(ctx, http.MethodGet, "/api/leads", nil, &ws); err != nil {
		return nil, err
	}
	out := make([]model.Lead, 0, len(ws))
	for _, w := range ws {
		l := w.LeadPayload.Model()
		l.ID = w.ID
		out = append(out, l)
	}
	return out, nil
}

var errNotJSON = errors.New("response is not JSON")

func (c *Client) doJSON(ctx context.Context, method, path string, requestBody any, responseBody any) error {
	var body io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := APIError{StatusCode: resp.StatusCode}
		var payload errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && strings.TrimSpace(payload.Error) != "" {
			apiErr.Message = payload.Error
		}
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return &apiErr
	}

	if responseBody == nil {
		return nil
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != "application/json" {
		return fmt.Errorf("%w: %s", errNotJSON, resp.Header.Get("Content-Type"))
	}
	if err := json.NewDecoder(resp.Body).Decode(responseBody); err != nil {
		return fmt.Errorf("%w: %v", errNotJSON, err)
	}
	return nil
}
