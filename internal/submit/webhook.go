package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tetrispositiva/diagnostico/internal/wire"
)

// Webhook posts the lead payload as JSON to an external URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook returns nil when url is empty, so the call is skipped.
func NewWebhook(url string, client *http.Client) *Webhook {
	if url == "" {
		return nil
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Webhook{url: url, client: client}
}

// SaveLead delivers p. Any non-2xx status is an error.
func (w *Webhook) SaveLead(ctx context.Context, p wire.LeadPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("call webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
