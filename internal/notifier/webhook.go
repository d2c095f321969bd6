package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/guardian-iov/guardian/internal/triage"
)

// Webhook mirrors alerts to an HTTP endpoint as a JSON POST. Useful for
// paging integrations that live outside the MQTT fabric.
type Webhook struct {
	url    string
	client *http.Client
}

var _ triage.Notifier = (*Webhook)(nil)

// NewWebhook creates a webhook notifier targeting url.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Publish posts the alert. Any non-2xx response is a delivery failure.
func (n *Webhook) Publish(ctx context.Context, alert *triage.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert for %s: %w", alert.VIN, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert to %s: %w", n.url, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s returned status %d", n.url, resp.StatusCode)
	}
	return nil
}
