package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gatewaykit/z2m-provision/internal/logging"
)

// WebhookNotifier posts a JSON summary of each run to a configured URL.
// Delivery is best effort and never changes the run outcome.
type WebhookNotifier struct {
	URL    string
	logger *logging.Logger
	client *http.Client
}

// RunReport is the webhook payload.
type RunReport struct {
	Host      string    `json:"host"`
	Operation string    `json:"operation"`
	Status    Status    `json:"status"`
	ExitCode  int       `json:"exit_code"`
	Message   string    `json:"message,omitempty"`
	Archive   string    `json:"archive,omitempty"`
	Duration  string    `json:"duration"`
	Timestamp time.Time `json:"timestamp"`
}

// NewWebhookNotifier returns a notifier for the given URL. An empty URL
// disables delivery.
func NewWebhookNotifier(url string, logger *logging.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		URL:    url,
		logger: logger,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// IsEnabled reports whether a URL is configured.
func (w *WebhookNotifier) IsEnabled() bool {
	return w.URL != ""
}

// Send delivers the report. Errors are logged and swallowed.
func (w *WebhookNotifier) Send(ctx context.Context, report RunReport) {
	if !w.IsEnabled() {
		return
	}
	if err := w.send(ctx, report); err != nil {
		w.logger.Warning("Webhook notification failed: %v", err)
		return
	}
	w.logger.Debug("Webhook notification delivered to %s", w.URL)
}

func (w *WebhookNotifier) send(ctx context.Context, report RunReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post report: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %s", resp.Status)
	}
	return nil
}
