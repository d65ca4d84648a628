package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gatewaykit/z2m-provision/internal/logging"
	"github.com/gatewaykit/z2m-provision/internal/types"
)

func TestStatusFromExitCode(t *testing.T) {
	cases := []struct {
		code int
		want Status
	}{
		{types.ExitSuccess.Int(), StatusSuccess},
		{types.ExitNoArchiveError.Int(), StatusWarning},
		{types.ExitGenericError.Int(), StatusError},
		{types.ExitMountError.Int(), StatusError},
		{types.ExitPanicError.Int(), StatusError},
	}
	for _, tc := range cases {
		if got := StatusFromExitCode(tc.code); got != tc.want {
			t.Errorf("StatusFromExitCode(%d) = %s; want %s", tc.code, got, tc.want)
		}
	}
}

func TestGetStatusEmoji(t *testing.T) {
	for _, status := range []Status{StatusSuccess, StatusWarning, StatusError} {
		if GetStatusEmoji(status) == "" {
			t.Errorf("no emoji for status %s", status)
		}
	}
}

func TestWebhookSend(t *testing.T) {
	var received RunReport
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	logger := logging.New(types.LogLevelNone, false)
	notifier := NewWebhookNotifier(server.URL, logger)
	notifier.Send(context.Background(), RunReport{
		Host:      "gateway-01",
		Operation: "backup",
		Status:    StatusSuccess,
		ExitCode:  0,
		Archive:   "zigbee2mqtt-20260314-033005.tar.gz",
		Duration:  "4.2s",
		Timestamp: time.Now(),
	})

	if contentType != "application/json" {
		t.Errorf("Content-Type = %q", contentType)
	}
	if received.Host != "gateway-01" || received.Status != StatusSuccess {
		t.Errorf("payload = %+v", received)
	}
}

func TestWebhookDisabled(t *testing.T) {
	logger := logging.New(types.LogLevelNone, false)
	notifier := NewWebhookNotifier("", logger)
	if notifier.IsEnabled() {
		t.Errorf("notifier with empty URL reports enabled")
	}
	// Must not panic or block.
	notifier.Send(context.Background(), RunReport{})
}

func TestWebhookServerErrorIsSwallowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	logger := logging.New(types.LogLevelNone, false)
	notifier := NewWebhookNotifier(server.URL, logger)
	// Send must not propagate the failure.
	notifier.Send(context.Background(), RunReport{Status: StatusError})
}
