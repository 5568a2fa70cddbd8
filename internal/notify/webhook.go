// Package notify posts best-effort messages to an outbound webhook. Failures
// are logged and never surface to the gateway's clients.
package notify

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Webhook delivers JSON payloads to one fixed endpoint. A zero URL disables
// delivery entirely.
type Webhook struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

// NewWebhook builds a webhook sender. Pass an empty url to disable it.
func NewWebhook(url string, log *zap.Logger) *Webhook {
	if log == nil {
		log = zap.NewNop()
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

// Enabled reports whether a destination is configured.
func (w *Webhook) Enabled() bool {
	return w != nil && w.url != ""
}

type payload struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

// Send posts one message attributed to username. Errors are returned for the
// caller to log; the gateway invokes Send from a goroutine so a slow webhook
// never stalls a connection worker.
func (w *Webhook) Send(ctx context.Context, username, message string) error {
	if !w.Enabled() {
		return nil
	}

	body, err := codec.Marshal(payload{Content: message, Username: username})
	if err != nil {
		return errors.Wrap(err, "notify: encode payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "notify: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "notify: post")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.Newf("notify: webhook returned %s", resp.Status)
	}
	return nil
}

// Announce posts a fire-and-forget status line, logging any failure.
func (w *Webhook) Announce(message string) {
	if !w.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.Send(ctx, "", message); err != nil {
		w.log.Warn("webhook announce failed", zap.Error(err))
	}
}
