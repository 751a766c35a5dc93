// Package notify delivers deployment notifications. Delivery failures are
// reported to the caller but are never allowed to fail a deployment.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tradewatch/deployctl/config"
)

// Notification is the payload sent after a deployment or rollback.
type Notification struct {
	Environment     config.Environment `json:"environment"`
	Version         string             `json:"version"`
	Status          string             `json:"status"`
	Message         string             `json:"message,omitempty"`
	DurationSeconds int                `json:"duration_seconds,omitempty"`
}

// Notifier delivers a notification.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Webhook posts a chat-compatible message to a single webhook URL.
type Webhook struct {
	url     string
	channel string
	client  *http.Client
}

func NewWebhook(url, channel string) *Webhook {
	return &Webhook{
		url:     url,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *Webhook) Notify(ctx context.Context, n Notification) error {
	icon := ":white_check_mark:"
	if n.Status != "success" {
		icon = ":x:"
	}
	text := fmt.Sprintf("%s Deployment of %s to *%s* %s", icon, n.Version, n.Environment, n.Status)
	if n.DurationSeconds > 0 {
		text += fmt.Sprintf(" in %ds", n.DurationSeconds)
	}
	if n.Message != "" {
		text += "\n" + n.Message
	}

	payload := map[string]string{"text": text}
	if w.channel != "" {
		payload["channel"] = w.channel
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %s", resp.Status)
	}
	return nil
}

// Discard swallows notifications. Used when no webhook endpoint is
// configured.
type Discard struct{}

func (Discard) Notify(context.Context, Notification) error { return nil }
