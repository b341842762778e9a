package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Event is a single log line posted to the deployment's webhook.
type Event struct {
	Title       string
	Description string
	Fields      []Field
	Color       int
	Timestamp   time.Time
}

// Field is a name/value pair rendered inside an event.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Colors used by the built-in events.
const (
	ColorSuccess = 0x57F287
	ColorWarning = 0xFEE75C
	ColorInfo    = 0x5865F2
)

// Notifier delivers events. Callers treat delivery as best effort.
type Notifier interface {
	Notify(ctx context.Context, webhookURL string, event Event) error
}

// WebhookNotifier posts embeds to an incoming webhook URL.
type WebhookNotifier struct {
	httpClient *http.Client
	username   string
	logger     *zap.Logger
}

var _ Notifier = (*WebhookNotifier)(nil)

// NewWebhookNotifier constructs a notifier. A nil client gets a 5 second timeout.
func NewWebhookNotifier(client *http.Client, username string, logger *zap.Logger) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &WebhookNotifier{httpClient: client, username: username, logger: logger}
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type webhookPayload struct {
	Username string  `json:"username,omitempty"`
	Embeds   []embed `json:"embeds"`
}

// Notify posts the event. An empty webhookURL is a no-op.
func (n *WebhookNotifier) Notify(ctx context.Context, webhookURL string, event Event) error {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL == "" {
		return nil
	}

	e := embed{Title: event.Title, Description: event.Description, Color: event.Color}
	if !event.Timestamp.IsZero() {
		e.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	for _, f := range event.Fields {
		e.Fields = append(e.Fields, embedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	body, err := json.Marshal(webhookPayload{Username: n.username, Embeds: []embed{e}})
	if err != nil {
		return fmt.Errorf("encode webhook: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.log().Warn("webhook delivery failed", zap.String("title", event.Title), zap.Error(err))
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= 300 {
		n.log().Warn("webhook rejected", zap.String("title", event.Title), zap.Int("status", resp.StatusCode))
		return fmt.Errorf("webhook status=%d", resp.StatusCode)
	}
	return nil
}

func (n *WebhookNotifier) log() *zap.Logger {
	if n != nil && n.logger != nil {
		return n.logger
	}
	return zap.L()
}
