// Package mattermost posts incident notifications to a Mattermost incoming webhook.
package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/bissquit/incident-tracker/internal/notifications"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultUsername = "Incident Tracker"
	maxErrorBody    = 4 << 10
)

// Config holds Mattermost sender configuration.
// The webhook URL travels with each queue item as its target.
type Config struct {
	Username string
	IconURL  string
	// Channel overrides the webhook's default channel when set.
	Channel string
	Timeout time.Duration
}

// Sender posts markdown messages to incoming webhooks.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates a new Mattermost sender.
func NewSender(config Config) *Sender {
	if config.Username == "" {
		config.Username = defaultUsername
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Type returns the channel type.
func (s *Sender) Type() notifications.ChannelType {
	return notifications.ChannelTypeMattermost
}

type webhookPayload struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
	IconURL  string `json:"icon_url,omitempty"`
	Channel  string `json:"channel,omitempty"`
}

// Send posts n to the webhook in n.To. The subject becomes a markdown heading.
func (s *Sender) Send(ctx context.Context, n notifications.Notification) error {
	if n.To == "" {
		return &WebhookError{Message: "webhook URL is empty"}
	}

	text := n.Body
	if n.Subject != "" {
		text = "#### " + n.Subject + "\n\n" + n.Body
	}
	body, err := json.Marshal(webhookPayload{
		Text:     text,
		Username: s.config.Username,
		IconURL:  s.config.IconURL,
		Channel:  s.config.Channel,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.To, bytes.NewReader(body))
	if err != nil {
		return &WebhookError{Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &WebhookError{Message: fmt.Sprintf("send request: %v", err), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		slog.Debug("mattermost message posted", "webhook", maskWebhookURL(n.To))
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return classify(resp.StatusCode, string(respBody))
}

// classify turns a non-200 webhook response into a WebhookError.
// Throttling and server errors are retryable; rejected payloads and
// revoked hooks are not.
func classify(status int, body string) *WebhookError {
	werr := &WebhookError{Code: status}
	switch {
	case status == http.StatusBadRequest:
		werr.Message = "bad request: " + body
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		werr.Message = "invalid or expired webhook"
	case status == http.StatusNotFound:
		werr.Message = "webhook not found"
	case status == http.StatusTooManyRequests:
		werr.Message, werr.Retryable = "rate limited", true
	case status >= http.StatusInternalServerError:
		werr.Message, werr.Retryable = "server error: "+body, true
	default:
		werr.Message = "unexpected status: " + body
	}
	return werr
}

// maskWebhookURL keeps scheme and host and hides the hook key, which is a credential.
func maskWebhookURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<invalid webhook url>"
	}
	if u.Path == "" || u.Path == "/" {
		return u.Scheme + "://" + u.Host
	}
	return u.Scheme + "://" + u.Host + "/hooks/***"
}

// WebhookError is returned for failed webhook deliveries.
type WebhookError struct {
	Code      int
	Message   string
	Retryable bool
}

func (e *WebhookError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("mattermost error %d: %s", e.Code, e.Message)
	}
	return "mattermost error: " + e.Message
}

// IsRetryable reports whether the delivery may succeed later.
func (e *WebhookError) IsRetryable() bool { return e.Retryable }
