package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const maxWebhookBody = 64 << 10

var ErrMissingReference = errors.New("webhook accepted message without a messageId")

// StatusError is returned when the webhook answers anything but 202.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook rejected message: status %d body=%q", e.Code, e.Body)
}

// Webhook hands each message to an automation endpoint (for example a
// WhatsApp Business bridge). The endpoint answers 202 Accepted with the id it
// assigned, which becomes the message reference in the audit log.
type Webhook struct {
	url  string
	http *http.Client
}

func NewWebhook(endpoint string) *Webhook {
	return &Webhook{
		url:  endpoint,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookMessage struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

type webhookReceipt struct {
	MessageID string `json:"messageId"`
}

func (w *Webhook) Name() string { return "webhook" }

// Check validates the configured endpoint without sending anything.
func (w *Webhook) Check(context.Context) error {
	if w.url == "" {
		return errors.New("webhook url is not configured")
	}
	u, err := url.ParseRequestURI(w.url)
	if err != nil {
		return fmt.Errorf("webhook url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("webhook url must be an absolute http(s) url (got %q)", w.url)
	}
	return nil
}

// Send posts one message and returns the endpoint's messageId.
func (w *Webhook) Send(ctx context.Context, phone, message string) (string, error) {
	payload, err := json.Marshal(webhookMessage{PhoneNumber: phone, Message: message})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookBody))
	if err != nil {
		return "", fmt.Errorf("read webhook response: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		return "", &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}

	var receipt webhookReceipt
	if err := json.Unmarshal(body, &receipt); err != nil {
		return "", fmt.Errorf("decode webhook receipt: %w body=%q", err, string(body))
	}
	if receipt.MessageID == "" {
		return "", ErrMissingReference
	}

	slog.Debug("webhook accepted message", "message_id", receipt.MessageID)
	return receipt.MessageID, nil
}
