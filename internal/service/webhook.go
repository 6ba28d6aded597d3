package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"gowa-gateway/internal/metrics"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	webhookTimeout  = 5 * time.Second
)

type WebhookPayload struct {
	ID        string      `json:"id"`
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// StatusData is the payload of connection status notifications.
type StatusData struct {
	Status      string `json:"status"`
	Ready       bool   `json:"ready"`
	HasQR       bool   `json:"hasQR"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NotificationData builds the JSON body shared by webhooks and the
// websocket stream. QR payloads are never forwarded.
func NotificationData(n Notification) interface{} {
	if n.Type == NotifyMessage && n.Message != nil {
		return n.Message
	}
	return StatusData{
		Status:      string(n.Snapshot.Status),
		Ready:       n.Snapshot.IsReady,
		HasQR:       n.Snapshot.HasQR(),
		PhoneNumber: n.Snapshot.PhoneNumber,
		Error:       n.Snapshot.LastError,
	}
}

// WebhookForwarder POSTs notifications to a single configured URL. A
// circuit breaker stops hammering an endpoint that keeps failing.
type WebhookForwarder struct {
	url     string
	secret  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
}

func NewWebhookForwarder(url, secret string) *WebhookForwarder {
	return &WebhookForwarder{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: webhookTimeout},
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "webhook",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				zap.L().Warn("webhook circuit breaker state changed",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
}

// Notify is a Tracker listener; delivery runs in the background.
func (w *WebhookForwarder) Notify(n Notification) {
	payload := WebhookPayload{
		ID:        uuid.NewString(),
		Event:     string(n.Type),
		Timestamp: time.Now().UTC(),
		Data:      NotificationData(n),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
		defer cancel()
		if err := w.Deliver(ctx, payload); err != nil {
			zap.L().Warn("webhook delivery failed", zap.String("event", payload.Event), zap.Error(err))
		}
	}()
}

func (w *WebhookForwarder) Deliver(ctx context.Context, payload WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	_, err = w.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, w.post(ctx, body)
	})
	switch {
	case err == nil:
		metrics.RecordWebhookDelivery("ok")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordWebhookDelivery("skipped")
	default:
		metrics.RecordWebhookDelivery("error")
	}
	return err
}

func (w *WebhookForwarder) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.secret != "" {
		req.Header.Set(SignatureHeader, Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
