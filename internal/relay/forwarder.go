package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/zibal-relay/internal/resilience"
)

// ForwardState tags the webhook forwarding result variant.
type ForwardState int

const (
	// ForwardDelivered means the backend acknowledged the webhook with a 2xx.
	ForwardDelivered ForwardState = iota
	// ForwardRejected means the backend answered with a non-2xx status.
	ForwardRejected
	// ForwardUnreachable means the request never completed.
	ForwardUnreachable
)

func (s ForwardState) String() string {
	switch s {
	case ForwardDelivered:
		return "delivered"
	case ForwardRejected:
		return "rejected"
	case ForwardUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// ForwardOutcome is the result of one webhook delivery attempt.
type ForwardOutcome struct {
	State      ForwardState
	HTTPStatus int
	Err        error
}

// VerifySnapshot carries the gateway verification result inside the webhook
// payload. It is informational; the signature does not cover it.
type VerifySnapshot struct {
	Result    int    `json:"result"`
	Amount    int64  `json:"amount,omitempty"`
	RefNumber int64  `json:"refNumber,omitempty"`
	Message   string `json:"message,omitempty"`
}

// WebhookPayload is the signed notification posted to the backend.
type WebhookPayload struct {
	TrackID      string          `json:"trackId"`
	Success      int             `json:"success"`
	Status       int             `json:"status"`
	OrderID      string          `json:"orderId,omitempty"`
	VerifyResult *VerifySnapshot `json:"verifyResult,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Forwarder delivers signed webhook payloads to the backend. One attempt per
// call; retries are deliberately left to the backend's reconciliation.
type Forwarder struct {
	WebhookURL string
	Signer     Signer
	HTTP       *resilience.HTTPClient
}

// Forward posts the payload with its signature in the X-Webhook-Signature
// header. All failures are folded into the returned outcome.
func (f *Forwarder) Forward(ctx context.Context, payload WebhookPayload) ForwardOutcome {
	ctx, span := otel.Tracer("relay.Forwarder").Start(ctx, "Forwarder.Forward")
	defer span.End()
	span.SetAttributes(attribute.String("webhook.track_id", payload.TrackID))

	if f.HTTP == nil {
		err := fmt.Errorf("relay: forwarder http client not configured")
		span.RecordError(err)
		return ForwardOutcome{State: ForwardUnreachable, Err: err}
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		return ForwardOutcome{State: ForwardUnreachable, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.WebhookURL, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return ForwardOutcome{State: ForwardUnreachable, Err: err}
	}
	deliveryID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "zibal-relay/1.0")
	req.Header.Set("X-Delivery-ID", deliveryID)
	req.Header.Set("X-Timestamp", strconv.FormatInt(payload.Timestamp.Unix(), 10))
	req.Header.Set("X-Webhook-Signature", f.Signer.Sign(payload.TrackID, payload.Success, payload.Status))
	span.SetAttributes(attribute.String("webhook.delivery_id", deliveryID))

	resp, err := f.HTTP.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		return ForwardOutcome{State: ForwardUnreachable, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return ForwardOutcome{State: ForwardDelivered, HTTPStatus: resp.StatusCode}
	}
	return ForwardOutcome{State: ForwardRejected, HTTPStatus: resp.StatusCode}
}
