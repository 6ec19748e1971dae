package relay

import (
	"context"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/zibal-relay/internal/obs"
	"github.com/noah-isme/zibal-relay/internal/zibal"
)

// CallbackParams is the data the gateway sends on its callback. It lives for
// one request only.
type CallbackParams struct {
	TrackID string `validate:"required"`
	Success int    `validate:"oneof=0 1"`
	Status  int
	OrderID string
}

// RedirectDecision is the terminal artifact of one callback: where to send
// the user's browser.
type RedirectDecision struct {
	URL       string
	Confirmed bool
}

// Verifier abstracts the gateway verification call for testing.
type Verifier interface {
	Verify(ctx context.Context, trackID string) zibal.VerifyOutcome
}

// WebhookSender abstracts webhook delivery for testing.
type WebhookSender interface {
	Forward(ctx context.Context, payload WebhookPayload) ForwardOutcome
}

// Orchestrator drives one callback end to end: verify with the gateway, sign
// and forward the result to the backend, then decide the user redirect. It
// holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	Verifier   Verifier
	Forwarder  WebhookSender
	SuccessURL string
	FailureURL string
	Logger     zerolog.Logger
}

// Handle processes one callback. It always terminates in a RedirectDecision:
// verification and forwarding failures are absorbed into the failure page,
// never surfaced to the user.
func (o *Orchestrator) Handle(ctx context.Context, params CallbackParams) RedirectDecision {
	ctx, span := otel.Tracer("relay.Orchestrator").Start(ctx, "Orchestrator.Handle")
	defer span.End()
	span.SetAttributes(attribute.String("callback.track_id", params.TrackID))

	logger := o.Logger.With().
		Str("track_id", params.TrackID).
		Int("success", params.Success).
		Int("status", params.Status).
		Logger()
	logger.Info().Str("order_id", params.OrderID).Msg("callback received")

	verifyStart := time.Now()
	outcome := o.Verifier.Verify(ctx, params.TrackID)
	observeVerify(outcome, time.Since(verifyStart))
	span.SetAttributes(attribute.String("callback.verify_outcome", outcome.Kind.String()))

	switch outcome.Kind {
	case zibal.KindConfirmed:
		logger.Info().
			Int64("amount", outcome.Amount).
			Int64("ref_number", outcome.RefNumber).
			Msg("payment verified")
	case zibal.KindDeclined:
		logger.Info().
			Int("result", outcome.ResultCode).
			Str("message", outcome.Message).
			Msg("payment declined by gateway")
	default:
		logger.Error().Err(outcome.Err).Msg("gateway verification failed")
	}

	payload := WebhookPayload{
		TrackID: params.TrackID,
		// success/status are forwarded and signed exactly as the gateway sent
		// them; the verify snapshot carries the authoritative outcome.
		Success:      params.Success,
		Status:       params.Status,
		OrderID:      params.OrderID,
		VerifyResult: snapshotFrom(outcome),
		Timestamp:    time.Now().UTC(),
	}

	// The backend notification has value even if the browser went away, so
	// forwarding is detached from the request's cancellation.
	forwardStart := time.Now()
	forwarded := o.Forwarder.Forward(context.WithoutCancel(ctx), payload)
	observeForward(forwarded, time.Since(forwardStart))
	span.SetAttributes(attribute.String("callback.forward_outcome", forwarded.State.String()))

	switch forwarded.State {
	case ForwardDelivered:
		logger.Info().Int("http_status", forwarded.HTTPStatus).Msg("webhook delivered")
	case ForwardRejected:
		logger.Warn().Int("http_status", forwarded.HTTPStatus).Msg("webhook rejected by backend")
	default:
		logger.Error().Err(forwarded.Err).Msg("webhook delivery failed")
	}

	confirmed := outcome.Kind == zibal.KindConfirmed
	decision := RedirectDecision{
		URL:       o.redirectTarget(confirmed, params),
		Confirmed: confirmed,
	}
	if obs.CallbackTotal != nil {
		result := "failure"
		if confirmed {
			result = "success"
		}
		obs.CallbackTotal.WithLabelValues(result).Inc()
	}
	logger.Info().Bool("confirmed", confirmed).Str("redirect", decision.URL).Msg("callback complete")
	return decision
}

func (o *Orchestrator) redirectTarget(confirmed bool, params CallbackParams) string {
	target := o.FailureURL
	if confirmed {
		target = o.SuccessURL
	}
	parsed, err := url.Parse(target)
	if err != nil {
		// Configured URLs are validated at startup; fall back to the raw value.
		return target
	}
	query := parsed.Query()
	query.Set("trackId", params.TrackID)
	if params.OrderID != "" {
		query.Set("orderId", params.OrderID)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func snapshotFrom(outcome zibal.VerifyOutcome) *VerifySnapshot {
	if outcome.Kind == zibal.KindFailed {
		return nil
	}
	return &VerifySnapshot{
		Result:    outcome.ResultCode,
		Amount:    outcome.Amount,
		RefNumber: outcome.RefNumber,
		Message:   outcome.Message,
	}
}

func observeVerify(outcome zibal.VerifyOutcome, elapsed time.Duration) {
	result := outcome.Kind.String()
	if obs.VerifyTotal != nil {
		obs.VerifyTotal.WithLabelValues(result).Inc()
	}
	if obs.VerifyLatency != nil {
		obs.VerifyLatency.WithLabelValues(result).Observe(obs.DurationMillis(elapsed))
	}
}

func observeForward(outcome ForwardOutcome, elapsed time.Duration) {
	result := outcome.State.String()
	if obs.ForwardTotal != nil {
		obs.ForwardTotal.WithLabelValues(result).Inc()
	}
	if obs.ForwardLatency != nil {
		obs.ForwardLatency.WithLabelValues(result).Observe(obs.DurationMillis(elapsed))
	}
}
