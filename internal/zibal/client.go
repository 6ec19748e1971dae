package zibal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/zibal-relay/internal/resilience"
)

// Zibal verify result codes. 100 confirms the payment; 201-203 are
// legitimate business declines; everything else signals a merchant or
// protocol problem.
const (
	resultVerified        = 100
	resultAlreadyVerified = 201
	resultNotPaid         = 202
	resultUnknownTrackID  = 203
)

// OutcomeKind tags the verification result variant.
type OutcomeKind int

const (
	// KindConfirmed means the gateway confirmed the payment.
	KindConfirmed OutcomeKind = iota
	// KindDeclined means the gateway reported a failed or already-settled payment.
	KindDeclined
	// KindFailed means verification could not be completed.
	KindFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case KindConfirmed:
		return "confirmed"
	case KindDeclined:
		return "declined"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// VerifyOutcome is the result of one gateway verification call.
type VerifyOutcome struct {
	Kind       OutcomeKind
	ResultCode int
	Amount     int64
	RefNumber  int64
	Message    string
	Err        error
}

// Confirmed builds a confirmed outcome carrying the settlement fields.
func Confirmed(resultCode int, amount, refNumber int64) VerifyOutcome {
	return VerifyOutcome{Kind: KindConfirmed, ResultCode: resultCode, Amount: amount, RefNumber: refNumber}
}

// Declined builds a declined outcome for a known gateway result code.
func Declined(resultCode int, message string) VerifyOutcome {
	return VerifyOutcome{Kind: KindDeclined, ResultCode: resultCode, Message: message}
}

// Failed builds an outcome for verification that could not be completed.
func Failed(err error) VerifyOutcome {
	return VerifyOutcome{Kind: KindFailed, Err: err}
}

// Client calls the Zibal gateway verify endpoint and builds redirect URLs
// toward the hosted payment page.
type Client struct {
	MerchantID string
	VerifyURL  string
	PaymentURL string
	HTTP       *resilience.HTTPClient
}

type verifyRequest struct {
	Merchant string `json:"merchant"`
	TrackID  int64  `json:"trackId"`
}

type verifyResponse struct {
	Result    int    `json:"result"`
	Message   string `json:"message"`
	Amount    int64  `json:"amount"`
	RefNumber int64  `json:"refNumber"`
	Status    int    `json:"status"`
}

// Verify performs one verification call for the given track id. All failures
// are folded into the returned outcome; the method never panics and never
// returns a partial result.
func (c *Client) Verify(ctx context.Context, trackID string) VerifyOutcome {
	ctx, span := otel.Tracer("zibal.Client").Start(ctx, "Client.Verify")
	defer span.End()
	span.SetAttributes(attribute.String("zibal.track_id", trackID))

	if c.HTTP == nil {
		err := errors.New("zibal: http client not configured")
		span.RecordError(err)
		return Failed(err)
	}
	numericID, err := strconv.ParseInt(strings.TrimSpace(trackID), 10, 64)
	if err != nil {
		// Zibal encodes trackId as a number on the wire; a non-numeric id can
		// never verify.
		span.RecordError(err)
		return Failed(fmt.Errorf("non-numeric track id %q: %w", trackID, err))
	}

	body, err := json.Marshal(verifyRequest{Merchant: c.MerchantID, TrackID: numericID})
	if err != nil {
		span.RecordError(err)
		return Failed(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.VerifyURL, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return Failed(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		return Failed(fmt.Errorf("verify request: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	var parsed verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		span.RecordError(err)
		return Failed(fmt.Errorf("decode verify response: %w", err))
	}
	span.SetAttributes(attribute.Int("zibal.result", parsed.Result))

	switch parsed.Result {
	case resultVerified:
		return Confirmed(parsed.Result, parsed.Amount, parsed.RefNumber)
	case resultAlreadyVerified, resultNotPaid, resultUnknownTrackID:
		return Declined(parsed.Result, parsed.Message)
	default:
		return Failed(fmt.Errorf("unexpected verify result %d: %s", parsed.Result, parsed.Message))
	}
}

// PaymentRedirectURL returns the gateway payment page URL for a track id.
// Browsers are sent here through the relay's own domain so the gateway sees a
// registered referrer; linking the frontend straight to the gateway trips its
// unauthorized-domain check.
func (c *Client) PaymentRedirectURL(trackID string) string {
	base := strings.TrimRight(strings.TrimSpace(c.PaymentURL), "/")
	return base + "/" + url.PathEscape(trackID)
}
