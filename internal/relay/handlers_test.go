package relay_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/zibal-relay/internal/relay"
	"github.com/noah-isme/zibal-relay/internal/zibal"
)

type stubGateway struct{}

func (stubGateway) PaymentRedirectURL(trackID string) string {
	return "https://gateway.zibal.ir/start/" + trackID
}

func newTestRouter(verifier *stubVerifier, sender *stubSender) http.Handler {
	handler := &relay.Handler{
		Orchestrator: &relay.Orchestrator{
			Verifier:   verifier,
			Forwarder:  sender,
			SuccessURL: "https://shop.example.com/payment/success",
			FailureURL: "https://shop.example.com/payment/failed",
			Logger:     zerolog.Nop(),
		},
		Gateway: stubGateway{},
	}
	r := chi.NewRouter()
	r.Get("/redirect/{trackId}", handler.Redirect)
	r.Get("/api/zibal/callback", handler.Callback)
	return r
}

func TestRedirectHandler(t *testing.T) {
	router := newTestRouter(&stubVerifier{}, &stubSender{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/redirect/8734562190", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://gateway.zibal.ir/start/8734562190", rec.Header().Get("Location"))
}

func TestRedirectHandlerMissingTrackID(t *testing.T) {
	handler := &relay.Handler{Gateway: stubGateway{}}

	rec := httptest.NewRecorder()
	handler.Redirect(rec, httptest.NewRequest(http.MethodGet, "/redirect/", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_TRACK_ID")
}

func TestCallbackHandlerHappyPath(t *testing.T) {
	verifier := &stubVerifier{outcome: zibal.Confirmed(100, 250000, 990011)}
	sender := &stubSender{outcome: relay.ForwardOutcome{State: relay.ForwardDelivered, HTTPStatus: 200}}
	router := newTestRouter(verifier, sender)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/zibal/callback?trackId=8734562190&success=1&status=2&orderId=ord-42", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	location := rec.Header().Get("Location")
	require.Contains(t, location, "/payment/success")
	require.Contains(t, location, "trackId=8734562190")
	require.Contains(t, location, "orderId=ord-42")
	require.Equal(t, 1, verifier.calls)
	require.Equal(t, 1, sender.calls)
}

func TestCallbackHandlerFailedPayment(t *testing.T) {
	verifier := &stubVerifier{outcome: zibal.Declined(202, "paid not verified")}
	sender := &stubSender{outcome: relay.ForwardOutcome{State: relay.ForwardDelivered, HTTPStatus: 200}}
	router := newTestRouter(verifier, sender)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/zibal/callback?trackId=T77&success=0&status=3", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	require.Contains(t, rec.Header().Get("Location"), "/payment/failed")
}

func TestCallbackHandlerRejectsBadInput(t *testing.T) {
	cases := []struct {
		name  string
		query string
	}{
		{"missing trackId", "success=1&status=2"},
		{"missing success", "trackId=T1&status=2"},
		{"missing status", "trackId=T1&success=1"},
		{"non-numeric success", "trackId=T1&success=yes&status=2"},
		{"non-numeric status", "trackId=T1&success=1&status=done"},
		{"success out of range", "trackId=T1&success=7&status=2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verifier := &stubVerifier{}
			sender := &stubSender{}
			router := newTestRouter(verifier, sender)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/zibal/callback?"+tc.query, nil))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, rec.Body.String(), "INVALID_CALLBACK")
			// Rejected input never reaches the gateway or the backend.
			require.Zero(t, verifier.calls)
			require.Zero(t, sender.calls)
		})
	}
}
