package health_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/zibal-relay/internal/health"
)

func TestHealth(t *testing.T) {
	handler := health.Handler{Service: "zibal-relay", Version: "1.0.0"}

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestInfo(t *testing.T) {
	handler := health.Handler{Service: "zibal-relay", Version: "1.0.0", Env: "test"}

	rec := httptest.NewRecorder()
	handler.Info(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "zibal-relay", body["service"])
	require.Equal(t, "running", body["status"])
	endpoints, ok := body["endpoints"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "/api/zibal/callback", endpoints["callback"])
}
