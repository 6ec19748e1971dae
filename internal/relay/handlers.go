package relay

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/zibal-relay/internal/common"
	"github.com/noah-isme/zibal-relay/internal/obs"
)

var validate = validator.New()

// GatewayRedirector builds the outbound payment-page URL for a track id.
type GatewayRedirector interface {
	PaymentRedirectURL(trackID string) string
}

// Handler exposes the relay's HTTP surface.
type Handler struct {
	Orchestrator *Orchestrator
	Gateway      GatewayRedirector
}

// Redirect sends the browser onward to the gateway payment page. The extra
// hop through the relay's own domain is what the gateway sees as referrer.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	trackID := strings.TrimSpace(chi.URLParam(r, "trackId"))
	if trackID == "" {
		common.JSONError(w, http.StatusBadRequest, "INVALID_TRACK_ID", "trackId is required", nil)
		return
	}
	if obs.RedirectTotal != nil {
		obs.RedirectTotal.Inc()
	}
	http.Redirect(w, r, h.Gateway.PaymentRedirectURL(trackID), http.StatusFound)
}

// Callback terminates the gateway's callback: validate, orchestrate, redirect.
// Input errors answer 400 before any outbound call is made.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	params, err := parseCallbackParams(r)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_CALLBACK", err.Error(), nil)
		return
	}
	decision := h.Orchestrator.Handle(r.Context(), params)
	http.Redirect(w, r, decision.URL, http.StatusFound)
}

func parseCallbackParams(r *http.Request) (CallbackParams, error) {
	query := r.URL.Query()
	params := CallbackParams{
		TrackID: strings.TrimSpace(query.Get("trackId")),
		OrderID: strings.TrimSpace(query.Get("orderId")),
	}

	success, err := parseGatewayInt(query.Get("success"), "success")
	if err != nil {
		return CallbackParams{}, err
	}
	params.Success = success

	status, err := parseGatewayInt(query.Get("status"), "status")
	if err != nil {
		return CallbackParams{}, err
	}
	params.Status = status

	if err := validate.Struct(params); err != nil {
		return CallbackParams{}, fmt.Errorf("invalid callback parameters: %w", err)
	}
	return params, nil
}

func parseGatewayInt(raw, name string) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%s must be numeric", name)
	}
	return value, nil
}
