package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CallbackTotal counts processed gateway callbacks by final redirect outcome.
	CallbackTotal *prometheus.CounterVec
	// VerifyTotal counts gateway verification outcomes.
	VerifyTotal *prometheus.CounterVec
	// VerifyLatency records gateway verification latency in milliseconds.
	VerifyLatency *prometheus.HistogramVec
	// ForwardTotal counts backend webhook forwarding outcomes.
	ForwardTotal *prometheus.CounterVec
	// ForwardLatency records webhook forwarding latency in milliseconds.
	ForwardLatency *prometheus.HistogramVec
	// RedirectTotal counts referrer-fix redirects issued to the gateway.
	RedirectTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_total",
			Help:      "Count of processed gateway callbacks by redirect outcome.",
		}, []string{"result"})
		VerifyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_verify_total",
			Help:      "Count of gateway verification outcomes.",
		}, []string{"result"})
		VerifyLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_verify_duration_ms",
			Help:      "Latency for gateway verification calls in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 15000},
		}, []string{"result"})
		ForwardTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_forward_total",
			Help:      "Count of backend webhook forwarding outcomes.",
		}, []string{"result"})
		ForwardLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_forward_duration_ms",
			Help:      "Latency for backend webhook forwarding attempts in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 15000},
		}, []string{"result"})
		RedirectTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_redirect_total",
			Help:      "Number of referrer-fix redirects issued to the gateway.",
		})

		mustRegisterCollector(reg, CallbackTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CallbackTotal = v
			}
		})
		mustRegisterCollector(reg, VerifyTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				VerifyTotal = v
			}
		})
		mustRegisterCollector(reg, VerifyLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				VerifyLatency = v
			}
		})
		mustRegisterCollector(reg, ForwardTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ForwardTotal = v
			}
		})
		mustRegisterCollector(reg, ForwardLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				ForwardLatency = v
			}
		})
		mustRegisterCollector(reg, RedirectTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				RedirectTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
