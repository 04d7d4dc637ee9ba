package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Refresh outcomes recorded by ClientMetrics.IncRefresh.
const (
	RefreshSucceeded = "succeeded"
	RefreshFailed    = "failed"
	RefreshMissing   = "missing_token"
)

// ClientMetrics records the behavior of the authenticated API client.
type ClientMetrics struct {
	duration     *prometheus.HistogramVec
	refresh      *prometheus.CounterVec
	replays      prometheus.Counter
	sessionEnded prometheus.Counter
	checkout     *prometheus.CounterVec
}

// NewClientMetrics registers the client metrics on the provided registerer.
func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	if reg == nil {
		return &ClientMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_api_request_duration_seconds",
		Help:    "Duration of backend API calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})
	refresh := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_token_refresh_total",
		Help: "Token refresh attempts by outcome.",
	}, []string{"outcome"})
	replays := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storefront_request_replays_total",
		Help: "Requests replayed after an unauthorized response.",
	})
	sessionEnded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storefront_session_ended_total",
		Help: "Sessions ended because credentials could not be recovered.",
	})
	checkout := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_checkout_transitions_total",
		Help: "Checkout transitions by target step and outcome.",
	}, []string{"step", "outcome"})
	reg.MustRegister(duration, refresh, replays, sessionEnded, checkout)
	return &ClientMetrics{
		duration:     duration,
		refresh:      refresh,
		replays:      replays,
		sessionEnded: sessionEnded,
		checkout:     checkout,
	}
}

// ObserveRequest records one HTTP exchange. status 0 means no response.
func (c *ClientMetrics) ObserveRequest(method string, status int, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(method), statusLabel(status)).Observe(duration.Seconds())
}

// IncRefresh counts a refresh attempt with the given outcome.
func (c *ClientMetrics) IncRefresh(outcome string) {
	if c == nil || c.refresh == nil {
		return
	}
	c.refresh.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (c *ClientMetrics) IncReplay() {
	if c == nil || c.replays == nil {
		return
	}
	c.replays.Inc()
}

func (c *ClientMetrics) IncSessionEnded() {
	if c == nil || c.sessionEnded == nil {
		return
	}
	c.sessionEnded.Inc()
}

// IncCheckoutTransition counts an attempted move to step. ok=false means the
// machine stayed where it was.
func (c *ClientMetrics) IncCheckoutTransition(step string, ok bool) {
	if c == nil || c.checkout == nil {
		return
	}
	outcome := "rejected"
	if ok {
		outcome = "advanced"
	}
	c.checkout.WithLabelValues(normalizeLabel(step), outcome).Inc()
}

func statusLabel(status int) string {
	if status <= 0 {
		return "network_error"
	}
	return strconv.Itoa(status)
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
