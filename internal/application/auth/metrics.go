package auth

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jkcollege/school-portal/internal/domain/shared"
)

// Metrics are the resolver's Prometheus collectors.
type Metrics struct {
	attempts      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	authenticated prometheus.Gauge
}

// NewMetrics registers the collectors on reg. A nil reg keeps them
// unregistered (tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Auth operations by method and outcome.",
		}, []string{"method", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "portal",
			Subsystem: "auth",
			Name:      "duration_seconds",
			Help:      "Wall time of auth operations, including backend round trips.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 120},
		}, []string{"method"}),
		authenticated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "portal",
			Subsystem: "auth",
			Name:      "authenticated",
			Help:      "1 while a user is signed in.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.duration, m.authenticated)
	}
	return m
}

func (m *Metrics) observe(method string, seconds float64, err error) {
	m.attempts.WithLabelValues(method, outcome(err)).Inc()
	m.duration.WithLabelValues(method).Observe(seconds)
}

func (m *Metrics) setAuthenticated(v bool) {
	if v {
		m.authenticated.Set(1)
		return
	}
	m.authenticated.Set(0)
}

// outcome buckets an error into a low-cardinality label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, shared.ErrValidation):
		return "validation"
	case errors.Is(err, shared.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, shared.ErrForbidden):
		return "forbidden"
	case errors.Is(err, shared.ErrBusy):
		return "busy"
	case errors.Is(err, shared.ErrStaleAttempt):
		return "superseded"
	case errors.Is(err, shared.ErrOAuth):
		return "oauth"
	case errors.Is(err, shared.ErrNetwork):
		return "network"
	case errors.Is(err, shared.ErrStateTransition):
		return "state"
	case errors.Is(err, shared.ErrRemote):
		return "remote"
	default:
		return "error"
	}
}
