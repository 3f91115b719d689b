package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels of crudkit_requests_total
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
)

// Metrics counts dispatched requests and their latency per verb
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on registerer.
// A nil registerer uses the default one. Collectors already registered
// under the same names are reused.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crudkit",
				Name:      "requests_total",
				Help:      "Total number of dispatched requests by verb and outcome",
			},
			[]string{"verb", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "crudkit",
				Name:      "request_duration_seconds",
				Help:      "Request execution time by verb",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"verb"},
		),
	}

	if err := registerer.Register(m.requestsTotal); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		m.requestsTotal = are.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := registerer.Register(m.requestDuration); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		m.requestDuration = are.ExistingCollector.(*prometheus.HistogramVec)
	}
	return m, nil
}

func (m *Metrics) observe(verb, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(verb, outcome).Inc()
	m.requestDuration.WithLabelValues(verb).Observe(took.Seconds())
}
