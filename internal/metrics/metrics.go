// Package metrics holds the Prometheus collectors shared by the chat service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "naina"

// Metrics groups the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	turns           *prometheus.CounterVec
	turnDuration    prometheus.Histogram
	intents         *prometheus.CounterVec
	gatewayCalls    *prometheus.CounterVec
	gatewayFailover prometheus.Counter
	catalogQueries  *prometheus.CounterVec
	catalogSyncs    *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns by outcome.",
		}, []string{"outcome"}),
		turnDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_turn_duration_seconds",
			Help:      "Wall time of a chat turn.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		intents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_intents_total",
			Help:      "Classified shopper messages by kind.",
		}, []string{"kind"}),
		gatewayCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Provider calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		gatewayFailover: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_failovers_total",
			Help:      "Requests that were handed to the alternate provider.",
		}),
		catalogQueries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_queries_total",
			Help:      "Catalog queries by result.",
		}, []string{"result"}),
		catalogSyncs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_syncs_total",
			Help:      "Catalog sync runs by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveTurn(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
	m.turnDuration.Observe(d.Seconds())
}

func (m *Metrics) IncIntent(kind string) {
	if m == nil {
		return
	}
	m.intents.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncGatewayCall(provider, outcome string) {
	if m == nil {
		return
	}
	m.gatewayCalls.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) IncFailover() {
	if m == nil {
		return
	}
	m.gatewayFailover.Inc()
}

func (m *Metrics) IncCatalogQuery(result string) {
	if m == nil {
		return
	}
	m.catalogQueries.WithLabelValues(result).Inc()
}

func (m *Metrics) IncSync(outcome string) {
	if m == nil {
		return
	}
	m.catalogSyncs.WithLabelValues(outcome).Inc()
}
