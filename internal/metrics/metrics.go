package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	bzerrors "github.com/MikeSquared-Agency/Bazaar/internal/errors"
)

const namespace = "bazaar"

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	transitions        *prometheus.CounterVec
	transitionFailures *prometheus.CounterVec
	matchesComputed    prometheus.Counter
	matchCache         *prometheus.CounterVec
	feeQuotes          prometheus.Counter
	invitationsExpired prometheus.Counter
	searchDuration     prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Successful lifecycle transitions.",
		}, []string{"entity", "from", "to"}),
		transitionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transition_failures_total",
			Help:      "Rejected lifecycle operations by error kind.",
		}, []string{"entity", "operation", "kind"}),
		matchesComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_computed_total",
			Help:      "Match scores computed (cache misses included).",
		}),
		matchCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_cache_lookups_total",
			Help:      "Match cache lookups by result.",
		}, []string{"result"}),
		feeQuotes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fee_quotes_total",
			Help:      "Service fee quotes computed.",
		}),
		invitationsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invitations_expired_total",
			Help:      "Invitations expired by the sweeper.",
		}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Ranking and filter engine latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
	reg.MustRegister(
		m.transitions,
		m.transitionFailures,
		m.matchesComputed,
		m.matchCache,
		m.feeQuotes,
		m.invitationsExpired,
		m.searchDuration,
	)
	return m
}

func (m *Metrics) Transition(entity, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(entity, from, to).Inc()
}

// TransitionFailed records a rejected operation, labelled by domain error kind.
func (m *Metrics) TransitionFailed(entity, operation string, err error) {
	if m == nil || err == nil {
		return
	}
	kind := string(bzerrors.TypeOf(err))
	if kind == "" {
		kind = "internal"
	}
	m.transitionFailures.WithLabelValues(entity, operation, kind).Inc()
}

func (m *Metrics) MatchComputed() {
	if m == nil {
		return
	}
	m.matchesComputed.Inc()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.matchCache.WithLabelValues("hit").Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.matchCache.WithLabelValues("miss").Inc()
}

func (m *Metrics) FeeQuoted() {
	if m == nil {
		return
	}
	m.feeQuotes.Inc()
}

func (m *Metrics) InvitationsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.invitationsExpired.Add(float64(n))
}

func (m *Metrics) ObserveSearch(d time.Duration) {
	if m == nil {
		return
	}
	m.searchDuration.Observe(d.Seconds())
}
