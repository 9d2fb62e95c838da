package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks waitlist ranking activity.
type Metrics struct {
	Inserts          prometheus.Counter
	Promotions       *prometheus.CounterVec
	ConflictRetries  prometheus.Counter
	RetriesExhausted prometheus.Counter
}

// Promotion outcome label values.
const (
	OutcomeMoved   = "moved"
	OutcomeSwapped = "swapped"
	OutcomeKept    = "kept"
	OutcomeAtBest  = "at_best"
)

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Inserts: factory.NewCounter(prometheus.CounterOpts{
			Name: "spothot_waitlist_inserts_total",
			Help: "Identities appended to the waitlist tail.",
		}),
		Promotions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spothot_waitlist_promotions_total",
			Help: "Promotion attempts by outcome.",
		}, []string{"outcome"}),
		ConflictRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "spothot_waitlist_conflict_retries_total",
			Help: "Promotion or insert attempts retried after a write conflict.",
		}),
		RetriesExhausted: factory.NewCounter(prometheus.CounterOpts{
			Name: "spothot_waitlist_retries_exhausted_total",
			Help: "Operations that gave up after the retry budget and surfaced a conflict.",
		}),
	}
}
