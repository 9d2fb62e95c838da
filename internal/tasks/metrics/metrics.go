package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks task dispatch and processing.
type Metrics struct {
	Dispatched *prometheus.CounterVec
	Processed  *prometheus.CounterVec
	Failed     *prometheus.CounterVec
	Dropped    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Dispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spothot_tasks_dispatched_total",
			Help: "Tasks handed to the dispatcher.",
		}, []string{"type"}),
		Processed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spothot_tasks_processed_total",
			Help: "Tasks completed by a handler.",
		}, []string{"type"}),
		Failed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spothot_tasks_failed_total",
			Help: "Handler attempts that returned an error and will be redelivered.",
		}, []string{"type"}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spothot_tasks_dropped_total",
			Help: "Tasks abandoned after exhausting in-process redelivery.",
		}, []string{"type"}),
	}
}
