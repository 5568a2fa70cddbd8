package server

import "github.com/prometheus/client_golang/prometheus"

var (
	metricSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "atlas",
		Subsystem: "gateway",
		Name:      "sessions",
		Help:      "Number of currently registered WebSocket sessions.",
	})

	metricEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atlas",
		Subsystem: "gateway",
		Name:      "events_total",
		Help:      "Dispatched events by name and outcome.",
	}, []string{"event", "outcome"})

	metricBroadcasts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "atlas",
		Subsystem: "gateway",
		Name:      "broadcasts_total",
		Help:      "Number of fan-outs performed by the hub.",
	})

	metricDeliveryFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "atlas",
		Subsystem: "gateway",
		Name:      "delivery_failures_total",
		Help:      "Per-session delivery attempts that failed during broadcast.",
	})
)

func init() {
	prometheus.MustRegister(metricSessions, metricEvents, metricBroadcasts, metricDeliveryFailures)
}
