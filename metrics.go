package replika

import (
	"github.com/prometheus/client_golang/prometheus"
)

var sentCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "replika",
	Subsystem: "engine",
	Name:      "messages_sent",
}, []string{"kind"})

var receivedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "replika",
	Subsystem: "engine",
	Name:      "messages_received",
}, []string{"kind"})

var droppedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "replika",
	Subsystem: "engine",
	Name:      "messages_dropped",
}, []string{"reason"})

var deferredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "replika",
	Subsystem: "engine",
	Name:      "commands_deferred",
}, []string{"reason"})

var cancelledCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "replika",
	Subsystem: "engine",
	Name:      "commands_cancelled",
}, []string{"kind"})

var participantGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "replika",
	Subsystem: "engine",
	Name:      "participants",
})

var replicaGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "replika",
	Subsystem: "engine",
	Name:      "replicas",
})

// RegisterMetrics registers the engine collectors, typically with
// prometheus.DefaultRegisterer.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		sentCounter,
		receivedCounter,
		droppedCounter,
		deferredCounter,
		cancelledCounter,
		participantGauge,
		replicaGauge,
	)
}
