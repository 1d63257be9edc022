package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus collectors for the messaging, cache, admission and HTTP layers. They live in a
// standalone package so fabric drivers, the cache and the rate limiter can record
// without importing the HTTP layer.

var (
	FabricPublishes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fabric_publishes_total",
		Help: "Publish attempts by driver and result",
	}, []string{"driver", "routing_key", "result"}) // result: ok|error|not_connected

	FabricDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fabric_deliveries_total",
		Help: "Handled deliveries by queue and outcome",
	}, []string{"driver", "outcome"}) // outcome: acked|retried|dead_lettered|dropped

	FabricReconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fabric_reconnects_total",
		Help: "Successful reconnects of a fabric driver",
	}, []string{"driver"})

	FabricConnected = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fabric_connected",
		Help: "1 while the fabric driver holds a live connection",
	}, []string{"driver"})

	PublisherEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "publisher_events_total",
		Help: "Entity events handed to the fabric by routing key, mode and result",
	}, []string{"routing_key", "mode", "result"})

	ProjectionApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "projection_events_total",
		Help: "Events applied to local projections",
	}, []string{"projection", "routing_key", "result"}) // result: applied|noop|error

	CacheOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Read-through lookups by result",
	}, []string{"result"}) // hit|miss|error

	CacheInvalidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_invalidations_total",
		Help: "Cache invalidations by key class and result",
	}, []string{"class", "result"}) // class: entity|collection

	AdmissionDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_decisions_total",
		Help: "Admission controller decisions by tier",
	}, []string{"tier", "decision"}) // allowed|denied|degraded

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "path", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_inflight_requests",
		Help: "HTTP requests in flight by method and route",
	}, []string{"method", "path"})
)

// Register registers every collector on reg (or the default registerer if nil).
// Duplicate registrations are ignored.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		FabricPublishes,
		FabricDeliveries,
		FabricReconnects,
		FabricConnected,
		PublisherEvents,
		ProjectionApplied,
		CacheOps,
		CacheInvalidations,
		AdmissionDecisions,
		HTTPRequests,
		HTTPDuration,
		HTTPInflight,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
