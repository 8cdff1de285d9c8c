package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atrium_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// GrantReplaceLatency records the latency of full entitlement replace transactions.
	GrantReplaceLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "atrium_grant_replace_latency_seconds",
		Help:    "Latency of delete-then-insert entitlement replace transactions",
		Buckets: prometheus.DefBuckets,
	})

	// AvailabilityFlips counts availability recomputations by entity type and result.
	AvailabilityFlips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_availability_flips_total",
		Help: "Total availability flag writes by entity type and new value",
	}, []string{"entity_type", "availability"})

	// TierReplaceOperations counts tier registry replace operations by outcome.
	TierReplaceOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_tier_replace_operations_total",
		Help: "Total tier replace operations by outcome",
	}, []string{"outcome"})

	// EntitlementMutations counts entitlement engine writes by operation and outcome.
	EntitlementMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_entitlement_mutations_total",
		Help: "Total entitlement grant/revoke operations by operation and outcome",
	}, []string{"operation", "outcome"})

	// LedgerRequests counts outbound ledger service calls by operation and outcome.
	LedgerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_ledger_requests_total",
		Help: "Total ledger service requests by operation and outcome",
	}, []string{"operation", "outcome"})

	// RedisErrors counts Redis command failures by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})
)

// TrackQuery returns a function that records query latency when called, for
// use with defer at the top of a repository method.
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
