// Package metrics provides Prometheus metrics for egress-gate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsTotal counts handled client connections by outcome.
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "egressgate",
			Name:      "connections_total",
			Help:      "Total number of handled client connections",
		},
		[]string{"outcome"},
	)

	// ActiveConnections tracks currently open client connections.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "egressgate",
			Name:      "active_connections",
			Help:      "Number of client connections currently being handled",
		},
	)

	// RequestDuration measures end-to-end connection handling duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "egressgate",
			Name:      "request_duration_seconds",
			Help:      "Duration of connection handling in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// ACLDecisionsTotal counts access-control decisions.
	ACLDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "egressgate",
			Name:      "acl_decisions_total",
			Help:      "Total number of access-control decisions",
		},
		[]string{"action"},
	)

	// BytesTransferred counts tunneled bytes by direction.
	BytesTransferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "egressgate",
			Name:      "bytes_transferred_total",
			Help:      "Total bytes relayed through CONNECT tunnels",
		},
		[]string{"direction"},
	)

	// DNSLookupsTotal counts custom resolver lookups by result.
	DNSLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "egressgate",
			Name:      "dns_lookups_total",
			Help:      "Total number of DNS lookups through the custom resolver",
		},
		[]string{"result"},
	)
)

// Connection outcomes.
const (
	OutcomeTunnel  = "tunnel"
	OutcomeForward = "forward"
	OutcomeSpecial = "special"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
)

// RecordConnection records a finished connection and its handling duration.
func RecordConnection(outcome string, seconds float64) {
	ConnectionsTotal.WithLabelValues(outcome).Inc()
	RequestDuration.WithLabelValues(outcome).Observe(seconds)
}

// RecordDecision records one access-control decision.
func RecordDecision(permitted bool) {
	if permitted {
		ACLDecisionsTotal.WithLabelValues("permit").Inc()
	} else {
		ACLDecisionsTotal.WithLabelValues("deny").Inc()
	}
}

// RecordTunnelBytes records bytes pumped through one tunnel direction.
func RecordTunnelBytes(direction string, n int64) {
	if n > 0 {
		BytesTransferred.WithLabelValues(direction).Add(float64(n))
	}
}

// RecordDNSLookup records a resolver lookup result.
func RecordDNSLookup(result string) {
	DNSLookupsTotal.WithLabelValues(result).Inc()
}
