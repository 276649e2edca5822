package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the multiplayer coordination server.
//
// Naming convention: namespace_subsystem_name
// - namespace: rhythm_multiplayer (application-level grouping)
// - subsystem: session, room, identity (feature-level grouping)
// - name: specific metric (connections_active, commands_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, players)
// - Counter: Cumulative events (commands processed, errors)
// - Histogram: Latency distributions (upstream request time)

var (
	// ActiveConnections tracks the current number of open TCP sessions (Gauge - current state)
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rhythm_multiplayer",
		Subsystem: "session",
		Name:      "connections_active",
		Help:      "Current number of open client connections",
	})

	// AuthenticatedUsers tracks the current number of authenticated users (Gauge - current state)
	AuthenticatedUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rhythm_multiplayer",
		Subsystem: "session",
		Name:      "users_authenticated",
		Help:      "Current number of authenticated users",
	})

	// ActiveRooms tracks the current number of active rooms (Gauge - current state)
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rhythm_multiplayer",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomPlayers tracks the number of players in each room (GaugeVec with room_id label - current state per room)
	RoomPlayers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rhythm_multiplayer",
		Subsystem: "room",
		Name:      "players_count",
		Help:      "Number of players in each room",
	}, []string{"room_id"})

	// Commands tracks the total number of client commands processed (CounterVec - cumulative)
	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rhythm_multiplayer",
		Subsystem: "session",
		Name:      "commands_total",
		Help:      "Total client commands processed",
	}, []string{"command", "status"})

	// SessionsReattached tracks reconnects that took over an existing user (Counter - cumulative)
	SessionsReattached = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rhythm_multiplayer",
		Subsystem: "session",
		Name:      "reattached_total",
		Help:      "Total sessions that reattached to an existing user",
	})

	// DanglesExpired tracks users dropped after the reconnect grace period (Counter - cumulative)
	DanglesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rhythm_multiplayer",
		Subsystem: "session",
		Name:      "dangles_expired_total",
		Help:      "Total users dropped after the reconnect grace period lapsed",
	})

	// ChatRateLimited tracks chat messages rejected by the flood limiter (Counter - cumulative)
	ChatRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rhythm_multiplayer",
		Subsystem: "session",
		Name:      "chat_rate_limited_total",
		Help:      "Total chat messages rejected by the flood limiter",
	})

	// IdentityRequestDuration tracks the time spent calling the identity service (HistogramVec - latency distribution)
	IdentityRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rhythm_multiplayer",
		Subsystem: "identity",
		Name:      "request_seconds",
		Help:      "Time spent on identity service requests",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"endpoint", "status"})

	// CircuitBreakerState tracks breaker state per upstream (GaugeVec - 0 closed, 1 open, 2 half-open)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rhythm_multiplayer",
		Subsystem: "identity",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state per upstream (0 closed, 1 open, 2 half-open)",
	}, []string{"upstream"})
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
