package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the session service.
//
// Naming convention: namespace_subsystem_name
// - namespace: playroom (application-level grouping)
// - subsystem: websocket, room, lobby (feature-level grouping)
// - name: specific metric (connections_active, events_total, etc.)

var (
	// ActiveWebSocketConnections tracks the current number of active WebSocket connections (Gauge - current state)
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "playroom",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of active rooms (Gauge - current state)
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "playroom",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// AvailableRoomCodes tracks how many codes remain in the pool (Gauge - current state)
	AvailableRoomCodes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "playroom",
		Subsystem: "lobby",
		Name:      "room_codes_available",
		Help:      "Number of room codes available in the pool",
	})

	// RoomPlayers tracks the number of players in each room (GaugeVec with room_code label)
	RoomPlayers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "playroom",
		Subsystem: "room",
		Name:      "players_count",
		Help:      "Number of players in each room",
	}, []string{"room_code"})

	// LobbyOperations counts lobby operations by outcome (CounterVec - cumulative)
	LobbyOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "playroom",
		Subsystem: "lobby",
		Name:      "operations_total",
		Help:      "Total lobby operations processed",
	}, []string{"operation", "status"})

	// WebsocketFrames counts text frames processed per session loop (CounterVec - cumulative)
	WebsocketFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "playroom",
		Subsystem: "websocket",
		Name:      "frames_total",
		Help:      "Total WebSocket text frames processed",
	}, []string{"status"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
