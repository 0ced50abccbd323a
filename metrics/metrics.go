package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	// Connection Metrics
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_active",
		Help: "The current number of active WebSocket connections.",
	})
	TotalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_connections_total",
		Help: "The total number of WebSocket connections accepted.",
	})
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_messages_received_total",
		Help: "The total number of messages received from clients.",
	})
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_messages_sent_total",
		Help: "The total number of messages sent to clients.",
	})
	StaleConnectionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_stale_connections_swept_total",
		Help: "The total number of connections force-closed by the staleness sweep.",
	})

	// Session Metrics
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "game_sessions_active",
		Help: "The current number of active game sessions.",
	})
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "game_sessions_created_total",
		Help: "The total number of game sessions created by the matchmaker.",
	})
	SessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "game_sessions_ended_total",
		Help: "The total number of game sessions ended, by terminal reason.",
	}, []string{"reason"})
	MovesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "game_moves_applied_total",
		Help: "The total number of legal moves applied to sessions.",
	})
	MovesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "game_moves_rejected_total",
		Help: "The total number of rejected moves, by reason.",
	}, []string{"reason"})

	// Reconnection Metrics
	GrantsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconnect_tokens_issued_total",
		Help: "The total number of reconnection tokens issued to clients.",
	})
	ReconnectionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconnect_attempts_total",
		Help: "The total number of reconnection attempts, by result.",
	}, []string{"result"})
	ForfeituresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconnect_forfeitures_total",
		Help: "The total number of sessions forfeited after the reconnection window elapsed.",
	})
)

// StartServer starts the HTTP server for Prometheus metrics.
func StartServer(port int, path string) {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	log.Info().Str("addr", addr).Str("path", path).Msg("starting metrics server")

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Fatal().Err(err).Msg("metrics server failed")
		}
	}()
}
