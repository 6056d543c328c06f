package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionStatus is the read side of the gateway session.
type SessionStatus interface {
	IsActive() bool
}

// BrokerStatus is the read side of the NATS connection.
type BrokerStatus interface {
	IsConnected() bool
}

type readinessResponse struct {
	Status          string `json:"status"`
	SessionActive   bool   `json:"session_active"`
	BrokerConnected *bool  `json:"broker_connected,omitempty"`
}

// NewOpsRouter serves liveness, readiness and Prometheus metrics.
// broker may be nil when the service runs without NATS.
func NewOpsRouter(session SessionStatus, broker BrokerStatus, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		resp := readinessResponse{Status: "ready", SessionActive: session.IsActive()}
		ready := resp.SessionActive
		if broker != nil {
			connected := broker.IsConnected()
			resp.BrokerConnected = &connected
			ready = ready && connected
		}
		if !ready {
			resp.Status = "degraded"
			writeJSON(w, logger, http.StatusServiceUnavailable, resp)
			return
		}
		writeJSON(w, logger, http.StatusOK, resp)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode ops response", "error", err)
	}
}
