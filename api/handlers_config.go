package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// handleHealth returns the health status of the API
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Health.Ping(ctx); err != nil {
			s.log.Warn("⚠️ Health check failed", zap.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEvents streams the caller's cycle events over SSE.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Broker == nil {
		respondJSON(w, http.StatusServiceUnavailable, errorBody{Error: "event stream disabled"})
		return
	}
	// Streams outlive the server write timeout.
	http.NewResponseController(w).SetWriteDeadline(time.Time{})
	s.deps.Broker.ServeSSE(w, r, userFrom(r.Context()).ID)
}

// handleWS streams the caller's cycle events over a WebSocket.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.deps.Broker == nil {
		respondJSON(w, http.StatusServiceUnavailable, errorBody{Error: "event stream disabled"})
		return
	}
	s.deps.Broker.ServeWS(s.upgrader, w, r, userFrom(r.Context()).ID)
}
