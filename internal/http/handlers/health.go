package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hongminglow/moviebox-be/internal/http/respond"
	"github.com/hongminglow/moviebox-be/internal/storage"
)

const healthTimeout = 5 * time.Second

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and store health endpoints.
type HealthHandler struct {
	startedAt time.Time
	store     Pinger
	state     func() string
	logger    *zap.Logger
}

// NewHealthHandler creates a health endpoint handler. state reports the
// store connection state for the liveness payload and may be nil.
func NewHealthHandler(startedAt time.Time, store Pinger, state func() string, logger *zap.Logger) *HealthHandler {
	if state == nil {
		state = func() string { return "unknown" }
	}
	return &HealthHandler{startedAt: startedAt, store: store, state: state, logger: logger}
}

// Register wires the handler into a ServeMux.
func (h *HealthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/test", h.handleTest)
	mux.HandleFunc("GET /api/health", h.handleHealth)
}

func (h *HealthHandler) handleTest(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{
		"message": "Backend API is running",
		"uptime":  time.Since(h.startedAt).Truncate(time.Second).String(),
		"db":      h.state(),
	})
}

func (h *HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	err := h.store.Ping(ctx)
	switch {
	case err == nil:
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok", "db": "connected"})
	case errors.Is(err, storage.ErrUnavailable):
		h.logger.Error("database health check failed", zap.Error(err))
		respond.JSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"message": "Database service unavailable",
		})
	default:
		h.logger.Error("database health check failed", zap.Error(err))
		respond.JSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": "Database connection failed",
			"details": err.Error(),
		})
	}
}
