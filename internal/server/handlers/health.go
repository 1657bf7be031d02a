package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Probe проверяет доступность хранилища реплики
type Probe func(ctx context.Context) error

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	logger   *slog.Logger
	probe    Probe
	lastTrim func() time.Time
	version  string
}

// NewHealthHandler создает новый handler для health check.
// lastTrim может быть nil.
func NewHealthHandler(logger *slog.Logger, version string, probe Probe, lastTrim func() time.Time) *HealthHandler {
	return &HealthHandler{
		logger:   logger,
		version:  version,
		probe:    probe,
		lastTrim: lastTrim,
	}
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	LastTrim *time.Time `json:"last_trim,omitempty"`
	Status   string     `json:"status"`
	Version  string     `json:"version,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// Health обрабатывает GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: h.version,
	}
	status := http.StatusOK

	if h.probe != nil {
		if err := h.probe(r.Context()); err != nil {
			h.logger.Warn("health probe failed", slog.Any("error", err))
			resp.Status = "unavailable"
			resp.Error = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	if h.lastTrim != nil {
		// нулевое время означает что trim еще не выполнялся
		if ts := h.lastTrim(); !ts.IsZero() {
			resp.LastTrim = &ts
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}
