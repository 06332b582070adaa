package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/isdelr/milligram-be/internal/monitoring"
	"github.com/rs/zerolog/hlog"
)

// Pinger is a dependency whose reachability is reported by the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports process and dependency health.
type HealthHandler struct {
	store   Pinger
	stats   *monitoring.StatsCollector
	clients func() int
}

// NewHealthHandler creates a new HealthHandler. clients may be nil.
func NewHealthHandler(store Pinger, stats *monitoring.StatsCollector, clients func() int) *HealthHandler {
	return &HealthHandler{store: store, stats: stats, clients: clients}
}

func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code, storeStatus := "ok", http.StatusOK, "ok"
	if err := h.store.Ping(ctx); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Health check: store unreachable")
		status, code, storeStatus = "degraded", http.StatusServiceUnavailable, "unreachable"
	}

	stats := h.stats.Collect()
	body := M{
		"status":     status,
		"store":      storeStatus,
		"uptime":     stats.Uptime,
		"goroutines": stats.Goroutines,
		"memRss":     stats.MemRSS,
		"cpuPercent": stats.CPUPercent,
	}
	if h.clients != nil {
		body["wsClients"] = h.clients()
	}
	writeJSON(w, code, body)
}
