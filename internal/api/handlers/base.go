// Package handlers implements the REST API endpoint handlers for HydraRPZ.
//
// REST API Endpoints:
//
// System:
//   - GET /api/v1/health - Health check status
//   - GET /api/v1/stats - Server statistics (uptime, process, index sizes, lookup counters, stored triggers)
//
// Policy Zones:
//   - GET /api/v1/zones - List policy zones in precedence order
//   - GET /api/v1/zones/:name - Zone details with every trigger owner name
//   - DELETE /api/v1/zones/:name - Remove a zone from the index
//   - POST /api/v1/zones/:name/triggers - Add a trigger
//   - PUT /api/v1/zones/:name/triggers - Replace the stored triggers and reload
//   - DELETE /api/v1/zones/:name/triggers - Remove a trigger
//   - POST /api/v1/zones/:name/reload - Reload the zone from its sources
//
// Lookups:
//   - GET /api/v1/lookup/address - Winning CLIENT-IP, IP or NSIP trigger for an address
//   - GET /api/v1/lookup/name - Zones with a QNAME or NSDNAME trigger for a name
//   - GET /api/v1/skip-recurse - Zones checkable before recursion
//
// Authentication:
//
// Every endpoint except /health accepts an optional API key in the
// X-API-Key header. When a key is configured it is required.
//
// @title HydraRPZ Management API
// @version 1.0
// @description REST API for inspecting and maintaining DNS response policy zones.
//
// @contact.name HydraRPZ Support
// @contact.url https://github.com/jroosing/hydrarpz
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @host localhost:8080
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/jroosing/hydrarpz/internal/api/models"
	"github.com/jroosing/hydrarpz/internal/database"
	"github.com/jroosing/hydrarpz/internal/policy"
	"github.com/jroosing/hydrarpz/internal/rpz"
)

// Handler contains dependencies for API handlers.
type Handler struct {
	engine    *policy.Engine
	db        *database.DB
	logger    *slog.Logger
	startTime time.Time
	proc      *process.Process
}

// New creates a Handler. db may be nil when no trigger store is configured.
func New(engine *policy.Engine, db *database.DB, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		engine:    engine,
		db:        db,
		logger:    logger,
		startTime: time.Now(),
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		h.proc = p
	} else {
		logger.Debug("process stats unavailable", "error", err)
	}
	return h
}

// fail maps engine errors to HTTP status codes.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, policy.ErrUnknownZone), errors.Is(err, rpz.ErrUnknownZone):
		status = http.StatusNotFound
	case errors.Is(err, rpz.ErrInvalidTrigger), errors.Is(err, rpz.ErrBadZone):
		status = http.StatusBadRequest
	case errors.Is(err, rpz.ErrOutOfMemory):
		status = http.StatusInsufficientStorage
	case errors.Is(err, policy.ErrNoStore):
		status = http.StatusNotImplemented
	case errors.Is(err, rpz.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("api request failed", "path", c.FullPath(), "error", err)
	}
	_ = c.Error(err)
	c.JSON(status, models.ErrorResponse{Error: err.Error()})
}
