package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/hydrarpz/internal/api/models"
	"github.com/jroosing/hydrarpz/internal/rpz"
)

// Health godoc
// @Summary Health check
// @Description Returns server health status
// @Tags system
// @Produce json
// @Success 200 {object} models.StatusResponse
// @Failure 503 {object} models.StatusResponse
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	if h.db != nil {
		if err := h.db.Health(c.Request.Context()); err != nil {
			h.logger.Warn("trigger store unhealthy", "error", err)
			c.JSON(http.StatusServiceUnavailable, models.StatusResponse{Status: "degraded"})
			return
		}
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// Stats godoc
// @Summary Server statistics
// @Description Returns runtime statistics, trigger index sizes, lookup counters and stored trigger counts per zone
// @Tags system
// @Produce json
// @Success 200 {object} models.ServerStatsResponse
// @Security ApiKeyAuth
// @Router /stats [get]
func (h *Handler) Stats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	uptime := time.Since(h.startTime)

	resp := models.ServerStatsResponse{
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     h.startTime,
		GoRoutines:    runtime.NumGoroutine(),
		MemoryAllocMB: float64(m.Alloc) / 1024 / 1024,
		NumCPU:        runtime.NumCPU(),
		Process:       h.processStats(),
		Lookups:       map[string]models.LookupStatsResponse{},
	}

	if h.engine != nil {
		stats := h.engine.Stats()
		resp.Index = models.IndexStatsResponse{
			Zones:       stats.Index.Zones,
			CIDRNodes:   stats.Index.CIDRNodes,
			NameNodes:   stats.Index.NameNodes,
			Names:       stats.Index.Names,
			SkipRecurse: stats.Index.SkipRecurse.String(),
		}
		for t, ls := range stats.Lookups {
			resp.Lookups[t.String()] = models.LookupStatsResponse{Lookups: ls.Lookups, Matches: ls.Matches}
		}
	}

	if h.db != nil {
		if v, err := h.db.GetVersion(c.Request.Context()); err == nil {
			resp.StoreVersion = &v
		}
		if counts, err := h.db.ZoneCounts(c.Request.Context()); err == nil {
			resp.StoredTriggers = counts
		} else {
			h.logger.Warn("failed to count stored triggers", "error", err)
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) processStats() *models.ProcessStats {
	if h.proc == nil {
		return nil
	}
	ps := &models.ProcessStats{}
	if mem, err := h.proc.MemoryInfo(); err == nil {
		ps.RSSMB = float64(mem.RSS) / 1024 / 1024
	}
	if cpu, err := h.proc.CPUPercent(); err == nil {
		ps.CPUPercent = cpu
	}
	if n, err := h.proc.NumThreads(); err == nil {
		ps.NumThreads = n
	}
	return ps
}

// SkipRecurse godoc
// @Summary Zones checkable before recursion
// @Description Returns the zones whose QNAME and CLIENT-IP triggers may be checked before the query is resolved
// @Tags lookup
// @Produce json
// @Success 200 {object} models.SkipRecurseResponse
// @Security ApiKeyAuth
// @Router /skip-recurse [get]
func (h *Handler) SkipRecurse(c *gin.Context) {
	mask := h.engine.SkipRecurse()
	resp := models.SkipRecurseResponse{Mask: mask.String(), Zones: []string{}}
	for _, info := range h.engine.Zones() {
		if mask.Has(info.ID) {
			resp.Zones = append(resp.Zones, info.Name)
		}
	}
	if mask == rpz.AllZones {
		resp.Mask = "all"
	}
	c.JSON(http.StatusOK, resp)
}
