package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/miekg/dns"

	"github.com/jroosing/hydrarpz/internal/api/models"
	"github.com/jroosing/hydrarpz/internal/policy"
	"github.com/jroosing/hydrarpz/internal/rpz"
)

func zoneSummary(info policy.ZoneInfo) models.ZoneSummary {
	s := models.ZoneSummary{
		ID:       int(info.ID),
		Name:     info.Name,
		Origin:   info.Origin,
		File:     info.File,
		Format:   info.Format.String(),
		Loaded:   info.Loaded,
		Rejected: info.Rejected,
		Triggers: models.TriggerCounts{
			ClientIPv4: info.Counts.ClientIPv4,
			ClientIPv6: info.Counts.ClientIPv6,
			IPv4:       info.Counts.IPv4,
			IPv6:       info.Counts.IPv6,
			NSIPv4:     info.Counts.NSIPv4,
			NSIPv6:     info.Counts.NSIPv6,
			QName:      info.Counts.QName,
			NSDName:    info.Counts.NSDName,
			Total:      info.Counts.Total(),
		},
	}
	if !info.LastLoad.IsZero() {
		t := info.LastLoad
		s.LastLoad = &t
	}
	if info.LastError != nil {
		s.LastError = info.LastError.Error()
	}
	return s
}

// ListZones godoc
// @Summary List policy zones
// @Description Returns every policy zone in precedence order
// @Tags zones
// @Produce json
// @Success 200 {object} models.ZoneListResponse
// @Security ApiKeyAuth
// @Router /zones [get]
func (h *Handler) ListZones(c *gin.Context) {
	infos := h.engine.Zones()
	summaries := make([]models.ZoneSummary, 0, len(infos))
	for _, info := range infos {
		summaries = append(summaries, zoneSummary(info))
	}
	c.JSON(http.StatusOK, models.ZoneListResponse{
		Zones: summaries,
		Count: len(summaries),
	})
}

// GetZone godoc
// @Summary Get zone details
// @Description Returns a policy zone and the owner names of all its triggers
// @Tags zones
// @Produce json
// @Param name path string true "Zone name"
// @Success 200 {object} models.ZoneDetailResponse
// @Failure 404 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /zones/{name} [get]
func (h *Handler) GetZone(c *gin.Context) {
	name := c.Param("name")
	info, ok := h.engine.Zone(name)
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "zone not found"})
		return
	}
	triggers, err := h.engine.Triggers(name)
	if err != nil {
		h.fail(c, err)
		return
	}
	if triggers == nil {
		triggers = []string{}
	}
	c.JSON(http.StatusOK, models.ZoneDetailResponse{
		ZoneSummary:  zoneSummary(info),
		TriggerNames: triggers,
	})
}

// AddTrigger godoc
// @Summary Add a trigger
// @Description Adds one trigger to a policy zone and records it in the trigger store
// @Tags zones
// @Accept json
// @Produce json
// @Param name path string true "Zone name"
// @Param trigger body models.TriggerRequest true "Trigger owner name"
// @Success 200 {object} models.TriggerResponse
// @Success 201 {object} models.TriggerResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 507 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /zones/{name}/triggers [post]
func (h *Handler) AddTrigger(c *gin.Context) {
	h.changeTrigger(c, true)
}

// DeleteTrigger godoc
// @Summary Remove a trigger
// @Description Removes one trigger from a policy zone and from the trigger store
// @Tags zones
// @Accept json
// @Produce json
// @Param name path string true "Zone name"
// @Param trigger body models.TriggerRequest true "Trigger owner name"
// @Success 200 {object} models.TriggerResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /zones/{name}/triggers [delete]
func (h *Handler) DeleteTrigger(c *gin.Context) {
	h.changeTrigger(c, false)
}

// qualify completes a relative owner name with the zone origin.
func qualify(owner, origin string) string {
	owner = strings.TrimSpace(owner)
	if !dns.IsFqdn(owner) {
		owner = dns.Fqdn(owner) + strings.TrimPrefix(origin, ".")
	}
	return owner
}

func (h *Handler) changeTrigger(c *gin.Context, add bool) {
	name := c.Param("name")
	var req models.TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}
	info, ok := h.engine.Zone(name)
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "zone not found"})
		return
	}

	owner := qualify(req.Trigger, info.Origin)

	var out rpz.Outcome
	var err error
	if add {
		out, err = h.engine.AddTrigger(c.Request.Context(), name, owner)
	} else {
		out, err = h.engine.DeleteTrigger(c.Request.Context(), name, owner)
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	status := http.StatusOK
	if out == rpz.Added {
		status = http.StatusCreated
	}
	c.JSON(status, models.TriggerResponse{
		Zone:    name,
		Trigger: rpz.CanonicalName(owner),
		Outcome: out.String(),
	})
}

// ReplaceTriggers godoc
// @Summary Replace stored triggers
// @Description Replaces every stored trigger of a policy zone and reloads the zone. Triggers from the zone file are kept.
// @Tags zones
// @Accept json
// @Produce json
// @Param name path string true "Zone name"
// @Param triggers body models.ReplaceTriggersRequest true "Trigger owner names"
// @Success 200 {object} models.ReloadResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 501 {object} models.ErrorResponse
// @Failure 507 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /zones/{name}/triggers [put]
func (h *Handler) ReplaceTriggers(c *gin.Context) {
	name := c.Param("name")
	var req models.ReplaceTriggersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}
	info, ok := h.engine.Zone(name)
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "zone not found"})
		return
	}

	owners := make([]string, 0, len(req.Triggers))
	for _, t := range req.Triggers {
		owners = append(owners, qualify(t, info.Origin))
	}
	res, err := h.engine.ReplaceTriggers(c.Request.Context(), name, owners)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reloadResponse(res))
}

// RemoveZone godoc
// @Summary Remove a zone
// @Description Drops a policy zone and all of its triggers from the index. Stored triggers are kept.
// @Tags zones
// @Produce json
// @Param name path string true "Zone name"
// @Success 200 {object} models.StatusResponse
// @Failure 404 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /zones/{name} [delete]
func (h *Handler) RemoveZone(c *gin.Context) {
	if err := h.engine.RemoveZone(c.Param("name")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: "removed"})
}

func reloadResponse(res policy.LoadResult) models.ReloadResponse {
	return models.ReloadResponse{
		Zone:       res.Zone,
		Added:      res.Added,
		Duplicates: res.Duplicates,
		Rejected:   res.Rejected,
		DurationMs: res.Duration.Milliseconds(),
	}
}

// ReloadZone godoc
// @Summary Reload a zone
// @Description Re-reads the zone's file and stored triggers and swaps them in atomically
// @Tags zones
// @Produce json
// @Param name path string true "Zone name"
// @Success 200 {object} models.ReloadResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /zones/{name}/reload [post]
func (h *Handler) ReloadZone(c *gin.Context) {
	res, err := h.engine.LoadZone(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reloadResponse(res))
}
