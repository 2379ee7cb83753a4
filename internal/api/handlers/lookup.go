package handlers

import (
	"net/http"
	"net/netip"

	"github.com/gin-gonic/gin"
	"github.com/miekg/dns"

	"github.com/jroosing/hydrarpz/internal/api/models"
	"github.com/jroosing/hydrarpz/internal/rpz"
)

// LookupAddress godoc
// @Summary Look up an address
// @Description Returns the CLIENT-IP, IP or NSIP trigger that applies to an address
// @Tags lookup
// @Produce json
// @Param type query string true "Trigger type" Enums(client-ip, ip, nsip)
// @Param addr query string true "IPv4 or IPv6 address"
// @Success 200 {object} models.AddressLookupResponse
// @Failure 400 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /lookup/address [get]
func (h *Handler) LookupAddress(c *gin.Context) {
	t, err := rpz.ParseType(c.Query("type"))
	if err != nil || !t.IsAddress() {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "type must be client-ip, ip or nsip"})
		return
	}
	addr, err := netip.ParseAddr(c.Query("addr"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid address: " + err.Error()})
		return
	}

	resp := models.AddressLookupResponse{Type: t.String(), Address: addr.String()}
	if m, ok := h.engine.LookupAddress(t, addr); ok {
		id := int(m.Zone.ID)
		resp.Matched = true
		resp.Zone = m.Zone.Name
		resp.ZoneID = &id
		resp.Prefix = m.Prefix.String()
		resp.Trigger = m.Trigger
	}
	c.JSON(http.StatusOK, resp)
}

// LookupName godoc
// @Summary Look up a name
// @Description Returns every zone with a QNAME or NSDNAME trigger for a name, in precedence order
// @Tags lookup
// @Produce json
// @Param type query string true "Trigger type" Enums(qname, nsdname)
// @Param name query string true "Domain name"
// @Success 200 {object} models.NameLookupResponse
// @Failure 400 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /lookup/name [get]
func (h *Handler) LookupName(c *gin.Context) {
	t, err := rpz.ParseType(c.Query("type"))
	if err != nil || !t.IsName() {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "type must be qname or nsdname"})
		return
	}
	name := c.Query("name")
	if _, ok := dns.IsDomainName(name); !ok || name == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid domain name"})
		return
	}

	name = rpz.CanonicalName(name)
	resp := models.NameLookupResponse{Type: t.String(), Name: name, Zones: []string{}}
	for _, info := range h.engine.LookupName(t, name) {
		resp.Zones = append(resp.Zones, info.Name)
	}
	resp.Matched = len(resp.Zones) > 0
	c.JSON(http.StatusOK, resp)
}
