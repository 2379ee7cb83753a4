package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/hydrarpz/internal/api/models"
)

func TestHealth_ReturnsOK(t *testing.T) {
	env := newTestEnv(t)

	w := performRequest(env.router, http.MethodGet, "/api/v1/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHealth_WithoutStore(t *testing.T) {
	r := setupTestRouter(newBareHandler())

	w := performRequest(r, http.MethodGet, "/api/v1/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealth_DegradedWhenStoreClosed(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Close())

	w := performRequest(env.router, http.MethodGet, "/api/v1/health", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
}

func TestStats_ReturnsServerStats(t *testing.T) {
	env := newTestEnv(t)
	performRequest(env.router, http.MethodGet, "/api/v1/lookup/name?type=qname&name=ads.example.com", "")
	performRequest(env.router, http.MethodPost, "/api/v1/zones/block/triggers", `{"trigger": "one.example"}`)
	performRequest(env.router, http.MethodPost, "/api/v1/zones/block/triggers", `{"trigger": "two.example"}`)

	w := performRequest(env.router, http.MethodGet, "/api/v1/stats", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.ServerStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Uptime)
	assert.Positive(t, resp.GoRoutines)
	assert.Equal(t, 2, resp.Index.Zones)
	assert.Positive(t, resp.Index.CIDRNodes)
	assert.Equal(t, uint64(1), resp.Lookups["qname"].Lookups)
	assert.Equal(t, uint64(1), resp.Lookups["qname"].Matches)
	assert.Contains(t, resp.Lookups, "nsip")
	require.NotNil(t, resp.StoreVersion)
	assert.Equal(t, map[string]int{"block": 2}, resp.StoredTriggers)
}

func TestStats_WithoutStore(t *testing.T) {
	r := setupTestRouter(newBareHandler())

	w := performRequest(r, http.MethodGet, "/api/v1/stats", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.ServerStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp.StoreVersion)
	assert.Nil(t, resp.StoredTriggers)
	assert.Zero(t, resp.Index.Zones)
}

func TestSkipRecurse(t *testing.T) {
	env := newTestEnv(t)

	w := performRequest(env.router, http.MethodGet, "/api/v1/skip-recurse", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.SkipRecurseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	// Zone 0 is the lowest zone that needs recursion and it has QNAME
	// triggers, so only it may be checked early.
	assert.Equal(t, []string{"allow"}, resp.Zones)
}

func TestSkipRecurse_NoZones(t *testing.T) {
	r := setupTestRouter(newBareHandler())

	w := performRequest(r, http.MethodGet, "/api/v1/skip-recurse", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.SkipRecurseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "all", resp.Mask)
	assert.Empty(t, resp.Zones)
}
