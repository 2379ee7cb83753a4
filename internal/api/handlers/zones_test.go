package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/hydrarpz/internal/api/models"
)

func TestListZones(t *testing.T) {
	env := newTestEnv(t)

	w := performRequest(env.router, http.MethodGet, "/api/v1/zones", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.ZoneListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "allow", resp.Zones[0].Name)
	assert.Equal(t, 0, resp.Zones[0].ID)
	assert.Equal(t, "block", resp.Zones[1].Name)
	assert.Equal(t, "block.rpz.", resp.Zones[1].Origin)

	counts := resp.Zones[1].Triggers
	assert.Equal(t, 2, counts.QName)
	assert.Equal(t, 1, counts.IPv4)
	assert.Equal(t, 1, counts.ClientIPv4)
	assert.Equal(t, 1, counts.NSDName)
	assert.Equal(t, 5, counts.Total)
}

func TestGetZone(t *testing.T) {
	env := newTestEnv(t)

	w := performRequest(env.router, http.MethodGet, "/api/v1/zones/allow", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.ZoneDetailResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "allow", resp.Name)
	assert.ElementsMatch(t, []string{
		"safe.example.com.allow.rpz.",
		"32.1.2.0.192.rpz-ip.allow.rpz.",
	}, resp.TriggerNames)
}

func TestGetZone_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := performRequest(env.router, http.MethodGet, "/api/v1/zones/missing", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddTrigger_RelativeName(t *testing.T) {
	env := newTestEnv(t)

	w := performRequest(env.router, http.MethodPost, "/api/v1/zones/block/triggers",
		`{"trigger": "Malware.Example.NET"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp models.TriggerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "malware.example.net.block.rpz.", resp.Trigger)
	assert.Equal(t, "added", resp.Outcome)

	stored, err := env.db.ZoneTriggers(context.Background(), "block")
	require.NoError(t, err)
	assert.Equal(t, []string{"malware.example.net.block.rpz."}, stored)

	w = performRequest(env.router, http.MethodGet, "/api/v1/lookup/name?type=qname&name=malware.example.net", "")
	var lookup models.NameLookupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lookup))
	assert.Equal(t, []string{"block"}, lookup.Zones)
}

func TestAddTrigger_AlreadyPresent(t *testing.T) {
	env := newTestEnv(t)

	w := performRequest(env.router, http.MethodPost, "/api/v1/zones/block/triggers",
		`{"trigger": "ads.example.com.block.rpz."}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.TriggerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "already-present", resp.Outcome)
}

func TestAddTrigger_Invalid(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		zone string
		body string
		code int
	}{
		{"missing body field", "block", `{}`, http.StatusBadRequest},
		{"malformed json", "block", `{"trigger":`, http.StatusBadRequest},
		{"bad address trigger", "block", `{"trigger": "33.1.2.0.192.rpz-ip"}`, http.StatusBadRequest},
		{"unknown zone", "missing", `{"trigger": "x.example"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(env.router, http.MethodPost, "/api/v1/zones/"+tt.zone+"/triggers", tt.body)
			assert.Equal(t, tt.code, w.Code)

			var resp models.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestDeleteTrigger(t *testing.T) {
	env := newTestEnv(t)

	w := performRequest(env.router, http.MethodDelete, "/api/v1/zones/block/triggers",
		`{"trigger": "24.0.2.0.192.rpz-ip"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.TriggerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "deleted", resp.Outcome)

	w = performRequest(env.router, http.MethodGet, "/api/v1/lookup/address?type=ip&addr=192.0.2.9", "")
	var lookup models.AddressLookupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lookup))
	assert.False(t, lookup.Matched)

	w = performRequest(env.router, http.MethodDelete, "/api/v1/zones/block/triggers",
		`{"trigger": "24.0.2.0.192.rpz-ip"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not-found", resp.Outcome)
}

func TestReloadZone_FromStore(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.AddTrigger(context.Background(), "block", "stored.example.block.rpz."))

	w := performRequest(env.router, http.MethodPost, "/api/v1/zones/block/reload", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.ReloadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "block", resp.Zone)
	assert.Equal(t, 1, resp.Added)

	// The reload replaced the zone's previous triggers.
	w = performRequest(env.router, http.MethodGet, "/api/v1/zones/block", "")
	var detail models.ZoneDetailResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, []string{"stored.example.block.rpz."}, detail.TriggerNames)

	// Other zones are untouched.
	w = performRequest(env.router, http.MethodGet, "/api/v1/zones/allow", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Len(t, detail.TriggerNames, 2)
}

func TestReloadZone_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := performRequest(env.router, http.MethodPost, "/api/v1/zones/missing/reload", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReplaceTriggers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.db.AddTrigger(ctx, "block", "old.example.block.rpz."))

	w := performRequest(env.router, http.MethodPut, "/api/v1/zones/block/triggers",
		`{"triggers": ["New.Example", "24.0.2.0.192.rpz-ip", "other.example.block.rpz."]}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.ReloadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "block", resp.Zone)
	assert.Equal(t, 3, resp.Added)

	stored, err := env.db.ZoneTriggers(ctx, "block")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"new.example.block.rpz.",
		"24.0.2.0.192.rpz-ip.block.rpz.",
		"other.example.block.rpz.",
	}, stored)

	w = performRequest(env.router, http.MethodGet, "/api/v1/zones/block", "")
	var detail models.ZoneDetailResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.ElementsMatch(t, stored, detail.TriggerNames)
}

func TestReplaceTriggers_Errors(t *testing.T) {
	env := newTestEnv(t)

	w := performRequest(env.router, http.MethodPut, "/api/v1/zones/missing/triggers", `{"triggers": []}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performRequest(env.router, http.MethodPut, "/api/v1/zones/block/triggers", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r := setupTestRouter(newBareHandler())
	w = performRequest(r, http.MethodPut, "/api/v1/zones/block/triggers", `{"triggers": ["x.example"]}`)
	assert.Equal(t, http.StatusNotFound, w.Code, "zone unknown to a bare engine")
}

func TestRemoveZone(t *testing.T) {
	env := newTestEnv(t)

	w := performRequest(env.router, http.MethodDelete, "/api/v1/zones/block", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "removed", resp.Status)

	w = performRequest(env.router, http.MethodGet, "/api/v1/zones/block", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performRequest(env.router, http.MethodGet, "/api/v1/lookup/name?type=qname&name=ads.example.com", "")
	var lookup models.NameLookupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lookup))
	assert.False(t, lookup.Matched)

	w = performRequest(env.router, http.MethodGet, "/api/v1/zones", "")
	var list models.ZoneListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	w = performRequest(env.router, http.MethodDelete, "/api/v1/zones/block", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
