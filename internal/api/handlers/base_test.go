// Package handlers_test provides behavior tests for the API handlers package.
package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/hydrarpz/internal/api/handlers"
	"github.com/jroosing/hydrarpz/internal/database"
	"github.com/jroosing/hydrarpz/internal/logging"
	"github.com/jroosing/hydrarpz/internal/policy"
	"github.com/jroosing/hydrarpz/internal/rpz"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestRouter(h *handlers.Handler) *gin.Engine {
	r := gin.New()

	api := r.Group("/api/v1")
	api.GET("/health", h.Health)
	api.GET("/stats", h.Stats)
	api.GET("/zones", h.ListZones)
	api.GET("/zones/:name", h.GetZone)
	api.DELETE("/zones/:name", h.RemoveZone)
	api.POST("/zones/:name/triggers", h.AddTrigger)
	api.PUT("/zones/:name/triggers", h.ReplaceTriggers)
	api.DELETE("/zones/:name/triggers", h.DeleteTrigger)
	api.POST("/zones/:name/reload", h.ReloadZone)
	api.GET("/lookup/address", h.LookupAddress)
	api.GET("/lookup/name", h.LookupName)
	api.GET("/skip-recurse", h.SkipRecurse)

	return r
}

// testEnv holds two zones: "allow" (id 0, higher precedence) and "block"
// (id 1), both backed by a temporary trigger store.
type testEnv struct {
	engine *policy.Engine
	db     *database.DB
	router *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "triggers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := logging.Discard()
	engine := policy.NewEngine(policy.Config{Logger: logger, Store: db})
	t.Cleanup(func() { _ = engine.Close() })

	for i, name := range []string{"allow", "block"} {
		_, err := engine.AddZone(policy.ZoneSource{Spec: rpz.ZoneSpec{
			ID:     rpz.ZoneID(i),
			Name:   name,
			Origin: name + ".rpz.",
		}})
		require.NoError(t, err)
	}

	ctx := context.Background()
	_, err = engine.LoadTriggers(ctx, 0, []string{
		"safe.example.com.allow.rpz.",
		"32.1.2.0.192.rpz-ip.allow.rpz.",
	})
	require.NoError(t, err)
	_, err = engine.LoadTriggers(ctx, 1, []string{
		"ads.example.com.block.rpz.",
		"*.tracker.example.block.rpz.",
		"24.0.2.0.192.rpz-ip.block.rpz.",
		"32.53.0.0.10.rpz-client-ip.block.rpz.",
		"ns1.evil.example.rpz-nsdname.block.rpz.",
	})
	require.NoError(t, err)

	return &testEnv{
		engine: engine,
		db:     db,
		router: setupTestRouter(handlers.New(engine, db, logger)),
	}
}

func newBareHandler() *handlers.Handler {
	engine := policy.NewEngine(policy.Config{Logger: logging.Discard()})
	return handlers.New(engine, nil, logging.Discard())
}

func performRequest(r http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
