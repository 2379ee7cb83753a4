package policy

import (
	"bytes"
	"context"
	"log/slog"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/hydrarpz/internal/rpz"
)

type memStore struct {
	mu       sync.Mutex
	triggers map[string][]string
}

func newMemStore() *memStore {
	return &memStore{triggers: make(map[string][]string)}
}

func (s *memStore) ZoneTriggers(_ context.Context, zone string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.triggers[zone]), nil
}

func (s *memStore) AddTrigger(_ context.Context, zone, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.triggers[zone], owner) {
		s.triggers[zone] = append(s.triggers[zone], owner)
	}
	return nil
}

func (s *memStore) DeleteTrigger(_ context.Context, zone, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers[zone] = slices.DeleteFunc(s.triggers[zone], func(o string) bool { return o == owner })
	return nil
}

func (s *memStore) ReplaceZoneTriggers(_ context.Context, zone string, owners []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers[zone] = slices.Compact(slices.Sorted(slices.Values(owners)))
	return nil
}

func newTestEngine(t *testing.T, store TriggerStore) (*Engine, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	e := NewEngine(Config{
		Logger: slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Store:  store,
	})
	t.Cleanup(func() { _ = e.Close() })
	return e, &logs
}

func TestEngine_LoadZoneFromFile(t *testing.T) {
	e, logs := newTestEngine(t, nil)
	path := createTempFile(t, testZone+"bad.33.1.2.0.192.rpz-ip CNAME .\n")

	_, err := e.AddZone(ZoneSource{Spec: rpz.ZoneSpec{ID: 0, Origin: "rpz.example"}, File: path, Format: FormatZone})
	require.NoError(t, err)

	res, err := e.LoadZone(context.Background(), "rpz.example")
	require.NoError(t, err)
	assert.Equal(t, 6, res.Added)
	assert.Equal(t, 1, res.Rejected)
	assert.Contains(t, logs.String(), "Invalid policy trigger")
	assert.Contains(t, logs.String(), "Loaded policy zone")

	info, ok := e.Zone("rpz.example")
	require.True(t, ok)
	assert.Equal(t, 6, info.Loaded)
	assert.Equal(t, 1, info.Rejected)
	assert.NoError(t, info.LastError)
	assert.False(t, info.LastLoad.IsZero())
	assert.Equal(t, rpz.TriggerCounts{QName: 3, IPv4: 1, ClientIPv4: 1, NSDName: 1}, info.Counts)

	m, ok := e.LookupAddress(rpz.TypeIP, netip.MustParseAddr("192.0.2.77"))
	require.True(t, ok)
	assert.Equal(t, "rpz.example", m.Zone.Name)
	assert.Equal(t, netip.MustParsePrefix("192.0.2.0/24"), m.Prefix)
	assert.Equal(t, "24.0.2.0.192", m.Trigger)

	zones := e.LookupName(rpz.TypeQName, "x.ads.example.com")
	require.Len(t, zones, 1)
	assert.Equal(t, rpz.ZoneID(0), zones[0].ID)

	assert.Empty(t, e.LookupName(rpz.TypeQName, "example.net"))

	stats := e.Stats()
	assert.Equal(t, LookupStats{Lookups: 2, Matches: 1}, stats.Lookups[rpz.TypeQName])
	assert.Equal(t, LookupStats{Lookups: 1, Matches: 1}, stats.Lookups[rpz.TypeIP])
	assert.Equal(t, 1, stats.Index.Zones)
}

func TestEngine_ReloadReplacesTriggers(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	path := createTempFile(t, "old.example.com\n")

	_, err := e.AddZone(ZoneSource{Spec: rpz.ZoneSpec{ID: 0, Origin: "rpz.example."}, File: path, Format: FormatList})
	require.NoError(t, err)
	_, err = e.LoadZone(context.Background(), "rpz.example")
	require.NoError(t, err)
	require.Len(t, e.LookupName(rpz.TypeQName, "old.example.com"), 1)

	require.NoError(t, writeFile(path, "new.example.com\n"))
	_, err = e.LoadZone(context.Background(), "rpz.example")
	require.NoError(t, err)

	assert.Empty(t, e.LookupName(rpz.TypeQName, "old.example.com"))
	assert.Len(t, e.LookupName(rpz.TypeQName, "new.example.com"), 1)

	triggers, err := e.Triggers("rpz.example")
	require.NoError(t, err)
	assert.Equal(t, []string{"new.example.com.rpz.example."}, triggers)
}

func TestEngine_LoadFailureRecorded(t *testing.T) {
	e, logs := newTestEngine(t, nil)
	_, err := e.AddZone(ZoneSource{Spec: rpz.ZoneSpec{ID: 0, Origin: "rpz.example."}, File: "/nonexistent/rpz.zone"})
	require.NoError(t, err)

	_, err = e.LoadZone(context.Background(), "rpz.example")
	require.Error(t, err)
	assert.Contains(t, logs.String(), "Failed to read policy zone")

	info, ok := e.Zone("rpz.example")
	require.True(t, ok)
	assert.Error(t, info.LastError)

	assert.Error(t, e.LoadAll(context.Background()))

	_, err = e.LoadZone(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownZone)
}

func TestEngine_LoadTriggersOutOfMemory(t *testing.T) {
	e := NewEngine(Config{Options: rpz.Options{MaxNodes: 2}, Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))})
	defer e.Close()
	_, err := e.AddZone(ZoneSource{Spec: rpz.ZoneSpec{ID: 0, Origin: "rpz.example."}})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = e.LoadTriggers(ctx, 0, []string{"a.example.rpz.example."})
	require.NoError(t, err)

	_, err = e.LoadTriggers(ctx, 0, []string{"b.example.rpz.example.", "c.example.org.rpz.example."})
	require.ErrorIs(t, err, rpz.ErrOutOfMemory)
	assert.Len(t, e.LookupName(rpz.TypeQName, "a.example"), 1, "previous triggers kept")
	assert.Empty(t, e.LookupName(rpz.TypeQName, "b.example"))
}

func TestEngine_LoadTriggersCancelled(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	_, err := e.AddZone(ZoneSource{Spec: rpz.ZoneSpec{ID: 0, Origin: "rpz.example."}})
	require.NoError(t, err)
	_, err = e.LoadTriggers(context.Background(), 0, []string{"a.example.rpz.example."})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.LoadTriggers(ctx, 0, []string{"b.example.rpz.example."})
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, e.LookupName(rpz.TypeQName, "a.example"), 1)
	assert.Equal(t, int32(1), e.Index().Refs())
}

func TestEngine_StoreBackedTriggers(t *testing.T) {
	store := newMemStore()
	e, _ := newTestEngine(t, store)
	ctx := context.Background()

	_, err := e.AddZone(ZoneSource{Spec: rpz.ZoneSpec{ID: 0, Name: "local", Origin: "local.rpz."}})
	require.NoError(t, err)
	require.NoError(t, e.LoadAll(ctx))

	out, err := e.AddTrigger(ctx, "local", "Blocked.Example.local.rpz")
	require.NoError(t, err)
	assert.Equal(t, rpz.Added, out)
	assert.Equal(t, []string{"blocked.example.local.rpz."}, store.triggers["local"])

	out, err = e.AddTrigger(ctx, "local", "blocked.example.local.rpz.")
	require.NoError(t, err)
	assert.Equal(t, rpz.AlreadyPresent, out)

	_, err = e.AddTrigger(ctx, "local", "33.1.2.0.192.rpz-ip.local.rpz.")
	assert.ErrorIs(t, err, rpz.ErrInvalidTrigger)
	assert.Len(t, store.triggers["local"], 1, "rejected trigger not stored")

	// a reload keeps the stored trigger
	_, err = e.LoadZone(ctx, "local")
	require.NoError(t, err)
	assert.Len(t, e.LookupName(rpz.TypeQName, "blocked.example"), 1)

	out, err = e.DeleteTrigger(ctx, "local", "blocked.example.local.rpz.")
	require.NoError(t, err)
	assert.Equal(t, rpz.Deleted, out)
	assert.Empty(t, store.triggers["local"])
	assert.Empty(t, e.LookupName(rpz.TypeQName, "blocked.example"))

	_, err = e.AddTrigger(ctx, "other", "x.other.")
	assert.ErrorIs(t, err, ErrUnknownZone)
}

func TestEngine_ReplaceTriggers(t *testing.T) {
	store := newMemStore()
	e, _ := newTestEngine(t, store)
	ctx := context.Background()

	_, err := e.AddZone(ZoneSource{Spec: rpz.ZoneSpec{ID: 0, Name: "local", Origin: "local.rpz."}})
	require.NoError(t, err)
	_, err = e.AddTrigger(ctx, "local", "old.example.local.rpz.")
	require.NoError(t, err)

	res, err := e.ReplaceTriggers(ctx, "local", []string{
		"New.Example.local.rpz",
		"24.0.2.0.192.rpz-ip.local.rpz.",
		"new.example.local.rpz.",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, []string{"24.0.2.0.192.rpz-ip.local.rpz.", "new.example.local.rpz."}, store.triggers["local"])

	assert.Empty(t, e.LookupName(rpz.TypeQName, "old.example"))
	assert.Len(t, e.LookupName(rpz.TypeQName, "new.example"), 1)
	_, ok := e.LookupAddress(rpz.TypeIP, netip.MustParseAddr("192.0.2.7"))
	assert.True(t, ok)

	_, err = e.ReplaceTriggers(ctx, "missing", nil)
	assert.ErrorIs(t, err, ErrUnknownZone)

	bare, _ := newTestEngine(t, nil)
	_, err = bare.ReplaceTriggers(ctx, "local", nil)
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestEngine_ZonesAndRemove(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	for i, origin := range []string{"first.rpz.", "second.rpz.", "third.rpz."} {
		_, err := e.AddZone(ZoneSource{Spec: rpz.ZoneSpec{ID: rpz.ZoneID(i), Origin: origin}})
		require.NoError(t, err)
	}

	_, err := e.AddZone(ZoneSource{Spec: rpz.ZoneSpec{ID: 5, Name: "second.rpz", Origin: "other.rpz."}})
	assert.ErrorIs(t, err, rpz.ErrZoneExists)
	assert.Nil(t, e.Index().Zone(5), "slot released again")

	names := make([]string, 0, 3)
	for _, z := range e.Zones() {
		names = append(names, z.Name)
	}
	assert.Equal(t, []string{"first.rpz", "second.rpz", "third.rpz"}, names)

	require.NoError(t, e.RemoveZone("second.rpz"))
	assert.Len(t, e.Zones(), 2)
	_, ok := e.Zone("second.rpz")
	assert.False(t, ok)
	assert.ErrorIs(t, e.RemoveZone("second.rpz"), ErrUnknownZone)
}

func TestEngine_SkipRecurseAndString(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	for i, origin := range []string{"a.rpz.", "b.rpz."} {
		_, err := e.AddZone(ZoneSource{Spec: rpz.ZoneSpec{ID: rpz.ZoneID(i), Origin: origin}})
		require.NoError(t, err)
	}
	_, err := e.LoadTriggers(ctx, 0, []string{"bad.example.a.rpz."})
	require.NoError(t, err)
	_, err = e.LoadTriggers(ctx, 1, []string{"24.0.2.0.192.rpz-nsip.b.rpz."})
	require.NoError(t, err)

	assert.Equal(t, rpz.ZoneSet(0), e.SkipRecurse())
	s := e.String()
	assert.True(t, strings.HasPrefix(s, "Engine{zones=2"), s)
	assert.Contains(t, s, "skip_recurse={0}")
}

func TestEngine_ConcurrentLookupsDuringReload(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	_, err := e.AddZone(ZoneSource{Spec: rpz.ZoneSpec{ID: 0, Origin: "rpz.example."}})
	require.NoError(t, err)
	_, err = e.LoadTriggers(ctx, 0, []string{"24.0.2.0.192.rpz-ip.rpz.example."})
	require.NoError(t, err)

	addr := netip.MustParseAddr("192.0.2.1")
	var wg sync.WaitGroup
	errs := make(chan string, 8)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				m, ok := e.LookupAddress(rpz.TypeIP, addr)
				if !ok || (m.Prefix.Bits() != 24 && m.Prefix.Bits() != 32) {
					errs <- m.Prefix.String()
					return
				}
			}
		}()
	}
	for range 5 {
		_, err := e.LoadTriggers(ctx, 0, []string{"32.1.2.0.192.rpz-ip.rpz.example."})
		require.NoError(t, err)
		_, err = e.LoadTriggers(ctx, 0, []string{"24.0.2.0.192.rpz-ip.rpz.example."})
		require.NoError(t, err)
	}
	wg.Wait()
	close(errs)
	for bad := range errs {
		t.Errorf("lookup saw %q", bad)
	}
}
