// Package policy runs the response policy zones of a HydraRPZ instance.
//
// An Engine owns the live trigger index, knows where each zone's triggers
// come from (a file, a URL, the trigger store, or several of these), drives
// bulk reloads and records per-zone load metadata and lookup statistics.
package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jroosing/hydrarpz/internal/rpz"
)

// ErrUnknownZone is returned for zone names the engine does not know.
var ErrUnknownZone = errors.New("unknown policy zone")

// TriggerStore persists triggers that were added through the engine.
type TriggerStore interface {
	ZoneTriggers(ctx context.Context, zone string) ([]string, error)
	AddTrigger(ctx context.Context, zone, owner string) error
	DeleteTrigger(ctx context.Context, zone, owner string) error
	ReplaceZoneTriggers(ctx context.Context, zone string, owners []string) error
}

// ZoneSource declares a policy zone and where its triggers come from.
type ZoneSource struct {
	Spec   rpz.ZoneSpec
	File   string
	Format Format
}

// ZoneInfo is the metadata of one policy zone.
type ZoneInfo struct {
	ID        rpz.ZoneID
	Name      string
	Origin    string
	File      string
	Format    Format
	LastLoad  time.Time
	LastError error
	Loaded    int
	Rejected  int
	Counts    rpz.TriggerCounts
}

// LoadResult summarizes one bulk load.
type LoadResult struct {
	Zone       string
	Added      int
	Duplicates int
	Rejected   int
	Duration   time.Duration
}

// Config configures the engine.
type Config struct {
	// Logger is used for engine log output. If nil, the default logger is used.
	Logger *slog.Logger

	// Options tunes the trigger index.
	Options rpz.Options

	// Store is consulted on every load and receives incremental changes.
	// It may be nil.
	Store TriggerStore

	// Parser reads file and URL sources. If nil, NewParser is used.
	Parser *Parser
}

// Engine evaluates addresses and names against the policy zones.
//
// Thread-safe for concurrent use.
type Engine struct {
	logger *slog.Logger
	parser *Parser
	store  TriggerStore
	zones  *rpz.Zones

	mu     sync.RWMutex
	meta   map[rpz.ZoneID]*ZoneInfo
	byName map[string]rpz.ZoneID

	// Statistics
	lookups [numLookupTypes]atomic.Uint64
	matches [numLookupTypes]atomic.Uint64
}

const numLookupTypes = int(rpz.TypeNSIP) + 1

// NewEngine creates an engine with no zones.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	parser := cfg.Parser
	if parser == nil {
		parser = NewParser()
	}
	return &Engine{
		logger: logger,
		parser: parser,
		store:  cfg.Store,
		zones:  rpz.NewZones(cfg.Options),
		meta:   make(map[rpz.ZoneID]*ZoneInfo),
		byName: make(map[string]rpz.ZoneID),
	}
}

// Index returns the live trigger index.
func (e *Engine) Index() *rpz.Zones {
	return e.zones
}

// AddZone registers a policy zone. Its triggers are read by LoadZone.
func (e *Engine) AddZone(src ZoneSource) (*rpz.Zone, error) {
	zone, err := e.zones.RegisterZone(src.Spec)
	if err != nil {
		return nil, fmt.Errorf("register zone %q: %w", src.Spec.Origin, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.byName[zone.Name]; dup {
		_ = e.zones.RemoveZone(zone.ID)
		return nil, fmt.Errorf("register zone %q: %w: name %q", src.Spec.Origin, rpz.ErrZoneExists, zone.Name)
	}
	e.byName[zone.Name] = zone.ID
	e.meta[zone.ID] = &ZoneInfo{
		ID:     zone.ID,
		Name:   zone.Name,
		Origin: zone.Origin,
		File:   src.File,
		Format: src.Format,
	}
	return zone, nil
}

// RemoveZone drops a zone and all of its triggers from the index.
func (e *Engine) RemoveZone(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownZone, name)
	}
	if err := e.zones.RemoveZone(id); err != nil {
		return err
	}
	delete(e.byName, name)
	delete(e.meta, id)
	e.logger.Info("Removed policy zone", "zone", name)
	return nil
}

func (e *Engine) lookupZone(name string) (ZoneInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.byName[name]
	if !ok {
		return ZoneInfo{}, fmt.Errorf("%w: %s", ErrUnknownZone, name)
	}
	return *e.meta[id], nil
}

// LoadAll loads every registered zone in precedence order. Every zone is
// attempted; the first error is returned.
func (e *Engine) LoadAll(ctx context.Context) error {
	var first error
	for _, info := range e.Zones() {
		if _, err := e.LoadZone(ctx, info.Name); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LoadZone reads the zone's sources and replaces its triggers. Queries see
// either the old or the new trigger set, never a mix.
func (e *Engine) LoadZone(ctx context.Context, name string) (LoadResult, error) {
	info, err := e.lookupZone(name)
	if err != nil {
		return LoadResult{Zone: name}, err
	}

	owners, err := e.readSources(ctx, info)
	if err != nil {
		e.recordLoad(info.ID, LoadResult{Zone: name}, err)
		e.logger.Error("Failed to read policy zone", "zone", name, "error", err)
		return LoadResult{Zone: name}, err
	}

	res, err := e.LoadTriggers(ctx, info.ID, owners)
	e.recordLoad(info.ID, res, err)
	if err != nil {
		e.logger.Error("Failed to load policy zone", "zone", name, "error", err)
		return res, err
	}
	e.logger.Info("Loaded policy zone",
		"zone", name,
		"triggers", res.Added,
		"duplicates", res.Duplicates,
		"rejected", res.Rejected,
		"duration", res.Duration)
	return res, nil
}

func (e *Engine) readSources(ctx context.Context, info ZoneInfo) ([]string, error) {
	var owners []string
	if info.File != "" {
		fromFile, err := e.parser.Open(info.File, info.Format, info.Origin)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", info.File, err)
		}
		owners = fromFile
	}
	if e.store != nil {
		stored, err := e.store.ZoneTriggers(ctx, info.Name)
		if err != nil {
			return nil, fmt.Errorf("read stored triggers: %w", err)
		}
		owners = append(owners, stored...)
	}
	return owners, nil
}

// LoadTriggers replaces the triggers of zone id with owners. Malformed
// owner names are logged and skipped; running out of room aborts the load
// and leaves the previous triggers in place.
func (e *Engine) LoadTriggers(ctx context.Context, id rpz.ZoneID, owners []string) (LoadResult, error) {
	start := time.Now()
	res := LoadResult{}
	if zone := e.zones.Zone(id); zone != nil {
		res.Zone = zone.Name
	}

	load, err := e.zones.BeginLoad(id)
	if err != nil {
		return res, err
	}

	for i, owner := range owners {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				load.Detach()
				return res, err
			}
		}
		out, err := load.Apply(id, owner, true)
		switch {
		case errors.Is(err, rpz.ErrInvalidTrigger):
			res.Rejected++
			e.logger.Warn("Invalid policy trigger", "zone", res.Zone, "trigger", owner, "error", err)
		case err != nil:
			// a shadow is discarded; a first load keeps what it added
			load.Detach()
			return res, fmt.Errorf("load zone %s: %w", res.Zone, err)
		case out == rpz.AlreadyPresent:
			res.Duplicates++
		default:
			res.Added++
		}
	}

	if err := e.zones.Ready(load, id); err != nil {
		return res, err
	}
	res.Duration = time.Since(start)
	return res, nil
}

func (e *Engine) recordLoad(id rpz.ZoneID, res LoadResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	info, ok := e.meta[id]
	if !ok {
		return
	}
	info.LastLoad = time.Now()
	info.LastError = err
	if err == nil {
		info.Loaded = res.Added
		info.Rejected = res.Rejected
	}
}

// AddTrigger adds one trigger to a zone and records it in the store.
func (e *Engine) AddTrigger(ctx context.Context, zone, owner string) (rpz.Outcome, error) {
	return e.applyTrigger(ctx, zone, owner, true)
}

// DeleteTrigger removes one trigger from a zone and from the store.
func (e *Engine) DeleteTrigger(ctx context.Context, zone, owner string) (rpz.Outcome, error) {
	return e.applyTrigger(ctx, zone, owner, false)
}

func (e *Engine) applyTrigger(ctx context.Context, zone, owner string, add bool) (rpz.Outcome, error) {
	info, err := e.lookupZone(zone)
	if err != nil {
		return 0, err
	}
	owner = rpz.CanonicalName(owner)
	out, err := e.zones.Apply(info.ID, owner, add)
	if err != nil {
		return out, err
	}

	if e.store != nil {
		if add {
			err = e.store.AddTrigger(ctx, zone, owner)
		} else {
			err = e.store.DeleteTrigger(ctx, zone, owner)
		}
		if err != nil {
			return out, fmt.Errorf("store trigger: %w", err)
		}
	}
	e.logger.Debug("Policy trigger changed", "zone", zone, "trigger", owner, "outcome", out)
	return out, nil
}

// ErrNoStore is returned by operations that need a trigger store when the
// engine has none.
var ErrNoStore = errors.New("no trigger store configured")

// ReplaceTriggers replaces the stored triggers of a zone with owners and
// reloads the zone, so file triggers stay and stored ones are swapped.
func (e *Engine) ReplaceTriggers(ctx context.Context, zone string, owners []string) (LoadResult, error) {
	if e.store == nil {
		return LoadResult{Zone: zone}, ErrNoStore
	}
	if _, err := e.lookupZone(zone); err != nil {
		return LoadResult{Zone: zone}, err
	}
	canon := make([]string, 0, len(owners))
	for _, o := range owners {
		canon = append(canon, rpz.CanonicalName(o))
	}
	if err := e.store.ReplaceZoneTriggers(ctx, zone, canon); err != nil {
		return LoadResult{Zone: zone}, fmt.Errorf("store triggers: %w", err)
	}
	return e.LoadZone(ctx, zone)
}

// AddressMatch is a matching address trigger.
type AddressMatch struct {
	Zone    ZoneInfo
	Prefix  netip.Prefix
	Trigger string
}

// LookupAddress finds the address trigger of type t that applies to addr.
func (e *Engine) LookupAddress(t rpz.Type, addr netip.Addr) (AddressMatch, bool) {
	e.countLookup(t)
	m, ok := e.zones.FindAddress(t, addr, rpz.AllZones)
	if !ok {
		return AddressMatch{}, false
	}
	e.countMatch(t)
	return AddressMatch{
		Zone:    e.zoneInfo(m.Zone),
		Prefix:  m.Prefix(),
		Trigger: m.Trigger(),
	}, true
}

// LookupName returns every zone with a trigger of type t for name, in
// precedence order.
func (e *Engine) LookupName(t rpz.Type, name string) []ZoneInfo {
	e.countLookup(t)
	found := e.zones.FindName(t, name, rpz.AllZones)
	if found.Empty() {
		return nil
	}
	e.countMatch(t)
	infos := make([]ZoneInfo, 0, found.Count())
	for _, id := range found.IDs() {
		infos = append(infos, e.zoneInfo(id))
	}
	return infos
}

// SkipRecurse returns the zones whose QNAME and CLIENT-IP triggers may be
// checked before recursion.
func (e *Engine) SkipRecurse() rpz.ZoneBits {
	return e.zones.SkipRecurse()
}

func (e *Engine) countLookup(t rpz.Type) {
	if int(t) < numLookupTypes {
		e.lookups[t].Add(1)
	}
}

func (e *Engine) countMatch(t rpz.Type) {
	if int(t) < numLookupTypes {
		e.matches[t].Add(1)
	}
}

func (e *Engine) zoneInfo(id rpz.ZoneID) ZoneInfo {
	e.mu.RLock()
	info, ok := e.meta[id]
	e.mu.RUnlock()
	if !ok {
		return ZoneInfo{ID: id}
	}
	out := *info
	out.Counts = e.zones.Counts(id)
	return out
}

// Zone returns the metadata of the named zone.
func (e *Engine) Zone(name string) (ZoneInfo, bool) {
	info, err := e.lookupZone(name)
	if err != nil {
		return ZoneInfo{}, false
	}
	info.Counts = e.zones.Counts(info.ID)
	return info, true
}

// Zones lists every zone in precedence order.
func (e *Engine) Zones() []ZoneInfo {
	ids := e.zones.ZoneIDs()
	infos := make([]ZoneInfo, 0, ids.Count())
	for _, id := range ids.IDs() {
		infos = append(infos, e.zoneInfo(id))
	}
	return infos
}

// Triggers lists the owner names of the named zone's triggers.
func (e *Engine) Triggers(name string) ([]string, error) {
	info, err := e.lookupZone(name)
	if err != nil {
		return nil, err
	}
	return e.zones.Triggers(info.ID), nil
}

// LookupStats counts lookups of one trigger type.
type LookupStats struct {
	Lookups uint64
	Matches uint64
}

// Stats contains engine statistics.
type Stats struct {
	Index   rpz.Stats
	Lookups map[rpz.Type]LookupStats
}

// Stats returns current statistics.
func (e *Engine) Stats() Stats {
	s := Stats{
		Index:   e.zones.Stats(),
		Lookups: make(map[rpz.Type]LookupStats, numLookupTypes-1),
	}
	for _, t := range []rpz.Type{rpz.TypeClientIP, rpz.TypeQName, rpz.TypeIP, rpz.TypeNSDName, rpz.TypeNSIP} {
		s.Lookups[t] = LookupStats{
			Lookups: e.lookups[t].Load(),
			Matches: e.matches[t].Load(),
		}
	}
	return s
}

// Close releases the index.
func (e *Engine) Close() error {
	e.zones.Detach()
	return nil
}

// String returns a summary of the engine state.
func (e *Engine) String() string {
	s := e.zones.Stats()
	return fmt.Sprintf("Engine{zones=%d, names=%d, cidr_nodes=%d, skip_recurse=%s}",
		s.Zones, s.Names, s.CIDRNodes, s.SkipRecurse)
}
