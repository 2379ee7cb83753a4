package rpz

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"
)

// Options tunes a zones context.
type Options struct {
	// MaxNodes caps the nodes of each trie. Zero means unlimited.
	MaxNodes int

	// QNameWaitRecurse forces every QNAME and CLIENT-IP check to wait for
	// recursion, so SkipRecurse is always empty.
	QNameWaitRecurse bool
}

// Outcome says what an Apply call changed.
type Outcome int

const (
	// Added means new bits were set.
	Added Outcome = iota
	// Deleted means bits were cleared.
	Deleted
	// AlreadyPresent means an add found every bit set.
	AlreadyPresent
	// NotFound means a delete found no bit to clear.
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Added:
		return "added"
	case Deleted:
		return "deleted"
	case AlreadyPresent:
		return "already-present"
	case NotFound:
		return "not-found"
	default:
		return "unknown"
	}
}

// Zones is a set of policy zones with their trigger indexes.
//
// Writers take maint and then search for writing. Readers only take search
// for reading. A context is reference counted; the last Detach frees it.
type Zones struct {
	refs atomic.Int32
	opts Options

	maint  sync.Mutex
	search sync.RWMutex

	zones     [MaxZones]*Zone
	cidr      *cidrTree
	names     *nameTree
	triggers  triggerCounts
	loadBegun ZoneBits
	closed    bool
}

// NewZones creates an empty context holding one reference.
func NewZones(opts Options) *Zones {
	z := &Zones{
		opts:  opts,
		cidr:  newCIDRTree(opts.MaxNodes),
		names: newNameTree(opts.MaxNodes),
	}
	z.triggers.waitRecurse = opts.QNameWaitRecurse
	z.triggers.fixSkipRecurse()
	z.refs.Store(1)
	return z
}

// Attach adds a reference.
func (z *Zones) Attach() *Zones {
	z.refs.Add(1)
	return z
}

// Detach drops a reference. The last one releases the tries and zones.
func (z *Zones) Detach() {
	if z.refs.Add(-1) != 0 {
		return
	}
	z.maint.Lock()
	defer z.maint.Unlock()
	z.search.Lock()
	defer z.search.Unlock()

	for i, zone := range z.zones {
		if zone != nil {
			zone.detach()
			z.zones[i] = nil
		}
	}
	z.cidr, z.names = nil, nil
	z.closed = true
}

// Refs returns the number of references held.
func (z *Zones) Refs() int32 {
	return z.refs.Load()
}

// RegisterZone adds a zone descriptor in the slot spec.ID.
func (z *Zones) RegisterZone(spec ZoneSpec) (*Zone, error) {
	zone, err := newZone(spec)
	if err != nil {
		return nil, err
	}

	z.maint.Lock()
	defer z.maint.Unlock()
	if z.closed {
		return nil, ErrClosed
	}
	if z.zones[spec.ID] != nil {
		return nil, fmt.Errorf("%w: slot %d", ErrZoneExists, spec.ID)
	}

	z.search.Lock()
	z.zones[spec.ID] = zone
	z.search.Unlock()
	return zone, nil
}

// Zone returns the zone in slot id, or nil.
func (z *Zones) Zone(id ZoneID) *Zone {
	if !id.Valid() {
		return nil
	}
	z.search.RLock()
	defer z.search.RUnlock()
	return z.zones[id]
}

// ZoneIDs returns the registered zones.
func (z *Zones) ZoneIDs() ZoneBits {
	z.search.RLock()
	defer z.search.RUnlock()
	var ids ZoneBits
	for i, zone := range z.zones {
		if zone != nil {
			ids |= ZoneID(i).Bit()
		}
	}
	return ids
}

// RemoveZone drops a zone and every trigger it contributed.
func (z *Zones) RemoveZone(id ZoneID) error {
	z.maint.Lock()
	defer z.maint.Unlock()
	zone, err := z.zoneLocked(id)
	if err != nil {
		return err
	}

	cidr, names := newCIDRTree(z.opts.MaxNodes), newNameTree(z.opts.MaxNodes)
	if err := copyTries(z.cidr, z.names, cidr, names, AllZones&^id.Bit()); err != nil {
		return fmt.Errorf("remove zone %d: %w", id, err)
	}

	z.search.Lock()
	z.cidr, z.names = cidr, names
	z.zones[id] = nil
	z.loadBegun &^= id.Bit()
	z.triggers.reset(id)
	z.search.Unlock()

	zone.detach()
	return nil
}

func (z *Zones) zoneLocked(id ZoneID) (*Zone, error) {
	if z.closed {
		return nil, ErrClosed
	}
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrBadZone, id)
	}
	zone := z.zones[id]
	if zone == nil {
		return nil, fmt.Errorf("%w: slot %d", ErrUnknownZone, id)
	}
	return zone, nil
}

// Add records the trigger named by owner for zone id. Adding a trigger that
// is already present is not an error.
func (z *Zones) Add(id ZoneID, owner string) error {
	_, err := z.Apply(id, owner, true)
	return err
}

// Delete removes the trigger named by owner from zone id. Deleting a
// trigger that is not present is not an error.
func (z *Zones) Delete(id ZoneID, owner string) error {
	_, err := z.Apply(id, owner, false)
	return err
}

// Apply adds or deletes one trigger and reports what changed.
// Malformed owner names fail with ErrInvalidTrigger.
func (z *Zones) Apply(id ZoneID, owner string, add bool) (Outcome, error) {
	z.maint.Lock()
	defer z.maint.Unlock()
	zone, err := z.zoneLocked(id)
	if err != nil {
		return 0, err
	}
	tr, err := zone.parse(owner)
	if err != nil {
		return 0, err
	}

	z.search.Lock()
	defer z.search.Unlock()
	if add {
		return z.addTrigger(id, tr)
	}
	return z.deleteTrigger(id, tr), nil
}

func (z *Zones) addTrigger(id ZoneID, tr trigger) (Outcome, error) {
	var err error
	var cnt counter
	if tr.typ.IsAddress() {
		_, err = z.cidr.insert(tr.key, tr.prefix, addrBitsFor(tr.typ, id.Bit()))
		cnt = counterFor(tr.typ, tr.key.IsV4(tr.prefix))
	} else {
		err = z.names.insert(tr.name, nameSlot(tr.typ), tr.wild, id.Bit())
		cnt = counterFor(tr.typ, false)
	}
	switch {
	case errors.Is(err, ErrAlreadyPresent):
		return AlreadyPresent, nil
	case err != nil:
		return 0, err
	}
	z.triggers.adjust(id, cnt, true)
	return Added, nil
}

func (z *Zones) deleteTrigger(id ZoneID, tr trigger) Outcome {
	var err error
	var cnt counter
	if tr.typ.IsAddress() {
		_, err = z.cidr.remove(tr.key, tr.prefix, addrBitsFor(tr.typ, id.Bit()))
		cnt = counterFor(tr.typ, tr.key.IsV4(tr.prefix))
	} else {
		_, err = z.names.remove(tr.name, nameSlot(tr.typ), tr.wild, id.Bit())
		cnt = counterFor(tr.typ, false)
	}
	if err != nil {
		return NotFound
	}
	z.triggers.adjust(id, cnt, false)
	return Deleted
}

// AddrMatch is the result of an address lookup.
type AddrMatch struct {
	Zone      ZoneID
	Key       Key
	PrefixLen uint8
}

// Prefix returns the matched trigger as a CIDR block.
func (m AddrMatch) Prefix() netip.Prefix {
	return m.Key.Prefix(m.PrefixLen)
}

// Trigger returns the origin-relative trigger label sequence, e.g. "24.0.2.0.192".
func (m AddrMatch) Trigger() string {
	return EncodeAddress(m.Key, m.PrefixLen)
}

// FindAddress looks for an address trigger of type t (CLIENT-IP, IP or NSIP)
// covering addr among the allowed zones. The deepest matching block wins;
// ties within it go to the lowest numbered zone.
func (z *Zones) FindAddress(t Type, addr netip.Addr, allowed ZoneBits) (AddrMatch, bool) {
	if !t.IsAddress() || !addr.IsValid() {
		return AddrMatch{}, false
	}
	addr = addr.Unmap()
	key := KeyFromAddr(addr)
	slot := addrSlot(t)

	z.search.RLock()
	defer z.search.RUnlock()
	if z.cidr == nil {
		return AddrMatch{}, false
	}
	allowed &= z.triggers.have[counterFor(t, addr.Is4())]
	if allowed == 0 {
		return AddrMatch{}, false
	}
	n := z.cidr.lookup(key, KeyBits, slot, allowed)
	if n == nil {
		return AddrMatch{}, false
	}
	id, ok := (n.set[slot] & allowed).First()
	if !ok {
		return AddrMatch{}, false
	}
	return AddrMatch{Zone: id, Key: n.key, PrefixLen: n.prefix}, true
}

// FindName returns every allowed zone with a QNAME or NSDNAME trigger for
// name, exact or by wildcard. Record order in the zones decides among them.
func (z *Zones) FindName(t Type, name string, allowed ZoneBits) ZoneBits {
	if !t.IsName() {
		return 0
	}
	name = CanonicalName(name)

	z.search.RLock()
	defer z.search.RUnlock()
	if z.names == nil {
		return 0
	}
	allowed &= z.triggers.haveFor(t)
	if allowed == 0 {
		return 0
	}
	return z.names.lookup(name, nameSlot(t), allowed)
}

// SkipRecurse returns the zones whose QNAME and CLIENT-IP triggers may be
// checked before recursion completes.
func (z *Zones) SkipRecurse() ZoneBits {
	z.search.RLock()
	defer z.search.RUnlock()
	return z.triggers.skipRecurse
}

// Have returns the zones holding at least one trigger of type t.
func (z *Zones) Have(t Type) ZoneBits {
	z.search.RLock()
	defer z.search.RUnlock()
	return z.triggers.haveFor(t)
}

// Counts returns the trigger counters of zone id.
func (z *Zones) Counts(id ZoneID) TriggerCounts {
	if !id.Valid() {
		return TriggerCounts{}
	}
	z.search.RLock()
	defer z.search.RUnlock()
	return countsFrom(z.triggers.counts[id])
}

// Stats summarizes the indexes.
type Stats struct {
	Zones       int      `json:"zones"`
	CIDRNodes   int      `json:"cidr_nodes"`
	NameNodes   int      `json:"name_nodes"`
	Names       int      `json:"names"`
	SkipRecurse ZoneBits `json:"skip_recurse"`
}

// Stats returns index sizes.
func (z *Zones) Stats() Stats {
	z.search.RLock()
	defer z.search.RUnlock()
	s := Stats{SkipRecurse: z.triggers.skipRecurse}
	for _, zone := range z.zones {
		if zone != nil {
			s.Zones++
		}
	}
	if z.cidr != nil {
		s.CIDRNodes = z.cidr.size()
	}
	if z.names != nil {
		s.NameNodes = z.names.nodes
		s.Names = z.names.size()
	}
	return s
}

// Triggers lists the owner names of every trigger zone id contributes,
// sorted.
func (z *Zones) Triggers(id ZoneID) []string {
	if !id.Valid() {
		return nil
	}
	z.search.RLock()
	defer z.search.RUnlock()
	zone := z.zones[id]
	if zone == nil || z.cidr == nil {
		return nil
	}

	var owners []string
	bit := id.Bit()
	z.cidr.walk(func(n *cidrNode) bool {
		for _, t := range []Type{TypeClientIP, TypeIP, TypeNSIP} {
			if n.set[addrSlot(t)]&bit != 0 {
				owners = append(owners, zone.ownerName(trigger{typ: t, key: n.key, prefix: n.prefix}))
			}
		}
		return true
	})
	z.names.walk(func(n *nameNode) bool {
		name := n.name()
		for _, t := range []Type{TypeQName, TypeNSDName} {
			slot := nameSlot(t)
			if n.data.set[slot]&bit != 0 {
				owners = append(owners, zone.ownerName(trigger{typ: t, name: name}))
			}
			if n.data.wild[slot]&bit != 0 {
				owners = append(owners, zone.ownerName(trigger{typ: t, name: name, wild: true}))
			}
		}
		return true
	})
	slices.Sort(owners)
	return owners
}

// copyTries adds every entry of the source tries restricted to keep into
// the destination tries.
func copyTries(srcCIDR *cidrTree, srcNames *nameTree, dstCIDR *cidrTree, dstNames *nameTree, keep ZoneBits) error {
	var err error
	srcCIDR.walk(func(n *cidrNode) bool {
		bits := n.set.mask(keep)
		if bits.empty() {
			return true
		}
		if _, e := dstCIDR.insert(n.key, n.prefix, bits); e != nil && !errors.Is(e, ErrAlreadyPresent) {
			err = e
			return false
		}
		return true
	})
	if err != nil {
		return err
	}

	srcNames.walk(func(n *nameNode) bool {
		data := n.data.mask(keep)
		if data.empty() {
			return true
		}
		e := dstNames.merge(n.name(), func(d *nameData) bool {
			before := *d
			for i := range numNameSlots {
				d.set[i] |= data.set[i]
				d.wild[i] |= data.wild[i]
			}
			return *d != before
		})
		if e != nil && !errors.Is(e, ErrAlreadyPresent) {
			err = e
			return false
		}
		return true
	})
	return err
}
