package rpz

import "fmt"

// BeginLoad starts a bulk (re)load of zone id and returns the context the
// load's Add calls must target.
//
// The first load of a zone with no triggers goes straight into the live
// context. Later loads get a private shadow that shares only the zone
// descriptor; queries keep using the live tries until Ready swaps them.
func (z *Zones) BeginLoad(id ZoneID) (*Zones, error) {
	z.maint.Lock()
	defer z.maint.Unlock()
	zone, err := z.zoneLocked(id)
	if err != nil {
		return nil, err
	}

	if !z.loadBegun.Has(id) && countsFrom(z.triggers.counts[id]).Total() == 0 {
		z.loadBegun |= id.Bit()
		return z.Attach(), nil
	}

	shadow := NewZones(z.opts)
	shadow.zones[id] = zone.attach()
	shadow.loadBegun = id.Bit()
	return shadow, nil
}

// Ready finishes a load begun with BeginLoad and consumes the shadow's
// reference. When it fails the shadow is discarded and the live context
// is unchanged.
func (z *Zones) Ready(shadow *Zones, id ZoneID) error {
	defer shadow.Detach()

	if shadow == z {
		z.maint.Lock()
		defer z.maint.Unlock()
		if z.closed {
			return ErrClosed
		}
		z.search.Lock()
		z.triggers.rebuild()
		z.search.Unlock()
		return nil
	}

	z.maint.Lock()
	defer z.maint.Unlock()
	shadow.maint.Lock()
	defer shadow.maint.Unlock()

	zone, err := z.zoneLocked(id)
	if err != nil {
		return err
	}
	if shadow.closed || shadow.zones[id] != zone {
		return fmt.Errorf("%w: shadow does not load zone %d", ErrUnknownZone, id)
	}

	// Bring the other zones' triggers into the shadow. The live tries are
	// only read here and every writer is held off by maint.
	shadow.search.Lock()
	err = copyTries(z.cidr, z.names, shadow.cidr, shadow.names, AllZones&^id.Bit())
	shadow.search.Unlock()
	if err != nil {
		return fmt.Errorf("load zone %d: %w", id, err)
	}

	z.search.Lock()
	shadow.search.Lock()
	z.cidr, shadow.cidr = shadow.cidr, z.cidr
	z.names, shadow.names = shadow.names, z.names
	z.triggers.counts[id] = shadow.triggers.counts[id]
	z.triggers.rebuild()
	z.loadBegun |= id.Bit()
	shadow.search.Unlock()
	z.search.Unlock()
	return nil
}
