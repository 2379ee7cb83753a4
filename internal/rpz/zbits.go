// Package rpz indexes DNS response policy zone triggers and answers which
// policy zone, if any, matches a client address, query name, or the name
// servers and addresses discovered while resolving a query.
//
// Data Structures:
//
// Address triggers (CLIENT-IP, IP, NSIP) live in a binary radix trie keyed by
// 128-bit addresses with IPv4 mapped into the IPv6 key space. Name triggers
// (QNAME, NSDNAME) live in a trie over reversed domain labels. Every node
// carries one bit per policy zone, so a single walk answers for all zones.
//
// Precedence:
//
// Zones are numbered 0..MaxZones-1 and a lower number wins.
//
// Thread Safety:
//
// A Zones context is safe for concurrent use. Lookups share a read lock;
// maintenance serializes on a separate mutex and takes the search lock for
// writing only while it mutates or swaps the tries.
package rpz

import (
	"math/bits"
	"strconv"
	"strings"
)

// MaxZones is the number of policy zones a context can hold.
const MaxZones = 64

// ZoneID identifies a policy zone. Lower IDs have higher precedence.
type ZoneID uint8

// ZoneBits has one bit per policy zone.
type ZoneBits uint64

// AllZones has a bit for every possible zone.
const AllZones ZoneBits = ^ZoneBits(0)

// Bit returns the ZoneBits with only this zone set.
func (id ZoneID) Bit() ZoneBits {
	return ZoneBits(1) << id
}

// Valid reports whether the ID is below MaxZones.
func (id ZoneID) Valid() bool {
	return int(id) < MaxZones
}

// Has reports whether zone id is in the set.
func (z ZoneBits) Has(id ZoneID) bool {
	return z&id.Bit() != 0
}

// Empty reports whether no zone is set.
func (z ZoneBits) Empty() bool {
	return z == 0
}

// Count returns the number of zones in the set.
func (z ZoneBits) Count() int {
	return bits.OnesCount64(uint64(z))
}

// First returns the highest precedence (lowest numbered) zone in the set.
func (z ZoneBits) First() (ZoneID, bool) {
	if z == 0 {
		return 0, false
	}
	return ZoneID(bits.TrailingZeros64(uint64(z))), true
}

// IDs lists the zones in precedence order.
func (z ZoneBits) IDs() []ZoneID {
	ids := make([]ZoneID, 0, z.Count())
	for z != 0 {
		id := ZoneID(bits.TrailingZeros64(uint64(z)))
		ids = append(ids, id)
		z &^= id.Bit()
	}
	return ids
}

func (z ZoneBits) String() string {
	ids := z.IDs()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(int(id))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// ZoneSet builds a ZoneBits from zone IDs.
func ZoneSet(ids ...ZoneID) ZoneBits {
	var z ZoneBits
	for _, id := range ids {
		z |= id.Bit()
	}
	return z
}

// lowestBit isolates the lowest set bit of z.
func lowestBit(z ZoneBits) ZoneBits {
	return z & -z
}

// fillDown sets every bit below the highest set bit of z.
func fillDown(z ZoneBits) ZoneBits {
	z |= z >> 1
	z |= z >> 2
	z |= z >> 4
	z |= z >> 8
	z |= z >> 16
	z |= z >> 32
	return z
}
