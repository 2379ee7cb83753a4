package rpz

import (
	"math/rand/v2"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustKey(t *testing.T, s string) (Key, uint8) {
	t.Helper()
	return KeyFromPrefix(netip.MustParsePrefix(s))
}

func hostKey(s string) Key {
	return KeyFromAddr(netip.MustParseAddr(s))
}

// checkTree verifies parent links, node count, pruning and the sum invariant.
func checkTree(t *testing.T, tree *cidrTree) {
	t.Helper()
	count := 0
	tree.walk(func(n *cidrNode) bool {
		count++
		want := n.set
		children := 0
		for i, c := range n.child {
			if c == nil {
				continue
			}
			children++
			want = want.or(c.sum)
			require.Same(t, n, c.parent, "parent link of %v", c.key.Prefix(c.prefix))
			require.Greater(t, c.prefix, n.prefix)
			require.Equal(t, n.prefix, diffBits(c.key, n.prefix, n.key, n.prefix), "child outside parent block")
			require.Equal(t, i, c.key.bit(n.prefix), "child on wrong side")
		}
		require.Equal(t, want, n.sum, "sum of %v", n.key.Prefix(n.prefix))
		if n.set.empty() {
			require.Equal(t, 2, children, "unpruned node %v", n.key.Prefix(n.prefix))
		}
		return true
	})
	require.Equal(t, tree.size(), count)
	if tree.root != nil {
		require.Nil(t, tree.root.parent)
	}
}

func TestCIDRTree_InsertShapes(t *testing.T) {
	tree := newCIDRTree(0)
	bits := addrBitsFor(TypeIP, ZoneSet(0))

	k, p := mustKey(t, "10.0.0.0/24")
	_, err := tree.insert(k, p, bits)
	require.NoError(t, err)
	assert.Equal(t, 1, tree.size())

	// more specific: descend and add a leaf
	k, p = mustKey(t, "10.0.0.128/25")
	_, err = tree.insert(k, p, bits)
	require.NoError(t, err)
	assert.Equal(t, 2, tree.size())

	// less specific: new parent above the root
	k, p = mustKey(t, "10.0.0.0/16")
	n, err := tree.insert(k, p, bits)
	require.NoError(t, err)
	assert.Same(t, tree.root, n)
	assert.Equal(t, 3, tree.size())

	// sibling block: fork with an internal node
	k, p = mustKey(t, "10.0.1.0/24")
	_, err = tree.insert(k, p, bits)
	require.NoError(t, err)
	assert.Equal(t, 5, tree.size())

	// exact match with the same bits
	_, err = tree.insert(k, p, bits)
	assert.ErrorIs(t, err, ErrAlreadyPresent)

	// exact match with a new slot
	_, err = tree.insert(k, p, addrBitsFor(TypeNSIP, ZoneSet(1)))
	require.NoError(t, err)
	assert.Equal(t, 5, tree.size())

	checkTree(t, tree)
}

func TestCIDRTree_Lookup(t *testing.T) {
	tree := newCIDRTree(0)
	add := func(prefix string, typ Type, ids ...ZoneID) {
		k, p := mustKey(t, prefix)
		_, err := tree.insert(k, p, addrBitsFor(typ, ZoneSet(ids...)))
		require.NoError(t, err)
	}
	add("10.0.0.0/8", TypeIP, 2)
	add("10.1.0.0/16", TypeIP, 0)
	add("10.1.2.0/24", TypeIP, 1)
	add("10.1.2.3/32", TypeNSIP, 0)
	add("2001:db8::/32", TypeIP, 3)

	tests := []struct {
		name     string
		addr     string
		slot     int
		zones    ZoneBits
		wantNode string
	}{
		{"deepest ip block", "10.1.2.9", slotIP, AllZones, "10.1.2.0/24"},
		{"nsip exact", "10.1.2.3", slotNSIP, AllZones, "10.1.2.3/32"},
		{"ip ignores nsip leaf", "10.1.2.3", slotIP, AllZones, "10.1.2.0/24"},
		{"zone filter", "10.1.2.9", slotIP, ZoneSet(0, 2), "10.1.0.0/16"},
		{"outer only", "10.9.9.9", slotIP, AllZones, "10.0.0.0/8"},
		{"ipv6", "2001:db8::53", slotIP, AllZones, "2001:db8::/32"},
		{"no match", "192.0.2.1", slotIP, AllZones, ""},
		{"no allowed zone", "10.1.2.9", slotIP, ZoneSet(5), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := tree.lookup(hostKey(tt.addr), KeyBits, tt.slot, tt.zones)
			if tt.wantNode == "" {
				assert.Nil(t, n)
				return
			}
			require.NotNil(t, n)
			assert.Equal(t, netip.MustParsePrefix(tt.wantNode), n.key.Prefix(n.prefix))
		})
	}
}

func TestCIDRTree_LookupDeeperNodeWins(t *testing.T) {
	tree := newCIDRTree(0)
	k, p := mustKey(t, "10.0.0.0/24")
	_, err := tree.insert(k, p, addrBitsFor(TypeIP, ZoneSet(0)))
	require.NoError(t, err)
	k, p = mustKey(t, "10.0.0.5/32")
	_, err = tree.insert(k, p, addrBitsFor(TypeIP, ZoneSet(1)))
	require.NoError(t, err)

	// zone 0 matched the /24 already; the /32 still wins through zone 1
	n := tree.lookup(hostKey("10.0.0.5"), KeyBits, slotIP, ZoneSet(0, 1))
	require.NotNil(t, n)
	assert.Equal(t, uint8(128), n.prefix)

	// once zone 1 is excluded the /24 is all that is left
	n = tree.lookup(hostKey("10.0.0.5"), KeyBits, slotIP, ZoneSet(0))
	require.NotNil(t, n)
	assert.Equal(t, uint8(120), n.prefix)
}

func TestCIDRTree_RemovePrunes(t *testing.T) {
	tree := newCIDRTree(0)
	prefixes := []string{"10.0.0.0/24", "10.0.1.0/24", "10.0.0.0/16", "10.0.0.128/25", "2001:db8::/48", "2001:db8:0:1::/64"}
	for i, s := range prefixes {
		k, p := mustKey(t, s)
		_, err := tree.insert(k, p, addrBitsFor(TypeClientIP, ZoneSet(ZoneID(i))))
		require.NoError(t, err)
	}
	checkTree(t, tree)

	k, p := mustKey(t, "10.0.0.0/24")
	_, err := tree.remove(k, p, addrBitsFor(TypeClientIP, ZoneSet(1)))
	assert.ErrorIs(t, err, ErrNotFound, "bits not set on the node")
	k, p = mustKey(t, "10.0.2.0/24")
	_, err = tree.remove(k, p, addrBitsFor(TypeClientIP, ZoneSet(0)))
	assert.ErrorIs(t, err, ErrNotFound, "no such node")

	for i, s := range prefixes {
		k, p := mustKey(t, s)
		cleared, err := tree.remove(k, p, addrBitsFor(TypeClientIP, ZoneSet(ZoneID(i))))
		require.NoError(t, err, s)
		assert.Equal(t, addrBitsFor(TypeClientIP, ZoneSet(ZoneID(i))), cleared)
		checkTree(t, tree)
	}
	assert.Nil(t, tree.root)
	assert.Equal(t, 0, tree.size())
}

func TestCIDRTree_Limit(t *testing.T) {
	tree := newCIDRTree(2)
	bits := addrBitsFor(TypeIP, ZoneSet(0))

	k, p := mustKey(t, "10.0.0.0/24")
	_, err := tree.insert(k, p, bits)
	require.NoError(t, err)

	// a sibling needs a fork node and a leaf
	k, p = mustKey(t, "10.0.1.0/24")
	_, err = tree.insert(k, p, bits)
	require.ErrorIs(t, err, ErrOutOfMemory)
	assert.Equal(t, 1, tree.size())

	k, p = mustKey(t, "10.0.0.0/16")
	_, err = tree.insert(k, p, bits)
	require.NoError(t, err)
	checkTree(t, tree)
}

type refEntry struct {
	key    Key
	prefix uint8
	slot   int
}

// refLookup is the brute-force form of cidrTree.lookup.
func refLookup(ref map[refEntry]ZoneBits, addr Key, slot int, zbits ZoneBits) (Key, uint8, bool) {
	var bestKey Key
	var bestPrefix uint8
	found := false
	for prefix := 0; prefix <= KeyBits; prefix++ {
		p := uint8(prefix)
		bits := ref[refEntry{addr.masked(p), p, slot}]
		if hit := bits & zbits; hit != 0 {
			bestKey, bestPrefix, found = addr.masked(p), p, true
			zbits &^= hit
		}
	}
	return bestKey, bestPrefix, found
}

func TestCIDRTree_RandomOperations(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	tree := newCIDRTree(0)
	ref := make(map[refEntry]ZoneBits)

	randomAddr := func() Key {
		// a narrow address space forces shared prefixes
		return Key{0, 0, v4Marker, 0x0a000000 | rng.Uint32()&0x0000f0f3}
	}

	for i := range 4000 {
		key := randomAddr()
		prefix := uint8(96 + 8 + rng.IntN(25))
		key = key.masked(prefix)
		slot := rng.IntN(numAddrSlots)
		z := ZoneID(rng.IntN(4)).Bit()
		var bits addrBits
		bits[slot] = z
		e := refEntry{key, prefix, slot}

		if rng.IntN(3) == 0 {
			_, err := tree.remove(key, prefix, bits)
			if ref[e]&z != 0 {
				require.NoError(t, err)
				ref[e] &^= z
			} else {
				require.ErrorIs(t, err, ErrNotFound)
			}
		} else {
			_, err := tree.insert(key, prefix, bits)
			if ref[e]&z != 0 {
				require.ErrorIs(t, err, ErrAlreadyPresent)
			} else {
				require.NoError(t, err)
				ref[e] |= z
			}
		}

		if i%50 == 0 {
			checkTree(t, tree)
		}

		probe := randomAddr()
		probeSlot := rng.IntN(numAddrSlots)
		allowed := ZoneBits(rng.IntN(16))
		wantKey, wantPrefix, wantFound := refLookup(ref, probe, probeSlot, allowed)
		n := tree.lookup(probe, KeyBits, probeSlot, allowed)
		require.Equal(t, wantFound, n != nil, "lookup %v", probe.Addr())
		if n != nil {
			require.Equal(t, wantKey, n.key)
			require.Equal(t, wantPrefix, n.prefix)
		}
	}
	checkTree(t, tree)

	for e, z := range ref {
		for _, id := range z.IDs() {
			var bits addrBits
			bits[e.slot] = id.Bit()
			_, err := tree.remove(e.key, e.prefix, bits)
			require.NoError(t, err)
		}
	}
	checkTree(t, tree)
	assert.Equal(t, 0, tree.size())
}
