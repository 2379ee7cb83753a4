package rpz

import (
	"encoding/binary"
	"math/bits"
	"net/netip"
)

// KeyBits is the width of an address key.
const KeyBits = 128

// v4Marker fills the third key word of an IPv4 address, as in ::ffff:a.b.c.d.
const v4Marker = 0x0000ffff

// v4Offset is added to IPv4 prefix lengths so both families share the key space.
const v4Offset = 96

// Key is a 128-bit address as four host-order words, most significant first.
// IPv4 addresses are stored mapped: 0, 0, v4Marker, addr.
type Key [4]uint32

// KeyFromAddr converts an address to a key. IPv4 and IPv4-mapped IPv6
// addresses produce the same key.
func KeyFromAddr(a netip.Addr) Key {
	b := a.As16()
	return Key{
		binary.BigEndian.Uint32(b[0:4]),
		binary.BigEndian.Uint32(b[4:8]),
		binary.BigEndian.Uint32(b[8:12]),
		binary.BigEndian.Uint32(b[12:16]),
	}
}

// KeyFromPrefix converts a CIDR block to a key and key prefix length.
// IPv4 prefix lengths are offset by 96.
func KeyFromPrefix(p netip.Prefix) (Key, uint8) {
	p = p.Masked()
	bitsLen := p.Bits()
	if p.Addr().Is4() {
		bitsLen += v4Offset
	}
	return KeyFromAddr(p.Addr()), uint8(bitsLen) //nolint:gosec // at most 128
}

// IsV4 reports whether the key with this prefix length is an IPv4 block.
func (k Key) IsV4(prefix uint8) bool {
	return prefix >= v4Offset && k[0] == 0 && k[1] == 0 && k[2] == v4Marker
}

// Addr converts the key back to an address, unmapping IPv4.
func (k Key) Addr() netip.Addr {
	var b [16]byte
	for i, w := range k {
		binary.BigEndian.PutUint32(b[i*4:], w)
	}
	return netip.AddrFrom16(b).Unmap()
}

// Prefix converts a key and key prefix length to a CIDR block.
func (k Key) Prefix(prefix uint8) netip.Prefix {
	if k.IsV4(prefix) {
		return netip.PrefixFrom(k.Addr(), int(prefix)-v4Offset)
	}
	var b [16]byte
	for i, w := range k {
		binary.BigEndian.PutUint32(b[i*4:], w)
	}
	return netip.PrefixFrom(netip.AddrFrom16(b), int(prefix))
}

// bit returns bit n of the key counting from the most significant bit.
func (k Key) bit(n uint8) int {
	return int(k[n/32]>>(31-n%32)) & 1
}

// masked clears every bit at or beyond prefix.
func (k Key) masked(prefix uint8) Key {
	var m Key
	words := int(prefix) / 32
	copy(m[:words], k[:words])
	if rem := prefix % 32; rem != 0 {
		m[words] = k[words] & wordMask(rem)
	}
	return m
}

// zeroBeyond reports whether every bit at or beyond prefix is clear.
func (k Key) zeroBeyond(prefix uint8) bool {
	return k.masked(prefix) == k
}

// wordMask keeps the n most significant bits of a word.
func wordMask(n uint8) uint32 {
	return ^uint32(0) << (32 - n)
}

// diffBits returns the index of the first bit where the keys differ, capped
// at the shorter of the two prefix lengths.
func diffBits(k1 Key, p1 uint8, k2 Key, p2 uint8) uint8 {
	limit := min(p1, p2)
	var bit uint8
	for i := range k1 {
		delta := k1[i] ^ k2[i]
		if delta != 0 {
			bit += uint8(bits.LeadingZeros32(delta)) //nolint:gosec // < 32
			break
		}
		bit += 32
		if bit >= limit {
			break
		}
	}
	return min(bit, limit)
}
