package rpz

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/miekg/dns"
)

// elided stands for one or more all-zero 16-bit words in an IPv6 trigger.
const elided = "zz"

// CanonicalName lowercases a domain name and makes it fully qualified.
func CanonicalName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "."
	}
	return dns.CanonicalName(name)
}

// relativeLabels returns the labels of name that precede suffix.
// Both names must be canonical.
func relativeLabels(name, suffix string) ([]string, bool) {
	if !dns.IsSubDomain(suffix, name) {
		return nil, false
	}
	labels := dns.SplitDomainName(name)
	return labels[:len(labels)-dns.CountLabel(suffix)], true
}

// DecodeAddress parses the origin-relative part of an address trigger name,
// e.g. "24.0.2.0.192" or "128.1.zz.db8.2001", into a key and key prefix length.
func DecodeAddress(rel string) (Key, uint8, error) {
	rel = strings.TrimSuffix(strings.ToLower(rel), ".")
	if rel == "" {
		return Key{}, 0, fmt.Errorf("%w: empty address trigger", ErrInvalidTrigger)
	}
	return decodeAddressLabels(strings.Split(rel, "."))
}

func decodeAddressLabels(labels []string) (Key, uint8, error) {
	var key Key
	if len(labels) < 2 {
		return key, 0, fmt.Errorf("%w: %q has no address labels", ErrInvalidTrigger, strings.Join(labels, "."))
	}

	n, err := strconv.ParseUint(labels[0], 10, 8)
	if err != nil || n < 1 || n > KeyBits {
		return key, 0, fmt.Errorf("%w: invalid prefix length %q", ErrInvalidTrigger, labels[0])
	}
	prefix := uint8(n)
	addr := labels[1:]

	if len(addr) == 4 && !hasElided(addr) {
		if prefix > 32 {
			return key, 0, fmt.Errorf("%w: invalid IPv4 prefix length %d", ErrInvalidTrigger, prefix)
		}
		var w uint32
		for i, l := range addr {
			octet, err := strconv.ParseUint(l, 10, 8)
			if err != nil {
				return key, 0, fmt.Errorf("%w: invalid IPv4 octet %q", ErrInvalidTrigger, l)
			}
			w |= uint32(octet) << (8 * i)
		}
		key = Key{0, 0, v4Marker, w}
		prefix += v4Offset
	} else {
		words, err := decodeWords(addr)
		if err != nil {
			return key, 0, err
		}
		for i, w := range words {
			if i%2 == 0 {
				key[3-i/2] |= uint32(w)
			} else {
				key[3-i/2] |= uint32(w) << 16
			}
		}
	}

	if !key.zeroBeyond(prefix) {
		return key, 0, fmt.Errorf("%w: address bits set beyond prefix length %d", ErrInvalidTrigger, prefix)
	}
	return key, prefix, nil
}

func hasElided(labels []string) bool {
	for _, l := range labels {
		if l == elided {
			return true
		}
	}
	return false
}

// decodeWords expands IPv6 labels, least significant word first, into eight
// 16-bit words.
func decodeWords(labels []string) ([8]uint16, error) {
	var words [8]uint16
	if len(labels) > 8 {
		return words, fmt.Errorf("%w: too many IPv6 labels", ErrInvalidTrigger)
	}
	i := 0
	seen := false
	for _, l := range labels {
		if l == elided {
			if seen {
				return words, fmt.Errorf("%w: more than one %q label", ErrInvalidTrigger, elided)
			}
			seen = true
			// the explicit labels that remain keep their own slots
			i += 8 - (len(labels) - 1)
			continue
		}
		w, err := strconv.ParseUint(l, 16, 16)
		if err != nil {
			return words, fmt.Errorf("%w: invalid IPv6 word %q", ErrInvalidTrigger, l)
		}
		if i >= 8 {
			return words, fmt.Errorf("%w: too many IPv6 words", ErrInvalidTrigger)
		}
		words[i] = uint16(w)
		i++
	}
	if i != 8 {
		return words, fmt.Errorf("%w: IPv6 address has %d words", ErrInvalidTrigger, i)
	}
	return words, nil
}

// EncodeAddress is the inverse of DecodeAddress. The first longest run of
// two or more zero words is written as "zz".
func EncodeAddress(key Key, prefix uint8) string {
	var sb strings.Builder
	if prefix > v4Offset && key.IsV4(prefix) {
		w := key[3]
		fmt.Fprintf(&sb, "%d.%d.%d.%d.%d", prefix-v4Offset, w&0xff, (w>>8)&0xff, (w>>16)&0xff, w>>24)
		return sb.String()
	}

	var words [8]uint16
	for i := range 4 {
		words[i*2] = uint16(key[3-i] & 0xffff)
		words[i*2+1] = uint16(key[3-i] >> 16)
	}

	bestFirst, bestLen := -1, 1
	for n := 0; n < len(words); {
		if words[n] != 0 {
			n++
			continue
		}
		first := n
		for n < len(words) && words[n] == 0 {
			n++
		}
		if n-first > bestLen {
			bestFirst, bestLen = first, n-first
		}
	}

	sb.WriteString(strconv.Itoa(int(prefix)))
	for n := 0; n < len(words); n++ {
		if n == bestFirst {
			sb.WriteString("." + elided)
			n += bestLen - 1
			continue
		}
		sb.WriteString("." + strconv.FormatUint(uint64(words[n]), 16))
	}
	return sb.String()
}

// DecodeNameTrigger splits an origin-relative name trigger into the name it
// applies to and whether it was a wildcard. "*.example.com" yields
// ("example.com.", true): the wildcard registers against its parent.
func DecodeNameTrigger(rel string) (string, bool) {
	return decodeNameLabels(dns.SplitDomainName(CanonicalName(rel)))
}

func decodeNameLabels(labels []string) (string, bool) {
	wild := len(labels) > 0 && labels[0] == "*"
	if wild {
		labels = labels[1:]
	}
	if len(labels) == 0 {
		return ".", wild
	}
	return strings.Join(labels, ".") + ".", wild
}
