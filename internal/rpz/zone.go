package rpz

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/miekg/dns"
)

// Default trigger suffix labels, relative to the zone origin.
const (
	DefaultIPSuffix       = "rpz-ip"
	DefaultClientIPSuffix = "rpz-client-ip"
	DefaultNSIPSuffix     = "rpz-nsip"
	DefaultNSDNameSuffix  = "rpz-nsdname"
)

// ZoneSpec describes a policy zone when it is registered.
// Empty suffixes take the defaults.
type ZoneSpec struct {
	ID       ZoneID
	Name     string
	Origin   string
	IP       string
	ClientIP string
	NSIP     string
	NSDName  string
}

// Zone describes one registered policy zone. It is shared, not copied,
// between a live context and the shadow built while the zone reloads.
type Zone struct {
	ID     ZoneID
	Name   string
	Origin string

	ip       string
	clientIP string
	nsip     string
	nsdname  string

	refs atomic.Int32
}

func newZone(spec ZoneSpec) (*Zone, error) {
	if !spec.ID.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrBadZone, spec.ID)
	}
	origin := CanonicalName(spec.Origin)
	if _, ok := dns.IsDomainName(origin); !ok {
		return nil, fmt.Errorf("invalid zone origin %q", spec.Origin)
	}

	z := &Zone{
		ID:       spec.ID,
		Name:     spec.Name,
		Origin:   origin,
		ip:       suffixName(spec.IP, DefaultIPSuffix, origin),
		clientIP: suffixName(spec.ClientIP, DefaultClientIPSuffix, origin),
		nsip:     suffixName(spec.NSIP, DefaultNSIPSuffix, origin),
		nsdname:  suffixName(spec.NSDName, DefaultNSDNameSuffix, origin),
	}
	if z.Name == "" {
		z.Name = strings.TrimSuffix(origin, ".")
	}
	z.refs.Store(1)
	return z, nil
}

func suffixName(label, def, origin string) string {
	label = strings.Trim(strings.TrimSpace(label), ".")
	if label == "" {
		label = def
	}
	if origin == "." {
		return CanonicalName(label)
	}
	return CanonicalName(dns.Fqdn(label) + origin)
}

func (z *Zone) attach() *Zone {
	z.refs.Add(1)
	return z
}

func (z *Zone) detach() {
	z.refs.Add(-1)
}

// Refs returns how many contexts hold the zone.
func (z *Zone) Refs() int32 {
	return z.refs.Load()
}

// Suffix returns the absolute name under which triggers of type t live.
func (z *Zone) Suffix(t Type) string {
	switch t {
	case TypeIP:
		return z.ip
	case TypeClientIP:
		return z.clientIP
	case TypeNSIP:
		return z.nsip
	case TypeNSDName:
		return z.nsdname
	default:
		return z.Origin
	}
}

// Classify reports the trigger type of an owner name in this zone.
// Names outside the zone are TypeBad.
func (z *Zone) Classify(name string) Type {
	name = CanonicalName(name)
	switch {
	case !dns.IsSubDomain(z.Origin, name):
		return TypeBad
	case dns.IsSubDomain(z.ip, name):
		return TypeIP
	case dns.IsSubDomain(z.clientIP, name):
		return TypeClientIP
	case dns.IsSubDomain(z.nsip, name):
		return TypeNSIP
	case dns.IsSubDomain(z.nsdname, name):
		return TypeNSDName
	default:
		return TypeQName
	}
}

// trigger is a decoded owner name.
type trigger struct {
	typ    Type
	key    Key
	prefix uint8
	name   string
	wild   bool
}

func (z *Zone) parse(owner string) (trigger, error) {
	owner = CanonicalName(owner)
	tr := trigger{typ: z.Classify(owner)}
	if tr.typ == TypeBad {
		return tr, fmt.Errorf("%w: %q is outside zone %s", ErrInvalidTrigger, owner, z.Origin)
	}

	labels, _ := relativeLabels(owner, z.Suffix(tr.typ))
	if len(labels) == 0 {
		return tr, fmt.Errorf("%w: %q names no %s trigger", ErrInvalidTrigger, owner, tr.typ)
	}

	if tr.typ.IsAddress() {
		key, prefix, err := decodeAddressLabels(labels)
		if err != nil {
			return tr, fmt.Errorf("%s trigger %q: %w", tr.typ, owner, err)
		}
		tr.key, tr.prefix = key, prefix
		return tr, nil
	}

	tr.name, tr.wild = decodeNameLabels(labels)
	return tr, nil
}

// ownerName rebuilds the owner name of a trigger.
func (z *Zone) ownerName(tr trigger) string {
	suffix := z.Suffix(tr.typ)
	if tr.typ.IsAddress() {
		return EncodeAddress(tr.key, tr.prefix) + "." + suffix
	}
	var sb strings.Builder
	if tr.wild {
		sb.WriteString("*.")
	}
	if tr.name != "." {
		sb.WriteString(tr.name)
	}
	sb.WriteString(suffix)
	return sb.String()
}
