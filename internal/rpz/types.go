package rpz

import (
	"fmt"
	"strings"
)

// Type is the kind of trigger a policy record describes.
type Type uint8

const (
	// TypeBad marks an unusable trigger.
	TypeBad Type = iota
	// TypeClientIP matches the address of the querying client.
	TypeClientIP
	// TypeQName matches the query name.
	TypeQName
	// TypeIP matches addresses in the answer.
	TypeIP
	// TypeNSDName matches names of authoritative name servers.
	TypeNSDName
	// TypeNSIP matches addresses of authoritative name servers.
	TypeNSIP
)

func (t Type) String() string {
	switch t {
	case TypeClientIP:
		return "client-ip"
	case TypeQName:
		return "qname"
	case TypeIP:
		return "ip"
	case TypeNSDName:
		return "nsdname"
	case TypeNSIP:
		return "nsip"
	default:
		return "bad"
	}
}

// ParseType converts the API spelling of a trigger type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "client-ip", "client_ip", "clientip":
		return TypeClientIP, nil
	case "qname":
		return TypeQName, nil
	case "ip":
		return TypeIP, nil
	case "nsdname":
		return TypeNSDName, nil
	case "nsip":
		return TypeNSIP, nil
	default:
		return TypeBad, fmt.Errorf("unknown trigger type %q", s)
	}
}

// IsAddress reports whether triggers of this type are CIDR blocks.
func (t Type) IsAddress() bool {
	return t == TypeClientIP || t == TypeIP || t == TypeNSIP
}

// IsName reports whether triggers of this type are domain names.
func (t Type) IsName() bool {
	return t == TypeQName || t == TypeNSDName
}

// counter indexes the per-zone trigger counters. Address types are split
// by family.
type counter uint8

const (
	cntClientIPv4 counter = iota
	cntClientIPv6
	cntIPv4
	cntIPv6
	cntNSIPv4
	cntNSIPv6
	cntQName
	cntNSDName
	numCounters
)

func counterFor(t Type, v4 bool) counter {
	switch t {
	case TypeClientIP:
		if v4 {
			return cntClientIPv4
		}
		return cntClientIPv6
	case TypeIP:
		if v4 {
			return cntIPv4
		}
		return cntIPv6
	case TypeNSIP:
		if v4 {
			return cntNSIPv4
		}
		return cntNSIPv6
	case TypeQName:
		return cntQName
	case TypeNSDName:
		return cntNSDName
	}
	panic(fmt.Sprintf("rpz: no counter for trigger type %v", t))
}

// TriggerCounts holds the number of triggers of each kind in one zone.
type TriggerCounts struct {
	ClientIPv4 int `json:"client_ipv4"`
	ClientIPv6 int `json:"client_ipv6"`
	IPv4       int `json:"ipv4"`
	IPv6       int `json:"ipv6"`
	NSIPv4     int `json:"nsipv4"`
	NSIPv6     int `json:"nsipv6"`
	QName      int `json:"qname"`
	NSDName    int `json:"nsdname"`
}

// Total sums every counter.
func (c TriggerCounts) Total() int {
	return c.ClientIPv4 + c.ClientIPv6 + c.IPv4 + c.IPv6 + c.NSIPv4 + c.NSIPv6 + c.QName + c.NSDName
}

func countsFrom(raw [numCounters]int) TriggerCounts {
	return TriggerCounts{
		ClientIPv4: raw[cntClientIPv4],
		ClientIPv6: raw[cntClientIPv6],
		IPv4:       raw[cntIPv4],
		IPv6:       raw[cntIPv6],
		NSIPv4:     raw[cntNSIPv4],
		NSIPv6:     raw[cntNSIPv6],
		QName:      raw[cntQName],
		NSDName:    raw[cntNSDName],
	}
}
