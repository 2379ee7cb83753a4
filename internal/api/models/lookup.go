package models

// AddressLookupResponse is the answer to an address trigger lookup.
type AddressLookupResponse struct {
	Type    string `json:"type"`
	Address string `json:"address"`
	Matched bool   `json:"matched"`
	Zone    string `json:"zone,omitempty"`
	ZoneID  *int   `json:"zone_id,omitempty"`
	Prefix  string `json:"prefix,omitempty"`
	Trigger string `json:"trigger,omitempty"`
}

// NameLookupResponse is the answer to a name trigger lookup. Zones are in
// precedence order.
type NameLookupResponse struct {
	Type    string   `json:"type"`
	Name    string   `json:"name"`
	Matched bool     `json:"matched"`
	Zones   []string `json:"zones"`
}

// SkipRecurseResponse lists the zones whose QNAME and CLIENT-IP triggers
// may be checked before recursion.
type SkipRecurseResponse struct {
	Mask  string   `json:"mask"`
	Zones []string `json:"zones"`
}
