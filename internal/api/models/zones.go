package models

import "time"

// TriggerCounts holds the number of triggers of each kind in a zone.
type TriggerCounts struct {
	ClientIPv4 int `json:"client_ipv4"`
	ClientIPv6 int `json:"client_ipv6"`
	IPv4       int `json:"ipv4"`
	IPv6       int `json:"ipv6"`
	NSIPv4     int `json:"nsipv4"`
	NSIPv6     int `json:"nsipv6"`
	QName      int `json:"qname"`
	NSDName    int `json:"nsdname"`
	Total      int `json:"total"`
}

// ZoneSummary is a brief policy zone description.
type ZoneSummary struct {
	ID        int           `json:"id"`
	Name      string        `json:"name"`
	Origin    string        `json:"origin"`
	File      string        `json:"file,omitempty"`
	Format    string        `json:"format"`
	LastLoad  *time.Time    `json:"last_load,omitempty"`
	LastError string        `json:"last_error,omitempty"`
	Loaded    int           `json:"loaded"`
	Rejected  int           `json:"rejected"`
	Triggers  TriggerCounts `json:"triggers"`
}

// ZoneListResponse contains the policy zones in precedence order.
type ZoneListResponse struct {
	Zones []ZoneSummary `json:"zones"`
	Count int           `json:"count"`
}

// ZoneDetailResponse contains a zone and the owner names of its triggers.
type ZoneDetailResponse struct {
	ZoneSummary
	TriggerNames []string `json:"trigger_names"`
}

// TriggerRequest names one trigger by its owner name. Relative names are
// completed with the zone origin.
type TriggerRequest struct {
	Trigger string `json:"trigger" binding:"required"`
}

// ReplaceTriggersRequest lists the full set of stored triggers of a zone.
// Relative names are completed with the zone origin.
type ReplaceTriggersRequest struct {
	Triggers []string `json:"triggers" binding:"required"`
}

// TriggerResponse reports what a trigger change did.
type TriggerResponse struct {
	Zone    string `json:"zone"`
	Trigger string `json:"trigger"`
	Outcome string `json:"outcome"`
}

// ReloadResponse summarizes a zone reload.
type ReloadResponse struct {
	Zone       string `json:"zone"`
	Added      int    `json:"added"`
	Duplicates int    `json:"duplicates"`
	Rejected   int    `json:"rejected"`
	DurationMs int64  `json:"duration_ms"`
}
