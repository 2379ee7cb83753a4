package models

import "time"

// ServerStatsResponse contains server runtime statistics.
type ServerStatsResponse struct {
	Uptime         string                         `json:"uptime"`
	UptimeSeconds  int64                          `json:"uptime_seconds"`
	StartTime      time.Time                      `json:"start_time"`
	GoRoutines     int                            `json:"goroutines"`
	MemoryAllocMB  float64                        `json:"memory_alloc_mb"`
	NumCPU         int                            `json:"num_cpu"`
	Process        *ProcessStats                  `json:"process,omitempty"`
	Index          IndexStatsResponse             `json:"index"`
	Lookups        map[string]LookupStatsResponse `json:"lookups"`
	StoreVersion   *int64                         `json:"store_version,omitempty"`
	StoredTriggers map[string]int                 `json:"stored_triggers,omitempty"`
}

// ProcessStats describes the server process as seen by the OS.
type ProcessStats struct {
	RSSMB      float64 `json:"rss_mb"`
	CPUPercent float64 `json:"cpu_percent"`
	NumThreads int32   `json:"num_threads"`
}

// IndexStatsResponse contains trigger index sizes.
type IndexStatsResponse struct {
	Zones       int    `json:"zones"`
	CIDRNodes   int    `json:"cidr_nodes"`
	NameNodes   int    `json:"name_nodes"`
	Names       int    `json:"names"`
	SkipRecurse string `json:"skip_recurse"`
}

// LookupStatsResponse counts lookups of one trigger type.
type LookupStatsResponse struct {
	Lookups uint64 `json:"lookups"`
	Matches uint64 `json:"matches"`
}
