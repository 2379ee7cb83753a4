package config

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `json:"level" yaml:"level"`
	Structured       bool              `json:"structured" yaml:"structured"`
	StructuredFormat string            `json:"structured_format" yaml:"structured_format"`
	IncludePID       bool              `json:"include_pid" yaml:"include_pid"`
	ExtraFields      map[string]string `json:"extra_fields,omitempty" yaml:"extra_fields,omitempty"`
}

// APIConfig contains management API settings.
//
// Note: APIKey is a secret and must not be returned by API endpoints.
type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port"`
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig throttles API clients with token buckets. A level with a
// zero rate or burst is off.
type RateLimitConfig struct {
	GlobalQPS   float64 `json:"global_qps" yaml:"global_qps"`
	GlobalBurst int     `json:"global_burst" yaml:"global_burst"`
	PrefixQPS   float64 `json:"prefix_qps" yaml:"prefix_qps"`
	PrefixBurst int     `json:"prefix_burst" yaml:"prefix_burst"`
	IPQPS       float64 `json:"ip_qps" yaml:"ip_qps"`
	IPBurst     int     `json:"ip_burst" yaml:"ip_burst"`
	MaxEntries  int     `json:"max_entries" yaml:"max_entries"`
}

// DatabaseConfig locates the SQLite trigger store.
// An empty path disables the store.
type DatabaseConfig struct {
	Path string `json:"path" yaml:"path"`
}

// RPZConfig tunes the trigger index.
type RPZConfig struct {
	// MaxNodes caps each trie; 0 is unlimited.
	MaxNodes int `json:"max_nodes" yaml:"max_nodes"`
	// QNameWaitRecurse disables checking QNAME triggers before recursion.
	QNameWaitRecurse bool `json:"qname_wait_recurse" yaml:"qname_wait_recurse"`
	// ReloadInterval re-reads every zone periodically; 0 reloads only on
	// SIGHUP or API request.
	ReloadInterval Duration `json:"reload_interval" yaml:"reload_interval"`
}

// Source formats for ZoneConfig.Format.
const (
	FormatZone = "zone" // RPZ master file
	FormatList = "list" // one trigger owner name per line
)

// ZoneConfig declares one policy zone. Zones are listed in precedence
// order: the first entry is zone 0.
type ZoneConfig struct {
	Name   string `json:"name" yaml:"name"`
	Origin string `json:"origin" yaml:"origin"`
	// File is the trigger source. Without one the zone is loaded from the
	// database.
	File   string `json:"file,omitempty" yaml:"file,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	IP       string `json:"ip,omitempty" yaml:"ip,omitempty"`
	ClientIP string `json:"client_ip,omitempty" yaml:"client_ip,omitempty"`
	NSIP     string `json:"nsip,omitempty" yaml:"nsip,omitempty"`
	NSDName  string `json:"nsdname,omitempty" yaml:"nsdname,omitempty"`
}

// Config is the root configuration structure.
type Config struct {
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	API      APIConfig      `json:"api" yaml:"api"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	RPZ      RPZConfig      `json:"rpz" yaml:"rpz"`
	Zones    []ZoneConfig   `json:"zones" yaml:"zones"`
}
