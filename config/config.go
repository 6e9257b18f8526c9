package config

import (
	"ddnsguard/common"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	Service    Service    `toml:"service" json:"service" yaml:"service"`
	Log        Log        `toml:"log" json:"log" yaml:"log"`
	Resolver   Resolver   `toml:"resolver" json:"resolver" yaml:"resolver"`
	Provider   Provider   `toml:"provider" json:"provider" yaml:"provider"`
	AutoUpdate AutoUpdate `toml:"auto_update" json:"auto_update" yaml:"auto_update"`
	Metrics    Metrics    `toml:"metrics" json:"metrics" yaml:"metrics"`
}

type Service struct {
	Name string `toml:"name" json:"name" yaml:"name"`
	// RefreshRate of zero runs a single cycle and exits.
	RefreshRate *common.Duration `toml:"refresh_rate" json:"refresh_rate" yaml:"refresh_rate"`
}

type Log struct {
	Level     *zapcore.Level `toml:"level" json:"level" yaml:"level"`
	Encoding  *string        `toml:"encoding" json:"encoding" yaml:"encoding"`
	InfoPath  *[]string      `toml:"info_path" json:"info_path" yaml:"info_path"`
	ErrorPath *[]string      `toml:"error_path" json:"error_path" yaml:"error_path"`
	File      *LogFile       `toml:"file" json:"file" yaml:"file"`
}

// LogFile configures a size-rotated log file written alongside the console output.
type LogFile struct {
	Path       string `toml:"path" json:"path" yaml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`
}

type Resolver struct {
	Timeout       common.Duration `toml:"timeout" json:"timeout" yaml:"timeout"`
	Endpoints     []Endpoint      `toml:"endpoints" json:"endpoints" yaml:"endpoints"`
	RangesURL     string          `toml:"ranges_url" json:"ranges_url" yaml:"ranges_url"`
	RangesTimeout common.Duration `toml:"ranges_timeout" json:"ranges_timeout" yaml:"ranges_timeout"`
	ExtraBlocked  []common.CIDR   `toml:"extra_blocked" json:"extra_blocked" yaml:"extra_blocked"`
}

// Endpoint is one IP-echo service. Type selects the endpoint kind, Source is
// its URL, host or resolver address, and Config holds kind-specific options.
type Endpoint struct {
	Type   string         `toml:"type" json:"type" yaml:"type"`
	Source string         `toml:"source" json:"source" yaml:"source"`
	Config map[string]any `toml:"config,omitempty" json:"config,omitempty" yaml:"config,omitempty"`
}

type EndpointHTTPConfig struct {
	Timeout common.Duration `mapstructure:"timeout"`
}

type EndpointDNSConfig struct {
	Timeout common.Duration `mapstructure:"timeout"`
	Name    string          `mapstructure:"name"`
}

type Provider struct {
	Type   string         `toml:"type" json:"type" yaml:"type"`
	Config map[string]any `toml:"config" json:"config" yaml:"config"`
}

type CloudflareConfig struct {
	APIToken   string          `mapstructure:"api_token"`
	ZoneID     string          `mapstructure:"zone_id"`
	ZoneName   string          `mapstructure:"zone_name"`
	RecordName string          `mapstructure:"record_name"`
	TTL        int             `mapstructure:"ttl"`
	BaseURL    string          `mapstructure:"base_url"`
	Timeout    common.Duration `mapstructure:"timeout"`
	MaxRetries int             `mapstructure:"max_retries"`
}

type AutoUpdate struct {
	Enabled  bool            `toml:"enabled" json:"enabled" yaml:"enabled"`
	Interval common.Duration `toml:"interval" json:"interval" yaml:"interval"`
	Dir      string          `toml:"dir" json:"dir" yaml:"dir"`
	Remote   string          `toml:"remote" json:"remote" yaml:"remote"`
	Pull     bool            `toml:"pull" json:"pull" yaml:"pull"`
}

type Metrics struct {
	// Textfile is written after each cycle in the node_exporter textfile format.
	Textfile string `toml:"textfile" json:"textfile" yaml:"textfile"`
}
