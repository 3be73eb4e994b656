/*
File: config.go
Version: 1.0.0
Description: YAML configuration tree, defaults and duration parsing.
*/

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultLookupCacheSize = 5000
	DefaultResultCacheSize = 1000
	DefaultLookupTimeout   = 2 * time.Second
	DefaultRequestTimeout  = 10 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultBatchLimit      = 100
	DefaultMaxBodyBytes    = 1 << 20
)

// --- Configuration Structures ---

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Engine    EngineConfig    `yaml:"engine"`
	Lookups   LookupsConfig   `yaml:"lookups"`
	Model     ModelConfig     `yaml:"model"`
}

type ServerConfig struct {
	Listen StringOrSlice `yaml:"listen"`

	TLS struct {
		CertFile string `yaml:"cert_file"`
		KeyFile  string `yaml:"key_file"`
	} `yaml:"tls"`

	// HTTP/3 needs TLS; the listener shares the port number of the TCP listener unless set.
	HTTP3 struct {
		Enabled bool   `yaml:"enabled"`
		Listen  string `yaml:"listen"`
	} `yaml:"http3"`

	RequestTimeout   string `yaml:"request_timeout"`
	ShutdownTimeout  string `yaml:"shutdown_timeout"`
	MaxBodyBytes     int64  `yaml:"max_body_bytes"`
	BatchLimit       int    `yaml:"batch_limit"`
	BatchConcurrency int    `yaml:"batch_concurrency"`

	parsedRequestTimeout  time.Duration
	parsedShutdownTimeout time.Duration
}

type LoggingConfig struct {
	Level   string   `yaml:"level"`
	Format  string   `yaml:"format"`
	Outputs []string `yaml:"outputs"`

	File struct {
		Path        string `yaml:"path"`
		Permissions uint32 `yaml:"permissions"`
	} `yaml:"file"`
}

type RateLimitConfig struct {
	Enabled          bool   `yaml:"enabled"`
	ClientQPS        int    `yaml:"client_qps"`
	ClientBurst      int    `yaml:"client_burst"`
	CleanupInterval  string `yaml:"cleanup_interval"`
	ClientExpiration string `yaml:"client_expiration"`

	parsedCleanupInterval  time.Duration
	parsedClientExpiration time.Duration
}

// ListSource is a domain list given inline and/or loaded from files and URLs.
type ListSource struct {
	Domains []string `yaml:"domains"`
	Files   []string `yaml:"files"`
	URLs    []string `yaml:"urls"`
}

func (l ListSource) IsEmpty() bool {
	return len(l.Domains) == 0 && len(l.Files) == 0 && len(l.URLs) == 0
}

type EngineConfig struct {
	Whitelist       ListSource `yaml:"whitelist"`
	Blacklist       ListSource `yaml:"blacklist"`
	SuspiciousTLDs  []string   `yaml:"suspicious_tlds"`
	RuleKeywords    []string   `yaml:"rule_keywords"`
	FeatureKeywords []string   `yaml:"feature_keywords"`
	Brands          []string   `yaml:"brands"`
	Shorteners      []string   `yaml:"shorteners"`

	ResultCacheSize int    `yaml:"result_cache_size"`
	ResultCacheTTL  string `yaml:"result_cache_ttl"`
	LookupCacheSize int    `yaml:"lookup_cache_size"`
	LookupCacheTTL  string `yaml:"lookup_cache_ttl"`
	LookupTimeout   string `yaml:"lookup_timeout"`

	parsedResultCacheTTL time.Duration
	parsedLookupCacheTTL time.Duration
	parsedLookupTimeout  time.Duration
}

type LookupsConfig struct {
	Whois struct {
		Disabled bool    `yaml:"disabled"`
		Server   string  `yaml:"server"` // empty = follow IANA referral
		QPS      float64 `yaml:"qps"`
		Burst    int     `yaml:"burst"`
	} `yaml:"whois"`

	DNS struct {
		// Resolvers are host:port pairs queried with miekg/dns. Empty = system resolver.
		Resolvers []string `yaml:"resolvers"`
	} `yaml:"dns"`

	Reputation struct {
		// File holds "CIDR score" lines. Empty = every address is neutral.
		File string `yaml:"file"`
	} `yaml:"reputation"`
}

type ModelConfig struct {
	BundlePath string `yaml:"bundle_path"`
}

type StringOrSlice []string

func (s *StringOrSlice) UnmarshalYAML(value *yaml.Node) error {
	var single string
	if err := value.Decode(&single); err == nil {
		*s = []string{single}
		return nil
	}
	var slice []string
	if err := value.Decode(&slice); err != nil {
		return err
	}
	*s = slice
	return nil
}

// --- Configuration Loading ---

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML and fills in defaults.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if cfg.Model.BundlePath == "" {
		return nil, fmt.Errorf("model.bundle_path is required")
	}
	if cfg.Server.HTTP3.Enabled && (cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "") {
		return nil, fmt.Errorf("server.http3 requires server.tls.cert_file and key_file")
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if len(cfg.Server.Listen) == 0 {
		cfg.Server.Listen = StringOrSlice{"127.0.0.1:5000"}
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Server.BatchLimit <= 0 {
		cfg.Server.BatchLimit = DefaultBatchLimit
	}
	if cfg.Server.BatchConcurrency <= 0 {
		cfg.Server.BatchConcurrency = 8
	}
	cfg.Server.parsedRequestTimeout = parseDurationOr("server.request_timeout", cfg.Server.RequestTimeout, DefaultRequestTimeout)
	cfg.Server.parsedShutdownTimeout = parseDurationOr("server.shutdown_timeout", cfg.Server.ShutdownTimeout, DefaultShutdownTimeout)

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if len(cfg.Logging.Outputs) == 0 {
		cfg.Logging.Outputs = []string{"console"}
	}

	if cfg.RateLimit.ClientQPS <= 0 {
		cfg.RateLimit.ClientQPS = 20
	}
	if cfg.RateLimit.ClientBurst <= 0 {
		cfg.RateLimit.ClientBurst = cfg.RateLimit.ClientQPS * 2
	}
	cfg.RateLimit.parsedCleanupInterval = parseDurationOr("rate_limit.cleanup_interval", cfg.RateLimit.CleanupInterval, time.Minute)
	cfg.RateLimit.parsedClientExpiration = parseDurationOr("rate_limit.client_expiration", cfg.RateLimit.ClientExpiration, 5*time.Minute)

	e := &cfg.Engine
	if e.Whitelist.IsEmpty() {
		e.Whitelist.Domains = append([]string(nil), defaultWhitelist...)
	}
	if e.SuspiciousTLDs == nil {
		e.SuspiciousTLDs = append([]string(nil), defaultSuspiciousTLDs...)
	}
	if e.RuleKeywords == nil {
		e.RuleKeywords = append([]string(nil), defaultRuleKeywords...)
	}
	if e.FeatureKeywords == nil {
		e.FeatureKeywords = append([]string(nil), defaultFeatureKeywords...)
	}
	if e.Brands == nil {
		e.Brands = append([]string(nil), defaultBrands...)
	}
	if e.Shorteners == nil {
		e.Shorteners = append([]string(nil), defaultShorteners...)
	}
	for i, tld := range e.SuspiciousTLDs {
		tld = strings.ToLower(strings.TrimSpace(tld))
		if !strings.HasPrefix(tld, ".") {
			tld = "." + tld
		}
		e.SuspiciousTLDs[i] = tld
	}
	if e.ResultCacheSize <= 0 {
		e.ResultCacheSize = DefaultResultCacheSize
	}
	if e.LookupCacheSize <= 0 {
		e.LookupCacheSize = DefaultLookupCacheSize
	}
	e.parsedResultCacheTTL = parseDurationOr("engine.result_cache_ttl", e.ResultCacheTTL, 0)
	e.parsedLookupCacheTTL = parseDurationOr("engine.lookup_cache_ttl", e.LookupCacheTTL, 0)
	e.parsedLookupTimeout = parseDurationOr("engine.lookup_timeout", e.LookupTimeout, DefaultLookupTimeout)

	if cfg.Lookups.Whois.QPS <= 0 {
		cfg.Lookups.Whois.QPS = 5
	}
	if cfg.Lookups.Whois.Burst <= 0 {
		cfg.Lookups.Whois.Burst = 10
	}
}

// parseDurationOr parses s, warning and returning def when s is empty or invalid.
func parseDurationOr(name, s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		LogWarn("[CONFIG] Invalid %s '%s', defaulting to %v", name, s, def)
		return def
	}
	return d
}
