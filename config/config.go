// Package config implements mailcore.Configuration by loading a TOML file
// with github.com/pelletier/go-toml/v2.
package config

import (
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/mailforge/mailcore"
)

// File is the on-disk TOML shape for a listener's configuration.
type File struct {
	Hostname string `toml:"hostname"`

	TLSPolicy string `toml:"tls_policy"` // "disabled" | "optional" | "required" | "immediate"

	Limits struct {
		MaxMessageSize   int64  `toml:"max_message_size"`
		MaxRecipients    int    `toml:"max_recipients"`
		MaxCommandLength int    `toml:"max_command_length"`
		MaxLineLength    int    `toml:"max_line_length"`
		MaxErrors        int    `toml:"max_errors"`
		CommandTimeout   string `toml:"command_timeout"`
		DataTimeout      string `toml:"data_timeout"`
		IdleTimeout      string `toml:"idle_timeout"`
	} `toml:"limits"`

	Relay struct {
		// AllowedNetworks lists CIDR blocks permitted to relay without
		// authentication.
		AllowedNetworks []string `toml:"allowed_networks"`
		// RequireAuthExcept lists CIDR blocks exempt from the AUTH
		// requirement (typically the allowed relay networks themselves).
		RequireAuthExcept []string `toml:"require_auth_except"`
	} `toml:"relay"`
}

// Load reads and parses a TOML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &mailcore.FatalBackendError{Backend: "config", Cause: err}
	}
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, &mailcore.FatalBackendError{Backend: "config", Cause: err}
	}
	return newConfig(f)
}

// Config is the parsed, validated, runtime-queryable form of File,
// implementing mailcore.Configuration.
type Config struct {
	file           File
	limits         mailcore.SessionLimits
	tlsPolicy      mailcore.TLSPolicy
	relayNets      []cidr
	authExemptNets []cidr
}

type cidr struct {
	raw string
}

func newConfig(f File) (*Config, error) {
	limits := mailcore.DefaultSessionLimits()
	if f.Limits.MaxMessageSize > 0 {
		limits.MaxMessageSize = f.Limits.MaxMessageSize
	}
	if f.Limits.MaxRecipients > 0 {
		limits.MaxRecipients = f.Limits.MaxRecipients
	}
	if f.Limits.MaxCommandLength > 0 {
		limits.MaxCommandLength = f.Limits.MaxCommandLength
	}
	if f.Limits.MaxLineLength > 0 {
		limits.MaxLineLength = f.Limits.MaxLineLength
	}
	if f.Limits.MaxErrors > 0 {
		limits.MaxErrors = f.Limits.MaxErrors
	}
	if d, err := parseDuration(f.Limits.CommandTimeout); err == nil && d > 0 {
		limits.CommandTimeout = d
	}
	if d, err := parseDuration(f.Limits.DataTimeout); err == nil && d > 0 {
		limits.DataTimeout = d
	}
	if d, err := parseDuration(f.Limits.IdleTimeout); err == nil && d > 0 {
		limits.IdleTimeout = d
	}

	policy := parseTLSPolicy(f.TLSPolicy)

	relay := make([]cidr, 0, len(f.Relay.AllowedNetworks))
	for _, n := range f.Relay.AllowedNetworks {
		relay = append(relay, cidr{raw: n})
	}
	exempt := make([]cidr, 0, len(f.Relay.RequireAuthExcept))
	for _, n := range f.Relay.RequireAuthExcept {
		exempt = append(exempt, cidr{raw: n})
	}

	return &Config{file: f, limits: limits, tlsPolicy: policy, relayNets: relay, authExemptNets: exempt}, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func parseTLSPolicy(s string) mailcore.TLSPolicy {
	switch s {
	case "optional":
		return mailcore.TLSOptional
	case "required":
		return mailcore.TLSRequired
	case "immediate":
		return mailcore.TLSImmediate
	default:
		return mailcore.TLSDisabled
	}
}

// Hostname implements mailcore.Configuration.
func (c *Config) Hostname() string {
	if c.file.Hostname == "" {
		return "localhost"
	}
	return c.file.Hostname
}

// Limits implements mailcore.Configuration.
func (c *Config) Limits() mailcore.SessionLimits { return c.limits }

// TLSPolicy implements mailcore.Configuration.
func (c *Config) TLSPolicy() mailcore.TLSPolicy { return c.tlsPolicy }

// IsRelayingAllowed implements mailcore.Configuration by checking the
// remote IP against the configured relay CIDR list.
func (c *Config) IsRelayingAllowed(remoteIP string, rcptDomain string) bool {
	for _, n := range c.relayNets {
		if cidrContains(n.raw, remoteIP) {
			return true
		}
	}
	return false
}

// IsAuthRequired implements mailcore.Configuration.
func (c *Config) IsAuthRequired(remoteIP string) bool {
	for _, n := range c.authExemptNets {
		if cidrContains(n.raw, remoteIP) {
			return false
		}
	}
	return true
}

var _ mailcore.Configuration = (*Config)(nil)
