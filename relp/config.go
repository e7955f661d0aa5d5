// Package relp is the top-level RELP engine facade: Config validation and
// defaulting, the server-side Engine (one listener, many sessions), and the
// client-side Client (one outbound session with optional auto-reconnect).
package relp

import (
	"time"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"

	"github.com/rsyslog/rsyslog-sub006/command"
	"github.com/rsyslog/rsyslog-sub006/offers"
	"github.com/rsyslog/rsyslog-sub006/session"
	"github.com/rsyslog/rsyslog-sub006/transport"
)

// Config bundles every engine/session/transport knob an embedder sets, per
// spec.md §6's "External Interfaces" list.
type Config struct {
	ListenAddr      string `validate:"required_without=DialAddr"`
	DialAddr        string `validate:"required_without=ListenAddr"`
	ProtocolFamily  transport.ProtocolFamily
	WindowSize      int           `validate:"gt=1"`
	Timeout         time.Duration `validate:"gte=0"`
	MaxDataSize     int           `validate:"gte=0"`
	ProtocolVersion int           `validate:"gte=0"`
	Software        offers.Software
	DNSLookupMode   transport.DNSLookupMode
	Transport       transport.Config
	Commands        command.EnableMap
	AutoRetry       bool
}

// DefaultConfig returns the baseline values used to fill any zero-valued
// field of a caller-supplied Config (spec.md §7's stated defaults).
func DefaultConfig() Config {
	sc := session.DefaultConfig()
	return Config{
		ProtocolFamily:  transport.FamilyAny,
		WindowSize:      sc.WindowSize,
		Timeout:         sc.Timeout,
		MaxDataSize:     sc.MaxDataSize,
		ProtocolVersion: sc.ProtocolVersion,
		Software:        sc.Software,
		DNSLookupMode:   sc.DNSLookupMode,
		Commands:        command.NewEnableMap(),
	}
}

// ApplyDefaults fills every zero-valued field of cfg from DefaultConfig,
// in the manner of mergo.Merge's default (non-override) merge semantics.
func ApplyDefaults(cfg *Config) error {
	return mergo.Merge(cfg, DefaultConfig())
}

// Validate checks cfg's struct tags with go-playground/validator, after
// defaults have been applied.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// sessionConfig projects Config down to the session.Config subset.
func (c Config) sessionConfig() session.Config {
	return session.Config{
		WindowSize:      c.WindowSize,
		Timeout:         c.Timeout,
		MaxDataSize:     c.MaxDataSize,
		ProtocolVersion: c.ProtocolVersion,
		Software:        c.Software,
		DNSLookupMode:   c.DNSLookupMode,
		AutoRetry:       c.AutoRetry,
	}
}
