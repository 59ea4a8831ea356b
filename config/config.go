// Package config defines the streaming server configuration record, its
// documented defaults, and partial-override merging.
//
// Configuration is immutable per server instance after start: merging a
// Patch does not rebind the port or restart anything. Callers needing a
// transport-affecting change must stop and reinitialize the server.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sudocode-ai/Roo-Code-server/errors"
)

// Documented defaults for the externally-configured deployment.
const (
	DefaultPort                = 3051
	DefaultPortRangeMin        = 3050
	DefaultPortRangeMax        = 3100
	DefaultHeartbeatIntervalMs = 30000
	DefaultConnectionTimeoutMs = 60000
)

// Range is the fallback port band scanned on bind conflicts.
type Range struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// Server holds the streaming server configuration. Durations are
// expressed in milliseconds on the wire, matching the host's
// configuration surface.
type Server struct {
	// Enabled controls whether the subsystem runs at all.
	Enabled   bool  `json:"enabled" yaml:"enabled"`
	Port      int   `json:"port" yaml:"port"`
	PortRange Range `json:"portRange" yaml:"portRange"`

	ConnectionTimeoutMs int64 `json:"connectionTimeout" yaml:"connectionTimeout"`
	HeartbeatIntervalMs int64 `json:"heartbeatInterval" yaml:"heartbeatInterval"`

	// Logging and LoggingLevel control diagnostic verbosity only; they
	// have no behavioral effect on the server.
	Logging      bool   `json:"logging" yaml:"logging"`
	LoggingLevel string `json:"loggingLevel" yaml:"loggingLevel"`
}

// Default returns the documented default configuration. The subsystem
// ships disabled; the host flips Enabled explicitly.
func Default() Server {
	return Server{
		Enabled:             false,
		Port:                DefaultPort,
		PortRange:           Range{Min: DefaultPortRangeMin, Max: DefaultPortRangeMax},
		ConnectionTimeoutMs: DefaultConnectionTimeoutMs,
		HeartbeatIntervalMs: DefaultHeartbeatIntervalMs,
		Logging:             true,
		LoggingLevel:        "info",
	}
}

// ConnectionTimeout returns the read timeout as a duration.
func (c Server) ConnectionTimeout() time.Duration {
	return time.Duration(c.ConnectionTimeoutMs) * time.Millisecond
}

// HeartbeatInterval returns the heartbeat cadence as a duration.
func (c Server) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}

// SlogLevel maps LoggingLevel to a slog level, defaulting to info.
func (c Server) SlogLevel() slog.Level {
	switch c.LoggingLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks the configuration for internal consistency. Port 0 is
// allowed and binds an OS-assigned ephemeral port.
func (c Server) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.WrapInvalid(
			fmt.Errorf("port %d out of range 0-65535", c.Port),
			"Config", "Validate", "check port")
	}
	if c.PortRange != (Range{}) {
		if c.PortRange.Min <= 0 || c.PortRange.Max > 65535 || c.PortRange.Min > c.PortRange.Max {
			return errors.WrapInvalid(
				fmt.Errorf("port range [%d,%d] invalid", c.PortRange.Min, c.PortRange.Max),
				"Config", "Validate", "check port range")
		}
	}
	if c.ConnectionTimeoutMs <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("connectionTimeout %dms must be positive", c.ConnectionTimeoutMs),
			"Config", "Validate", "check connection timeout")
	}
	if c.HeartbeatIntervalMs <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("heartbeatInterval %dms must be positive", c.HeartbeatIntervalMs),
			"Config", "Validate", "check heartbeat interval")
	}
	switch c.LoggingLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown logging level %q", c.LoggingLevel),
			"Config", "Validate", "check logging level")
	}
	return nil
}

// Patch is a partial configuration override. Nil fields leave the
// current value untouched.
type Patch struct {
	Enabled             *bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Port                *int    `json:"port,omitempty" yaml:"port,omitempty"`
	PortRange           *Range  `json:"portRange,omitempty" yaml:"portRange,omitempty"`
	ConnectionTimeoutMs *int64  `json:"connectionTimeout,omitempty" yaml:"connectionTimeout,omitempty"`
	HeartbeatIntervalMs *int64  `json:"heartbeatInterval,omitempty" yaml:"heartbeatInterval,omitempty"`
	Logging             *bool   `json:"logging,omitempty" yaml:"logging,omitempty"`
	LoggingLevel        *string `json:"loggingLevel,omitempty" yaml:"loggingLevel,omitempty"`
}

// Apply merges the patch into a copy of the configuration and returns
// it. The receiver is not mutated.
func (c Server) Apply(p Patch) Server {
	if p.Enabled != nil {
		c.Enabled = *p.Enabled
	}
	if p.Port != nil {
		c.Port = *p.Port
	}
	if p.PortRange != nil {
		c.PortRange = *p.PortRange
	}
	if p.ConnectionTimeoutMs != nil {
		c.ConnectionTimeoutMs = *p.ConnectionTimeoutMs
	}
	if p.HeartbeatIntervalMs != nil {
		c.HeartbeatIntervalMs = *p.HeartbeatIntervalMs
	}
	if p.Logging != nil {
		c.Logging = *p.Logging
	}
	if p.LoggingLevel != nil {
		c.LoggingLevel = *p.LoggingLevel
	}
	return c
}
