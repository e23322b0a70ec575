// Package config loads the optional TOML overlay file that both the
// rudp-send and rudp-recv commands accept via --config, letting an
// operator pin the listen address and loss-injection parameters without
// repeating flags on every invocation. Flags passed on the command line
// always take precedence over the file.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// File is the decoded shape of a config TOML file. Every field is a
// pointer so the zero value ("absent from file") is distinguishable
// from an explicit zero, letting callers apply flag-overrides-file
// precedence field by field.
type File struct {
	ListenAddr *string  `toml:"listen_addr"`
	LossRate   *float64 `toml:"loss_rate"`
	LossSeed   *int64   `toml:"loss_seed"`
	AuditDB    *string  `toml:"audit_db"`
	LogLevel   *string  `toml:"log_level"`
}

// Load decodes path. A missing path is the caller's concern, not this
// package's: Load only wraps decode errors.
func Load(path string) (*File, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("config: decode %q: %w", path, err)
	}
	return &f, nil
}

// StringOr returns *p if p is non-nil, else fallback.
func StringOr(p *string, fallback string) string {
	if p != nil {
		return *p
	}
	return fallback
}

// Float64Or returns *p if p is non-nil, else fallback.
func Float64Or(p *float64, fallback float64) float64 {
	if p != nil {
		return *p
	}
	return fallback
}

// Int64Or returns *p if p is non-nil, else fallback.
func Int64Or(p *int64, fallback int64) int64 {
	if p != nil {
		return *p
	}
	return fallback
}
