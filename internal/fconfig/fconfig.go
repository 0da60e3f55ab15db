// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package fconfig implements the filter's single-slot configuration
// record: an HCL-tagged struct with @default/@example doc
// annotations, a ValidationError(s) pattern, and an atomic swap in
// place of a full hot-reload pipeline (this filter has only one
// record, not a tree of interfaces/zones/policies).
package fconfig

import (
	"fmt"
	"net"
	"os"
	"sync/atomic"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"grimm.is/fivemguard/internal/errors"
)

// Config is the configuration record read on every packet and written
// only by the control plane. The zero value is invalid; use Default or
// a Preset and then Validate.
type Config struct {
	// TargetAddress is the IPv4 destination this filter protects,
	// dotted-quad form. Empty or "0.0.0.0" accepts any destination.
	// @default: "0.0.0.0"
	// @example: "10.0.0.1"
	TargetAddress string `hcl:"target_address,optional" json:"target_address,omitempty"`

	// ServerPort is the primary game-server UDP port.
	// @default: 30120
	ServerPort uint16 `hcl:"server_port,optional" json:"server_port,omitempty"`
	// GamePort1 is the first auxiliary game UDP port.
	// @default: 6672
	GamePort1 uint16 `hcl:"game_port1,optional" json:"game_port1,omitempty"`
	// GamePort2 is the second auxiliary game UDP port.
	// @default: 6673
	GamePort2 uint16 `hcl:"game_port2,optional" json:"game_port2,omitempty"`

	// PerSourceLimit caps packets/second from a single source address.
	// @default: 1000
	PerSourceLimit uint32 `hcl:"per_source_limit,optional" json:"per_source_limit,omitempty"`
	// GlobalLimit caps packets/second across all sources.
	// @default: 50000
	GlobalLimit uint32 `hcl:"global_limit,optional" json:"global_limit,omitempty"`
	// SubnetLimit caps packets/second from a single /24 subnet.
	// @default: 5000
	SubnetLimit uint32 `hcl:"subnet_limit,optional" json:"subnet_limit,omitempty"`

	// ChecksumValidation enables the weak ENet trailer fingerprint
	// check (internal/checksum). Not cryptographic integrity.
	// @default: true
	ChecksumValidation bool `hcl:"checksum_validation,optional" json:"checksum_validation,omitempty"`

	// StrictENetValidation rejects ENet frames whose reserved flag
	// bits (1-3) are nonzero. See DESIGN.md for the reasoning behind
	// giving this field real enforcement.
	// @default: true
	StrictENetValidation bool `hcl:"strict_enet_validation,optional" json:"strict_enet_validation,omitempty"`
}

// TargetAddressU32 parses TargetAddress into the host-order uint32
// representation the fast path compares against, matching the config
// record's "0 = accept any destination" convention. An empty or
// unparsable address is treated as 0 (any).
func (c Config) TargetAddressU32() uint32 {
	ip := net.ParseIP(c.TargetAddress)
	if ip == nil {
		return 0
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return 0
	}
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
}

// Default returns the built-in fallback record, equivalent to the
// "medium" preset.
func Default() Config {
	return Presets["medium"]
}

// Presets holds the named limit vectors for the four deployment
// sizes a game server operator chooses between.
var Presets = map[string]Config{
	"small": {
		ServerPort: 30120, GamePort1: 6672, GamePort2: 6673,
		PerSourceLimit: 500, GlobalLimit: 10000, SubnetLimit: 2000,
		ChecksumValidation: true, StrictENetValidation: true,
	},
	"medium": {
		ServerPort: 30120, GamePort1: 6672, GamePort2: 6673,
		PerSourceLimit: 1000, GlobalLimit: 50000, SubnetLimit: 5000,
		ChecksumValidation: true, StrictENetValidation: true,
	},
	"large": {
		ServerPort: 30120, GamePort1: 6672, GamePort2: 6673,
		PerSourceLimit: 2000, GlobalLimit: 100000, SubnetLimit: 10000,
		ChecksumValidation: false, StrictENetValidation: false,
	},
	"dev": {
		ServerPort: 30120, GamePort1: 6672, GamePort2: 6673,
		PerSourceLimit: 10000, GlobalLimit: 1000000, SubnetLimit: 100000,
		ChecksumValidation: false, StrictENetValidation: false,
	},
}

// PresetNames lists the accepted preset argument values, in the order
// fivemguardctl's usage text presents them.
var PresetNames = []string{"small", "medium", "large", "dev"}

// Preset looks up a named preset, applying targetAddress.
func Preset(name, targetAddress string) (Config, error) {
	cfg, ok := Presets[name]
	if !ok {
		return Config{}, errors.Errorf(errors.KindValidation, "unknown preset %q, must be one of %v", name, PresetNames)
	}
	cfg.TargetAddress = targetAddress
	return cfg, nil
}

// ValidationError names one invalid field and why.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Message) }

// ValidationErrors collects ValidationError; satisfies error.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msg := e[0].Error()
	for _, extra := range e[1:] {
		msg += "; " + extra.Error()
	}
	return msg
}

// Validate checks the invariants an applied record must satisfy:
// limits must be positive, ports distinct, target address (if set)
// must parse.
func Validate(c Config) error {
	var errs ValidationErrors
	if c.ServerPort == 0 {
		errs = append(errs, ValidationError{"server_port", "must be nonzero"})
	}
	if c.PerSourceLimit == 0 {
		errs = append(errs, ValidationError{"per_source_limit", "must be greater than zero"})
	}
	if c.GlobalLimit == 0 {
		errs = append(errs, ValidationError{"global_limit", "must be greater than zero"})
	}
	if c.SubnetLimit == 0 {
		errs = append(errs, ValidationError{"subnet_limit", "must be greater than zero"})
	}
	if c.ServerPort == c.GamePort1 || c.ServerPort == c.GamePort2 || (c.GamePort1 != 0 && c.GamePort1 == c.GamePort2) {
		errs = append(errs, ValidationError{"game_port1", "ports must be distinct"})
	}
	if c.TargetAddress != "" && c.TargetAddress != "0.0.0.0" {
		if net.ParseIP(c.TargetAddress) == nil {
			errs = append(errs, ValidationError{"target_address", "not a valid IPv4 address"})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Ports returns the three UDP ports this filter inspects.
func (c Config) Ports() [3]uint16 {
	return [3]uint16{c.ServerPort, c.GamePort1, c.GamePort2}
}

// Store is the in-process configuration store: an atomically swapped
// pointer the pipeline reads on every packet.
type Store struct {
	ptr atomic.Pointer[Config]
}

// NewStore builds a Store seeded with initial.
func NewStore(initial Config) *Store {
	s := &Store{}
	s.Set(initial)
	return s
}

// Get returns the current record. Safe for concurrent use alongside
// Set from any number of packet-processing contexts.
func (s *Store) Get() Config {
	p := s.ptr.Load()
	if p == nil {
		return Default()
	}
	return *p
}

// Set atomically replaces the record. Called only by the control
// plane, never from the fast path.
func (s *Store) Set(c Config) {
	cp := c
	s.ptr.Store(&cp)
}

// LoadFile parses an HCL configuration file into a Config. Zero values
// are not auto-filled: callers that want preset defaults should start
// from Default() or Preset() and merge in the file's overrides.
func LoadFile(path string) (Config, error) {
	var c Config
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, errors.KindInternal, "failed to read config file")
	}
	if err := hclsimple.Decode(path, data, nil, &c); err != nil {
		return Config{}, errors.Wrap(err, errors.KindValidation, "failed to parse HCL config")
	}
	if err := Validate(c); err != nil {
		return Config{}, err
	}
	return c, nil
}
