// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging provides a leveled structured logger with an
// optional syslog forwarder. Built on log/slog, the stdlib
// structured-logging facility.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"
)

// SyslogConfig configures optional syslog forwarding.
type SyslogConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Protocol string
	Tag      string
	Facility int
}

// DefaultSyslogConfig returns the disabled-by-default configuration
// (port 514/udp/facility 1).
func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{
		Enabled:  false,
		Port:     514,
		Protocol: "udp",
		Tag:      "fivemguard",
		Facility: 1,
	}
}

// NewSyslogWriter dials cfg.Host:cfg.Port over cfg.Protocol, applying
// DefaultSyslogConfig's port, protocol and tag when those fields are
// zero. Facility is used as given, so 0 stays 0.
func NewSyslogWriter(cfg SyslogConfig) (io.WriteCloser, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("logging: syslog host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 514
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "udp"
	}
	if cfg.Tag == "" {
		cfg.Tag = "fivemguard"
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := net.DialTimeout(cfg.Protocol, addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("logging: dial syslog %s: %w", addr, err)
	}
	return &taggedWriter{conn: conn, tag: cfg.Tag, facility: cfg.Facility}, nil
}

// taggedWriter prefixes every write with an RFC3164-ish priority+tag.
type taggedWriter struct {
	conn     net.Conn
	tag      string
	facility int
}

func (w *taggedWriter) Write(p []byte) (int, error) {
	priority := w.facility*8 + 6 // informational severity
	msg := fmt.Sprintf("<%d>%s: %s", priority, w.tag, p)
	if _, err := w.conn.Write([]byte(msg)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *taggedWriter) Close() error { return w.conn.Close() }

// New builds a leveled slog.Logger writing JSON lines to w (os.Stdout
// if nil), at the given minimum level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewWithSyslog builds a logger that writes JSON to w and also
// forwards to a syslog destination when cfg.Enabled.
func NewWithSyslog(w io.Writer, level slog.Level, cfg SyslogConfig) (*slog.Logger, error) {
	if !cfg.Enabled {
		return New(w, level), nil
	}
	sw, err := NewSyslogWriter(cfg)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewJSONHandler(io.MultiWriter(w, sw), &slog.HandlerOptions{Level: level})), nil
}
