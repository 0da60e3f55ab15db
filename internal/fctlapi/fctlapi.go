// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package fctlapi is the control-plane HTTP endpoint fivemguardctl
// writes configuration records to. It carries the same Slowloris/
// body-size hardening defaults a general-purpose control API would,
// applied to a much smaller route set: this filter has one record and
// two read-only snapshots, not a tree of zones/policies/devices.
package fctlapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"grimm.is/fivemguard/internal/attacklog"
	"grimm.is/fivemguard/internal/fconfig"
	"grimm.is/fivemguard/internal/fstats"
)

// ServerConfig holds HTTP server hardening settings.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodyBytes      int64
}

// DefaultServerConfig returns the hardened defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
		MaxBodyBytes:      10 << 20,
	}
}

// ShardSource supplies the worker-shard snapshots the stats endpoint
// aggregates; *pipeline.Shared satisfies it directly through its
// Shards and Perfs methods.
type ShardSource interface {
	Shards() []*fstats.Shard
	Perfs() []*fstats.Perf
}

// Server exposes the configuration store and read-only snapshots over
// HTTP. The pipeline reads the Store on every packet, so writes
// through this server must go through the same atomic Store.
type Server struct {
	store   *fconfig.Store
	attacks *attacklog.Log
	shards  ShardSource
	router  *mux.Router
}

// New builds a Server wired to store, attacks and shards.
func New(store *fconfig.Store, attacks *attacklog.Log, shards ShardSource) *Server {
	s := &Server{store: store, attacks: attacks, shards: shards, router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	s.router.HandleFunc("/config", s.handlePostConfig).Methods(http.MethodPost)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	s.router.HandleFunc("/attacks", s.handleAttacks).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// NewHTTPServer wraps s in an *http.Server configured with cfg's
// hardening timeouts, matching configure_fivem_xdp()'s BPF-map-path
// write mapped onto an HTTP POST here.
func NewHTTPServer(addr string, s *Server, cfg ServerConfig) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           http.MaxBytesHandler(s, cfg.MaxBodyBytes),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Get())
}

func (s *Server) handlePostConfig(w http.ResponseWriter, r *http.Request) {
	var cfg fconfig.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := fconfig.Validate(cfg); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	s.store.Set(cfg)
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"counters": fstats.Aggregate(s.shards.Shards()),
		"perf":     fstats.AggregatePerf(s.shards.Perfs()),
	})
}

func (s *Server) handleAttacks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.attacks.Snapshot())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
