// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ratelimit implements the three-tier hierarchical limiter:
// global, per-/24 subnet, and per-source.
package ratelimit

import (
	"sync"
	"time"

	"grimm.is/fivemguard/internal/attacklog"
	"grimm.is/fivemguard/internal/lrucache"
)

// Window is the tumbling window width for the global and subnet tiers.
const Window = time.Second

// Default limits (packets/second) used when a configured limit is 0.
const (
	DefaultGlobalLimit = 50000
	DefaultSubnetLimit = 5000
	DefaultSourceLimit = 1000
)

// Capacities bound the number of distinct subnets and sources tracked
// at once.
const (
	SubnetCapacity = 1024
	SourceCapacity = 10000
)

type window struct {
	start   time.Time
	counter uint32
}

type subnetEntry struct {
	mu            sync.Mutex
	win           window
	activeSources map[uint32]struct{}
}

// Limiter evaluates global -> subnet(/24) -> per-source tiers, in
// that order, for every packet.
type Limiter struct {
	globalMu sync.Mutex
	global   window

	subnets *lrucache.Cache[uint32, *subnetEntry]
	sources *lrucache.Cache[uint32, time.Time]

	attacks *attacklog.Log
	now     func() time.Time
}

// New builds a Limiter. attacks receives RATE_LIMIT rejections; now
// defaults to time.Now.
func New(attacks *attacklog.Log, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		subnets: lrucache.New[uint32, *subnetEntry](lrucache.DefaultConfig(SubnetCapacity), func(k uint32) uint64 { return uint64(k) }),
		sources: lrucache.New[uint32, time.Time](lrucache.DefaultConfig(SourceCapacity), func(k uint32) uint64 { return uint64(k) }),
		attacks: attacks,
		now:     now,
	}
}

// subnetKey masks srcIP to its /24.
func subnetKey(srcIP uint32) uint32 {
	return srcIP & 0xFFFFFF00
}

func effectiveLimit(configured, def uint32) uint32 {
	if configured == 0 {
		return def
	}
	return configured
}

// Allow evaluates srcIP against the three tiers using the configured
// limits (0 means "use the documented default"). It returns false the
// moment any tier rejects, logging RATE_LIMIT against srcIP.
func (l *Limiter) Allow(srcIP, globalLimit, subnetLimit, sourceLimit uint32) bool {
	now := l.now()

	if !l.allowGlobal(now, effectiveLimit(globalLimit, DefaultGlobalLimit)) {
		l.logAttack(srcIP)
		return false
	}
	if !l.allowSubnet(now, srcIP, effectiveLimit(subnetLimit, DefaultSubnetLimit)) {
		l.logAttack(srcIP)
		return false
	}
	if !l.allowSource(now, srcIP, effectiveLimit(sourceLimit, DefaultSourceLimit)) {
		l.logAttack(srcIP)
		return false
	}
	return true
}

func (l *Limiter) allowGlobal(now time.Time, limit uint32) bool {
	l.globalMu.Lock()
	defer l.globalMu.Unlock()
	if l.global.start.IsZero() || now.Sub(l.global.start) > Window {
		l.global.start = now
		l.global.counter = 1
		return true
	}
	l.global.counter++
	return l.global.counter <= limit
}

func (l *Limiter) allowSubnet(now time.Time, srcIP, limit uint32) bool {
	key := subnetKey(srcIP)
	entry, _ := l.subnets.GetOrInsert(key, func() *subnetEntry {
		return &subnetEntry{activeSources: make(map[uint32]struct{})}
	})

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.activeSources[srcIP] = struct{}{}
	if entry.win.start.IsZero() || now.Sub(entry.win.start) > Window {
		entry.win.start = now
		entry.win.counter = 1
		return true
	}
	entry.win.counter++
	return entry.win.counter <= limit
}

// allowSource implements minimum-inter-arrival spacing: a source may
// send at most once every 1e9/limit nanoseconds. An absent entry
// always allows and inserts now.
func (l *Limiter) allowSource(now time.Time, srcIP, limit uint32) bool {
	last, existed := l.sources.Get(srcIP)
	if !existed {
		l.sources.Set(srcIP, now)
		return true
	}
	minInterval := time.Duration(1e9 / uint64(limit))
	if now.Sub(last) < minInterval {
		return false
	}
	l.sources.Set(srcIP, now)
	return true
}

func (l *Limiter) logAttack(srcIP uint32) {
	if l.attacks != nil {
		l.attacks.Record(srcIP, attacklog.KindRateLimit)
	}
}
