// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package token implements connection-token anti-replay tracking.
package token

import (
	"time"

	"grimm.is/fivemguard/internal/attacklog"
	"grimm.is/fivemguard/internal/lrucache"
)

// MaxUsageCount caps how many times a token hash may be reused.
const MaxUsageCount = 3

// MaxAge is the token validity window.
const MaxAge = 2 * time.Hour

// Capacity bounds the number of distinct token hashes tracked at once.
const Capacity = 5000

type state struct {
	sourceIP   uint32
	firstSeen  time.Time
	usageCount uint32
}

// Tracker validates connection-token hashes against the tokens it has
// already seen, rejecting reuse from a different source, reuse beyond
// MaxUsageCount, and tokens older than MaxAge.
type Tracker struct {
	cache   *lrucache.Cache[uint32, *state]
	attacks *attacklog.Log
	now     func() time.Time
}

// New builds a Tracker. attacks receives rejections for logging; now
// defaults to time.Now.
func New(attacks *attacklog.Log, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		cache:   lrucache.New[uint32, *state](lrucache.DefaultConfig(Capacity), func(k uint32) uint64 { return uint64(k) }),
		attacks: attacks,
		now:     now,
	}
}

// Validate checks tokenHash as presented by srcIP, returning true if
// the packet should be allowed to proceed.
func (t *Tracker) Validate(tokenHash, srcIP uint32) bool {
	now := t.now()
	s, existed := t.cache.Get(tokenHash)
	if !existed {
		t.cache.Set(tokenHash, &state{sourceIP: srcIP, firstSeen: now, usageCount: 1})
		return true
	}

	if s.sourceIP != srcIP {
		t.logAttack(srcIP, attacklog.KindTokenReuse)
		return false
	}
	if s.usageCount > MaxUsageCount {
		t.logAttack(srcIP, attacklog.KindTokenReuse)
		return false
	}
	if now.Sub(s.firstSeen) > MaxAge {
		t.logAttack(srcIP, attacklog.KindReplay)
		return false
	}

	s.usageCount++
	return true
}

func (t *Tracker) logAttack(srcIP uint32, kind attacklog.AttackKind) {
	if t.attacks != nil {
		t.attacks.Record(srcIP, kind)
	}
}
