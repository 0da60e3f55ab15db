// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package sequence implements per-peer sequence-number tracking for
// reliable ENet traffic.
package sequence

import (
	"time"

	"grimm.is/fivemguard/internal/attacklog"
	"grimm.is/fivemguard/internal/lrucache"
)

// Window is the width of the accepted forward-advance range.
const Window = 100

// AnomalyThreshold is how many anomalous gaps a peer may accrue before
// its further anomalous gaps are rejected. In-window advances and small
// gaps are still accepted past the threshold.
const AnomalyThreshold = 10

// Capacity bounds the number of distinct (source IP, peer id) entries
// tracked at once.
const Capacity = 4096

type state struct {
	lastSequence uint16
	lastUpdate   time.Time
	outOfOrder   uint32
}

// key packs (srcIP, peerID) into a single uint64 cache key.
func key(srcIP uint32, peerID uint16) uint64 {
	return uint64(srcIP)<<32 | uint64(peerID)
}

// Tracker validates reliable-packet sequence numbers per (source IP,
// ENet peer id) pair.
type Tracker struct {
	cache   *lrucache.Cache[uint64, *state]
	attacks *attacklog.Log
	now     func() time.Time
}

// New builds a Tracker.
func New(attacks *attacklog.Log, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		cache:   lrucache.New[uint64, *state](lrucache.DefaultConfig(Capacity), func(k uint64) uint64 { return k }),
		attacks: attacks,
		now:     now,
	}
}

// Validate reports whether sequence is acceptable for the given peer.
// A peer accrues AnomalyThreshold anomalous gaps before being blocked;
// once blocked it is not automatically rehabilitated, since the
// anomaly counter is never reset.
func (t *Tracker) Validate(srcIP uint32, peerID, sequence uint16) bool {
	now := t.now()
	k := key(srcIP, peerID)

	s, existed := t.cache.Get(k)
	if !existed {
		t.cache.Set(k, &state{lastSequence: sequence, lastUpdate: now})
		return true
	}

	diff := int16(sequence - s.lastSequence)

	if diff > 0 && diff < Window {
		s.lastSequence = sequence
		s.lastUpdate = now
		return true
	}

	if diff < -Window || diff > 1000 {
		s.outOfOrder++
		if s.outOfOrder > AnomalyThreshold {
			t.logAttack(srcIP)
			return false
		}
	}

	return true
}

func (t *Tracker) logAttack(srcIP uint32) {
	if t.attacks != nil {
		t.attacks.Record(srcIP, attacklog.KindSequenceAnomaly)
	}
}
