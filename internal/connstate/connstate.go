// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package connstate implements the per-source connection state
// machine: INITIAL -> OOB_SENT -> CONNECTING -> CONNECTED, with a
// terminal SUSPICIOUS sink reached on the fourth transition fault.
package connstate

import (
	"sync"
	"time"

	"grimm.is/fivemguard/internal/attacklog"
	"grimm.is/fivemguard/internal/lrucache"
	"grimm.is/fivemguard/internal/msghash"
)

// State enumerates the connection lifecycle.
type State uint8

const (
	Initial State = iota
	OOBSent
	Connecting
	Connected
	Suspicious
)

func (s State) String() string {
	switch s {
	case OOBSent:
		return "oob_sent"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Suspicious:
		return "suspicious"
	default:
		return "initial"
	}
}

// MaxViolations is how many transition faults a source may accrue
// before becoming Suspicious.
const MaxViolations = 3

// Capacity bounds the number of distinct source addresses tracked at
// once.
const Capacity = 2048

// OOBMarker is the 32-bit out-of-band marker at payload offset 0.
const OOBMarker uint32 = 0xFFFFFFFF

type context struct {
	mu         sync.Mutex
	state      State
	since      time.Time
	packets    uint32
	violations uint32
}

// Machine tracks connection state per source address.
type Machine struct {
	cache   *lrucache.Cache[uint32, *context]
	attacks *attacklog.Log
	now     func() time.Time
}

// New builds a Machine.
func New(attacks *attacklog.Log, now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{
		cache:   lrucache.New[uint32, *context](lrucache.DefaultConfig(Capacity), func(k uint32) uint64 { return uint64(k) }),
		attacks: attacks,
		now:     now,
	}
}

// State returns the current state for srcIP, or Initial if unseen.
func (m *Machine) State(srcIP uint32) State {
	ctx, existed := m.cache.Peek(srcIP)
	if !existed {
		return Initial
	}
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.state
}

// TransitionOOB advances a source on receipt of an out-of-band
// packet: absent, Initial or OOBSent -> OOBSent. Connected absorbs a later OOB
// probe without accruing a violation, the same as TransitionMessage.
// Any other current state counts as a fault.
func (m *Machine) TransitionOOB(srcIP uint32) bool {
	return m.transition(srcIP, func(s State) (State, bool) {
		switch s {
		case Initial, OOBSent:
			return OOBSent, true
		case Connected:
			return Connected, true
		default:
			return s, false
		}
	})
}

// TransitionMessage advances a source on receipt of an in-band message
// hash, per the OOB_SENT->CONNECTING->CONNECTED table. CONNECTED
// absorbs any valid hash without accruing violations.
func (m *Machine) TransitionMessage(srcIP uint32, hash uint32) bool {
	return m.transition(srcIP, func(s State) (State, bool) {
		switch s {
		case OOBSent:
			if hash == msghash.Confirm {
				return Connecting, true
			}
			return s, false
		case Connecting:
			if hash == msghash.IHost || hash == msghash.HeHost {
				return Connected, true
			}
			return s, false
		case Connected:
			return Connected, true
		default:
			return s, false
		}
	})
}

// transition applies step to the source's context under lock, handling
// Suspicious absorption, violation accounting and promotion to
// Suspicious after MaxViolations faults. It returns whether the packet
// should be accepted.
func (m *Machine) transition(srcIP uint32, step func(State) (State, bool)) bool {
	ctx, _ := m.cache.GetOrInsert(srcIP, func() *context {
		return &context{state: Initial, since: m.now()}
	})

	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	if ctx.state == Suspicious {
		m.logAttack(srcIP)
		return false
	}

	ctx.packets++
	next, ok := step(ctx.state)
	if !ok {
		ctx.violations++
		if ctx.violations > MaxViolations {
			ctx.state = Suspicious
			ctx.since = m.now()
			m.logAttack(srcIP)
			return false
		}
		m.logAttack(srcIP)
		return false
	}

	if next != ctx.state {
		ctx.state = next
		ctx.since = m.now()
	}
	return true
}

func (m *Machine) logAttack(srcIP uint32) {
	if m.attacks != nil {
		m.attacks.Record(srcIP, attacklog.KindStateViolation)
	}
}
