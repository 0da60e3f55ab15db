// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package pipeline implements the per-packet entry point: parse
// headers, read config, rate-limit, classify by first word, run the
// matching protocol validator, drive the connection state machine,
// update stats, and return a verdict.
package pipeline

import (
	"encoding/binary"
	"sync"
	"time"

	"grimm.is/fivemguard/internal/attacklog"
	"grimm.is/fivemguard/internal/checksum"
	"grimm.is/fivemguard/internal/connstate"
	"grimm.is/fivemguard/internal/fconfig"
	"grimm.is/fivemguard/internal/fstats"
	"grimm.is/fivemguard/internal/msghash"
	"grimm.is/fivemguard/internal/ratelimit"
	"grimm.is/fivemguard/internal/sequence"
	"grimm.is/fivemguard/internal/token"
	"grimm.is/fivemguard/internal/wire"
)

// Verdict is the filter's per-packet decision.
type Verdict uint8

const (
	Forward Verdict = iota
	Drop
	Abort
)

func (v Verdict) String() string {
	switch v {
	case Forward:
		return "FORWARD"
	case Drop:
		return "DROP"
	default:
		return "ABORT"
	}
}

const (
	// maxServerPayload bounds L for the primary server port.
	maxServerPayload = 2400
	// maxAuxPayload bounds L for the two auxiliary game ports.
	maxAuxPayload = 8192
	// enetPeerIDMask isolates the low 12 bits of the ENet header word.
	enetPeerIDMask = 0x0FFF
	// enetReservedFlagsMask isolates flag bits 1-3, which must be zero
	// under strict ENet validation.
	enetReservedFlagsMask = 0x0E
)

// Shared holds the tables every worker's Pipeline reads and mutates
// concurrently: the configuration store and the five stateful
// trackers. One Shared is constructed at startup; each capture worker
// (goroutine) gets its own Pipeline via NewWorker so per-worker stats
// never contend.
type Shared struct {
	Config    *fconfig.Store
	Limiter   *ratelimit.Limiter
	Tokens    *token.Tracker
	Sequences *sequence.Tracker
	States    *connstate.Machine
	Attacks   *attacklog.Log

	mu      sync.Mutex
	workers []*Pipeline
}

// NewShared builds a Shared wired to cfg, with now threaded through to
// every tracker so tests can control the clock. now defaults to
// time.Now.
func NewShared(cfg *fconfig.Store, now func() time.Time) *Shared {
	if now == nil {
		now = time.Now
	}
	attacks := attacklog.New(now)
	return &Shared{
		Config:    cfg,
		Limiter:   ratelimit.New(attacks, now),
		Tokens:    token.New(attacks, now),
		Sequences: sequence.New(attacks, now),
		States:    connstate.New(attacks, now),
		Attacks:   attacks,
	}
}

// NewWorker returns a Pipeline with its own stats/perf shards, sharing
// s's tables. now defaults to time.Now.
func (s *Shared) NewWorker(now func() time.Time) *Pipeline {
	if now == nil {
		now = time.Now
	}
	p := &Pipeline{shared: s, stats: &fstats.Shard{}, perf: &fstats.Perf{}, now: now}
	s.mu.Lock()
	s.workers = append(s.workers, p)
	s.mu.Unlock()
	return p
}

// Shards returns every registered worker's counter shard, satisfying
// fctlapi.ShardSource so the control-plane API can aggregate live
// stats without each worker's hot path touching a lock.
func (s *Shared) Shards() []*fstats.Shard {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*fstats.Shard, len(s.workers))
	for i, w := range s.workers {
		out[i] = w.stats
	}
	return out
}

// Perfs returns every registered worker's performance record.
func (s *Shared) Perfs() []*fstats.Perf {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*fstats.Perf, len(s.workers))
	for i, w := range s.workers {
		out[i] = w.perf
	}
	return out
}

// Pipeline is one worker's packet processor: a Process call per
// datagram, re-entrant with respect to other Pipelines sharing the
// same Shared but not safe to call concurrently on the same Pipeline
// value (matching one goroutine per capture socket / NFQUEUE worker).
type Pipeline struct {
	shared *Shared
	stats  *fstats.Shard
	perf   *fstats.Perf
	now    func() time.Time
	hdr    wire.Headers
}

// Stats returns this worker's counter shard.
func (p *Pipeline) Stats() *fstats.Shard { return p.stats }

// Perf returns this worker's performance record.
func (p *Pipeline) Perf() *fstats.Perf { return p.perf }

// Process runs the ten-step decision pipeline over one Ethernet-framed
// datagram and returns its verdict.
func (p *Pipeline) Process(data []byte) Verdict {
	start := p.now()
	verdict := p.process(data)
	if verdict == Drop {
		p.stats.Dropped++
	}
	p.perf.RecordProcessing(p.now().Sub(start), uint32(len(data)))
	return verdict
}

func (p *Pipeline) process(data []byte) Verdict {
	// Step 1: absolute Ethernet+IPv4+UDP size floor.
	if len(data) < wire.MinFrameLen {
		return Abort
	}

	// Step 2: header parse. Any violation means this is not our
	// traffic; pass it through untouched.
	if err := wire.Parse(data, &p.hdr); err != nil {
		if wire.IsTooShort(err) {
			return Abort
		}
		return Forward
	}

	cfg := p.shared.Config.Get()

	// Step 3: destination filter.
	if target := cfg.TargetAddressU32(); target != 0 && wire.DestIPv4(&p.hdr) != target {
		return Forward
	}
	destPort := uint16(p.hdr.UDP.DstPort)
	ports := cfg.Ports()
	if destPort != ports[0] && destPort != ports[1] && destPort != ports[2] {
		return Forward
	}

	srcIP := wire.SrcIPv4(&p.hdr)

	// Step 4: hierarchical rate limiting.
	if !p.shared.Limiter.Allow(srcIP, cfg.GlobalLimit, cfg.SubnetLimit, cfg.PerSourceLimit) {
		p.stats.RateLimited++
		return Drop
	}

	payload := p.hdr.Payload
	l := len(payload)

	// Step 5: payload size window.
	if l < 4 {
		p.stats.InvalidProtocol++
		p.logAttack(srcIP, attacklog.KindSizeViolation)
		return Drop
	}
	limit := maxAuxPayload
	if destPort == ports[0] {
		limit = maxServerPayload
	}
	if l > limit {
		p.stats.InvalidProtocol++
		p.logAttack(srcIP, attacklog.KindSizeViolation)
		return Drop
	}

	// Step 6: first-word classification.
	first := binary.LittleEndian.Uint32(payload[0:4])
	if first == connstate.OOBMarker {
		return p.processOOB(payload, srcIP)
	}
	return p.processENet(payload, destPort, ports[0], cfg, srcIP)
}

// processOOB handles an out-of-band packet: optional token validation
// followed by the bootstrap state transition. Success short-circuits
// straight to FORWARD, skipping the ENet-only checksum/message-hash
// steps entirely.
func (p *Pipeline) processOOB(payload []byte, srcIP uint32) Verdict {
	l := len(payload)
	if l < 8 {
		p.stats.InvalidProtocol++
		p.logAttack(srcIP, attacklog.KindInvalidProtocol)
		return Drop
	}

	if l >= 12 {
		tokenHash := binary.LittleEndian.Uint32(payload[8:12])
		if !p.shared.Tokens.Validate(tokenHash, srcIP) {
			p.stats.TokenViolations++
			return Drop
		}
	}

	if !p.shared.States.TransitionOOB(srcIP) {
		p.stats.StateViolations++
		return Drop
	}

	p.stats.Passed++
	return Forward
}

// processENet handles an ENet-framed (non-OOB) packet: peer-id/flags
// decode, optional sequence validation, optional checksum validation,
// and message-hash gating + the steady-state transition.
func (p *Pipeline) processENet(payload []byte, destPort, serverPort uint16, cfg fconfig.Config, srcIP uint32) Verdict {
	l := len(payload)
	enetWord := binary.LittleEndian.Uint16(payload[0:2])
	peerID := enetWord & enetPeerIDMask
	flags := uint8(enetWord >> 12)

	// Unreachable by construction (enetPeerIDMask bounds peerID to
	// 0-4095) but kept as an explicit assertion that the masking holds.
	if peerID > 4095 {
		p.logAttack(srcIP, attacklog.KindInvalidProtocol)
		return Drop
	}

	if cfg.StrictENetValidation && flags&enetReservedFlagsMask != 0 {
		p.stats.InvalidProtocol++
		p.logAttack(srcIP, attacklog.KindInvalidProtocol)
		return Drop
	}

	reliable := flags&0x1 != 0
	if l >= 4 && reliable {
		seq := binary.LittleEndian.Uint16(payload[2:4])
		if !p.shared.Sequences.Validate(srcIP, peerID, seq) {
			p.stats.SequenceViolations++
			return Drop
		}
	}

	if cfg.ChecksumValidation && l >= 12 {
		if !checksum.Validate(payload[:l]) {
			p.stats.ChecksumFailures++
			p.logAttack(srcIP, attacklog.KindChecksumFail)
			return Drop
		}
	}

	if l >= 8 {
		hash := binary.LittleEndian.Uint32(payload[4:8])
		if destPort == serverPort && !msghash.IsValid(hash) {
			p.stats.InvalidProtocol++
			p.logAttack(srcIP, attacklog.KindInvalidProtocol)
			return Drop
		}
		if !p.shared.States.TransitionMessage(srcIP, hash) {
			p.stats.StateViolations++
			return Drop
		}
	}

	p.stats.Passed++
	return Forward
}

func (p *Pipeline) logAttack(srcIP uint32, kind attacklog.AttackKind) {
	if p.shared.Attacks != nil {
		p.shared.Attacks.Record(srcIP, kind)
	}
}
