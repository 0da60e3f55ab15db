// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package attacklog implements the fixed-capacity attack log: a
// 1000-bucket table keyed by a derived id, overwritten on collision
// rather than chained.
package attacklog

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// AttackKind mirrors enum attack_type.
type AttackKind uint16

const (
	KindNone AttackKind = iota
	KindRateLimit
	KindInvalidProtocol
	KindReplay
	KindStateViolation
	KindChecksumFail
	KindSizeViolation
	KindSequenceAnomaly
	KindTokenReuse
)

func (k AttackKind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindInvalidProtocol:
		return "invalid_protocol"
	case KindReplay:
		return "replay"
	case KindStateViolation:
		return "state_violation"
	case KindChecksumFail:
		return "checksum_fail"
	case KindSizeViolation:
		return "size_violation"
	case KindSequenceAnomaly:
		return "sequence_anomaly"
	case KindTokenReuse:
		return "token_reuse"
	default:
		return "none"
	}
}

// BucketCount is the number of id slots in the table.
const BucketCount = 1000

// Entry records one logged attack. CorrelationID is a fresh UUID
// generated on every Record, so two snapshots show whether a bucket
// was rewritten between them. A colliding write still replaces the
// earlier entry; the earlier entry is not kept.
type Entry struct {
	CorrelationID string     `yaml:"correlation_id"`
	Count         uint64     `yaml:"count"`
	LastSeen      time.Time  `yaml:"last_seen"`
	SourceIP      uint32     `yaml:"source_ip"`
	Kind          AttackKind `yaml:"attack_kind"`
}

// Log is the bounded, overwrite-on-collision attack table.
type Log struct {
	mu      sync.RWMutex
	entries [BucketCount]Entry
	now     func() time.Time
}

// New builds a Log. now defaults to time.Now; tests may override it.
func New(now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	return &Log{now: now}
}

// bucketID derives a bucket from the source address XORed with the
// high 32 bits of a nanosecond timestamp, modulo BucketCount.
// Collisions are expected and resolved by overwrite.
func bucketID(srcIP uint32, nowNanos int64) uint32 {
	high := uint32(uint64(nowNanos) >> 32)
	return (srcIP ^ high) % BucketCount
}

// Record logs one attack, overwriting whatever entry currently
// occupies the derived bucket.
func (l *Log) Record(srcIP uint32, kind AttackKind) Entry {
	now := l.now()
	id := bucketID(srcIP, now.UnixNano())
	entry := Entry{
		CorrelationID: uuid.NewString(),
		Count:         1,
		LastSeen:      now,
		SourceIP:      srcIP,
		Kind:          kind,
	}
	l.mu.Lock()
	l.entries[id] = entry
	l.mu.Unlock()
	return entry
}

// Snapshot returns a copy of every non-empty bucket, in bucket order.
func (l *Log) Snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, 0, BucketCount)
	for _, e := range l.entries {
		if e.Count > 0 {
			out = append(out, e)
		}
	}
	return out
}

// ExportYAML renders the current snapshot as YAML. The control-plane
// HTTP API does not call it; its /attacks route serves JSON.
func (l *Log) ExportYAML() ([]byte, error) {
	return yaml.Marshal(l.Snapshot())
}
