// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package fstats implements the packet pipeline's counters. Each
// worker owns one Shard and updates it without synchronization: a
// worker never contends with another worker's cache line, and a
// reader reconciling Shards across workers may observe a value
// mid-update. No invariant in this codebase depends on the aggregate
// being exact at every instant; it only has to converge.
package fstats

import "time"

// Shard holds one worker's counters.
type Shard struct {
	Dropped            uint64 `json:"dropped"`
	Passed             uint64 `json:"passed"`
	InvalidProtocol    uint64 `json:"invalid_protocol"`
	RateLimited        uint64 `json:"rate_limited"`
	TokenViolations    uint64 `json:"token_violations"`
	SequenceViolations uint64 `json:"sequence_violations"`
	StateViolations    uint64 `json:"state_violations"`
	ChecksumFailures   uint64 `json:"checksum_failures"`
}

// Perf holds one worker's performance counters.
type Perf struct {
	TotalPackets        uint64 `json:"total_packets"`
	ProcessingTimeNS    uint64 `json:"processing_time_ns"`
	MaxProcessingTimeNS uint64 `json:"max_processing_time_ns"`
	AvgPacketSize       uint64 `json:"avg_packet_size"`
}

// RecordProcessing folds one packet's processing time and size into
// Perf, matching update_perf_metrics's exponential moving average
// (weight 7/8 on the prior average).
func (p *Perf) RecordProcessing(elapsed time.Duration, packetSize uint32) {
	ns := uint64(elapsed.Nanoseconds())
	p.TotalPackets++
	p.ProcessingTimeNS += ns
	if ns > p.MaxProcessingTimeNS {
		p.MaxProcessingTimeNS = ns
	}
	p.AvgPacketSize = (p.AvgPacketSize*7 + uint64(packetSize)) / 8
}

// Aggregate sums a set of per-worker Shards into one snapshot. Callers
// own the consistency tradeoff: summing while workers still write
// means the total may under- or over-count by the in-flight deltas,
// never more.
func Aggregate(shards []*Shard) Shard {
	var total Shard
	for _, s := range shards {
		total.Dropped += s.Dropped
		total.Passed += s.Passed
		total.InvalidProtocol += s.InvalidProtocol
		total.RateLimited += s.RateLimited
		total.TokenViolations += s.TokenViolations
		total.SequenceViolations += s.SequenceViolations
		total.StateViolations += s.StateViolations
		total.ChecksumFailures += s.ChecksumFailures
	}
	return total
}

// AggregatePerf combines per-worker Perf snapshots. AvgPacketSize is
// itself already an EMA per worker; the aggregate average-of-averages
// is an approximation, same as reconciling per-CPU BPF arrays would
// produce.
func AggregatePerf(perfs []*Perf) Perf {
	var total Perf
	var avgSum uint64
	n := uint64(0)
	for _, p := range perfs {
		total.TotalPackets += p.TotalPackets
		total.ProcessingTimeNS += p.ProcessingTimeNS
		if p.MaxProcessingTimeNS > total.MaxProcessingTimeNS {
			total.MaxProcessingTimeNS = p.MaxProcessingTimeNS
		}
		avgSum += p.AvgPacketSize
		n++
	}
	if n > 0 {
		total.AvgPacketSize = avgSum / n
	}
	return total
}
