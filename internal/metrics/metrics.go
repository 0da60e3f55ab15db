// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exports fivemguard's counters and performance
// record as Prometheus gauges/counters plus a JSON snapshot endpoint,
// following the same CounterFunc-over-aggregated-shards shape as a
// dual Prometheus+JSON HTTP exporter, trimmed to this filter's eight
// counters and one perf record.
package metrics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/fivemguard/internal/fstats"
)

// Exporter registers the pipeline's counters with a Prometheus
// registry and serves a JSON snapshot alongside /metrics.
type Exporter struct {
	shards func() []*fstats.Shard
	perfs  func() []*fstats.Perf

	dropped            prometheus.CounterFunc
	passed             prometheus.CounterFunc
	invalidProtocol    prometheus.CounterFunc
	rateLimited        prometheus.CounterFunc
	tokenViolations    prometheus.CounterFunc
	sequenceViolations prometheus.CounterFunc
	stateViolations    prometheus.CounterFunc
	checksumFailures   prometheus.CounterFunc

	totalPackets  prometheus.CounterFunc
	processingNS  prometheus.CounterFunc
	maxProcessing prometheus.Gauge
	avgPacketSize prometheus.Gauge

	registry *prometheus.Registry
}

// NewExporter builds an Exporter. shards/perfs are called on every
// scrape to aggregate the current per-worker counters.
func NewExporter(shards func() []*fstats.Shard, perfs func() []*fstats.Perf) *Exporter {
	e := &Exporter{shards: shards, perfs: perfs, registry: prometheus.NewRegistry()}

	counter := func(name, help string, get func() uint64) prometheus.CounterFunc {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "fivemguard",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(get()) })
	}

	e.dropped = counter("packets_dropped_total", "Packets dropped by the filter.", func() uint64 { return fstats.Aggregate(e.shards()).Dropped })
	e.passed = counter("packets_passed_total", "Packets forwarded by the filter.", func() uint64 { return fstats.Aggregate(e.shards()).Passed })
	e.invalidProtocol = counter("invalid_protocol_total", "Packets rejected for invalid protocol framing.", func() uint64 {
		return fstats.Aggregate(e.shards()).InvalidProtocol
	})
	e.rateLimited = counter("rate_limited_total", "Packets rejected by the hierarchical rate limiter.", func() uint64 {
		return fstats.Aggregate(e.shards()).RateLimited
	})
	e.tokenViolations = counter("token_violations_total", "Packets rejected for token abuse.", func() uint64 {
		return fstats.Aggregate(e.shards()).TokenViolations
	})
	e.sequenceViolations = counter("sequence_violations_total", "Packets rejected for sequence anomalies.", func() uint64 {
		return fstats.Aggregate(e.shards()).SequenceViolations
	})
	e.stateViolations = counter("state_violations_total", "Packets rejected for connection-state violations.", func() uint64 {
		return fstats.Aggregate(e.shards()).StateViolations
	})
	e.checksumFailures = counter("checksum_failures_total", "Packets rejected for checksum failure.", func() uint64 {
		return fstats.Aggregate(e.shards()).ChecksumFailures
	})
	e.totalPackets = counter("perf_total_packets", "Total packets processed.", func() uint64 { return fstats.AggregatePerf(e.perfs()).TotalPackets })
	e.processingNS = counter("perf_processing_ns_total", "Cumulative processing time in nanoseconds.", func() uint64 {
		return fstats.AggregatePerf(e.perfs()).ProcessingTimeNS
	})
	e.maxProcessing = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "fivemguard", Name: "perf_max_processing_ns", Help: "Peak per-packet processing time in nanoseconds."})
	e.avgPacketSize = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "fivemguard", Name: "perf_avg_packet_size", Help: "Moving-average packet size in bytes."})

	e.registry.MustRegister(
		e.dropped, e.passed, e.invalidProtocol, e.rateLimited,
		e.tokenViolations, e.sequenceViolations, e.stateViolations, e.checksumFailures,
		e.totalPackets, e.processingNS, e.maxProcessing, e.avgPacketSize,
	)
	return e
}

// refreshGauges recomputes the gauges that CounterFunc can't express
// (max is not monotonic across a restart-free aggregate, and the
// average is inherently a gauge).
func (e *Exporter) refreshGauges() {
	perf := fstats.AggregatePerf(e.perfs())
	e.maxProcessing.Set(float64(perf.MaxProcessingTimeNS))
	e.avgPacketSize.Set(float64(perf.AvgPacketSize))
}

// Handler returns the /metrics HTTP handler.
func (e *Exporter) Handler() http.Handler {
	return promHandlerFunc(e)
}

func promHandlerFunc(e *Exporter) http.HandlerFunc {
	h := promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
	return func(w http.ResponseWriter, r *http.Request) {
		e.refreshGauges()
		h.ServeHTTP(w, r)
	}
}

// Snapshot is the JSON view of the same counters, for operators who
// don't run Prometheus.
type Snapshot struct {
	Counters fstats.Shard `json:"counters"`
	Perf     fstats.Perf  `json:"perf"`
	AsOf     time.Time    `json:"as_of"`
}

// JSONHandler serves the same data as Handler in JSON form.
func (e *Exporter) JSONHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := Snapshot{
			Counters: fstats.Aggregate(e.shards()),
			Perf:     fstats.AggregatePerf(e.perfs()),
			AsOf:     time.Now(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	}
}
