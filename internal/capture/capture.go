// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package capture delivers raw Ethernet frames to a pipeline.Pipeline
// and carries its verdict back to the kernel. Two live delivery modes
// are supported (raw AF_PACKET sockets and NFQUEUE verdicts, both
// Linux-only) plus a PCAP replay source used by fivemguard-sim and by
// this package's own tests on any platform.
package capture

import (
	"fmt"
	"time"

	"grimm.is/fivemguard/internal/pipeline"
)

// Worker runs one capture loop against one pipeline.Pipeline, matching
// one goroutine per capture socket / NFQUEUE handle so worker stats
// shards never contend.
type Worker interface {
	// Run blocks delivering frames to its Pipeline until Stop is called
	// or the underlying source is exhausted/closed.
	Run() error
	// Stop asks Run to return; it does not block for shutdown.
	Stop()
	// Pipeline returns the worker's packet processor, for stats
	// reporting.
	Pipeline() *pipeline.Pipeline
}

// Stats summarizes one worker's delivery counters, independent of the
// pipeline's own protocol counters.
type Stats struct {
	Delivered uint64
	Errors    uint64
	StartedAt time.Time
}

func unsupported(mode string) error {
	return fmt.Errorf("capture: %s is only supported on Linux", mode)
}
