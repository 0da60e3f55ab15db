// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package capture

import (
	"fmt"
	"sync/atomic"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/pcap"

	"grimm.is/fivemguard/internal/pipeline"
)

// ReplayResult records one replayed frame's outcome for a test or
// fivemguard-sim's summary report.
type ReplayResult struct {
	Verdict pipeline.Verdict
	Length  int
}

// Replayer drives a pipeline.Pipeline from a PCAP file offline, using
// gopacket's OpenOffline+NewPacketSource idiom. Unlike a live
// interface there is no clock to rewind: frames are fed through in
// capture order as fast as the pipeline can process them.
type Replayer struct {
	pl      *pipeline.Pipeline
	running atomic.Bool
}

// NewReplayer builds a Replayer driving pl.
func NewReplayer(pl *pipeline.Pipeline) *Replayer {
	return &Replayer{pl: pl}
}

// Replay reads every packet in the PCAP file at path through the
// pipeline in order, returning one ReplayResult per frame.
func (r *Replayer) Replay(path string) ([]ReplayResult, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("capture: failed to open pcap: %w", err)
	}
	defer handle.Close()

	r.running.Store(true)
	source := gopacket.NewPacketSource(handle, handle.LinkType())
	var results []ReplayResult
	for packet := range source.Packets() {
		if !r.running.Load() {
			break
		}
		data := packet.Data()
		results = append(results, ReplayResult{
			Verdict: r.pl.Process(data),
			Length:  len(data),
		})
	}
	return results, nil
}

// Stop asks an in-flight Replay to return after its current packet.
func (r *Replayer) Stop() { r.running.Store(false) }

// Summarize tallies verdicts across a replay run, for
// fivemguard-sim's console report.
func Summarize(results []ReplayResult) (forward, drop, abort int) {
	for _, r := range results {
		switch r.Verdict {
		case pipeline.Forward:
			forward++
		case pipeline.Drop:
			drop++
		case pipeline.Abort:
			abort++
		}
	}
	return
}
