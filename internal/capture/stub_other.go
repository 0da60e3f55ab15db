// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package capture

import (
	"net"

	"grimm.is/fivemguard/internal/pipeline"
)

// RawWorker is a stub on non-Linux systems; AF_PACKET sockets are a
// Linux-specific facility.
type RawWorker struct{ pl *pipeline.Pipeline }

// NewRawWorker always fails on non-Linux systems.
func NewRawWorker(ifi *net.Interface, pl *pipeline.Pipeline) (*RawWorker, error) {
	return nil, unsupported("raw AF_PACKET capture")
}

func (w *RawWorker) Run() error                   { return unsupported("raw AF_PACKET capture") }
func (w *RawWorker) Stop()                        {}
func (w *RawWorker) Pipeline() *pipeline.Pipeline { return w.pl }

// NFQueueWorker is a stub on non-Linux systems; NFQUEUE is a Linux
// netfilter facility.
type NFQueueWorker struct{ pl *pipeline.Pipeline }

// NewNFQueueWorker always fails on non-Linux systems.
func NewNFQueueWorker(queueNum uint16, pl *pipeline.Pipeline) (*NFQueueWorker, error) {
	return nil, unsupported("NFQUEUE")
}

func (w *NFQueueWorker) Run() error                   { return unsupported("NFQUEUE") }
func (w *NFQueueWorker) Stop()                        {}
func (w *NFQueueWorker) Pipeline() *pipeline.Pipeline { return w.pl }
