// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package capture

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/mdlayher/packet"
	"golang.org/x/sys/unix"

	"grimm.is/fivemguard/internal/pipeline"
)

// htons converts a 16-bit value from host to network byte order,
// needed because AF_PACKET's protocol argument is expected in network
// order regardless of host endianness.
func htons(v uint16) uint16 {
	return (v << 8) | (v >> 8)
}

// RawWorker observes every frame crossing ifi via an AF_PACKET socket
// and runs it through a Pipeline. Unlike NFQueueWorker this mode
// cannot itself drop a packet: the kernel has already forwarded it by
// the time the socket delivers a copy. A DROP/ABORT verdict here is
// recorded (stats, attack log) as an advisory finding, matching a
// promiscuous IDS tap rather than an inline filter.
type RawWorker struct {
	conn    *packet.Conn
	pl      *pipeline.Pipeline
	buf     []byte
	running atomic.Bool
	mu      sync.Mutex
}

// NewRawWorker opens a raw AF_PACKET listener on ifi bound to all
// EtherTypes, grounded on github.com/mdlayher/packet's Listen API.
func NewRawWorker(ifi *net.Interface, pl *pipeline.Pipeline) (*RawWorker, error) {
	conn, err := packet.Listen(ifi, packet.Raw, int(htons(unix.ETH_P_ALL)), nil)
	if err != nil {
		return nil, err
	}
	return &RawWorker{conn: conn, pl: pl, buf: make([]byte, 65536)}, nil
}

// Run reads frames until Stop closes the underlying socket.
func (w *RawWorker) Run() error {
	w.running.Store(true)
	for w.running.Load() {
		n, _, err := w.conn.ReadFrom(w.buf)
		if err != nil {
			if !w.running.Load() {
				return nil
			}
			return err
		}
		w.pl.Process(w.buf[:n])
	}
	return nil
}

// Stop closes the socket, unblocking any in-flight ReadFrom.
func (w *RawWorker) Stop() {
	w.running.Store(false)
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.Close()
}

// Pipeline returns the worker's packet processor.
func (w *RawWorker) Pipeline() *pipeline.Pipeline { return w.pl }
