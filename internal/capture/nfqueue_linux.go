// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package capture

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/florianl/go-nfqueue/v2"

	"grimm.is/fivemguard/internal/pipeline"
)

// NFQueueWorker binds one Linux NFQUEUE number and issues a kernel
// verdict for every packet the pipeline classifies, built on
// github.com/florianl/go-nfqueue/v2.
type NFQueueWorker struct {
	nf      *nfqueue.Nfqueue
	pl      *pipeline.Pipeline
	cancel  context.CancelFunc
	running atomic.Bool
}

// NewNFQueueWorker opens queueNum with the packet-copy mode NFQUEUE
// needs to hand payload bytes to the pipeline.
func NewNFQueueWorker(queueNum uint16, pl *pipeline.Pipeline) (*NFQueueWorker, error) {
	cfg := nfqueue.Config{
		NfQueue:      queueNum,
		MaxPacketLen: 0xFFFF,
		MaxQueueLen:  1024,
		Copymode:     nfqueue.NfQnlCopyPacket,
		ReadTimeout:  10 * time.Millisecond,
		WriteTimeout: 15 * time.Millisecond,
	}
	nf, err := nfqueue.Open(&cfg)
	if err != nil {
		return nil, err
	}
	return &NFQueueWorker{nf: nf, pl: pl}, nil
}

// Run registers the verdict hook and blocks until Stop cancels it.
func (w *NFQueueWorker) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.running.Store(true)

	hook := func(a nfqueue.Attribute) int {
		if a.PacketID == nil {
			return 0
		}
		verdict := nfqueue.NfAccept
		if a.Payload != nil {
			switch w.pl.Process(*a.Payload) {
			case pipeline.Drop, pipeline.Abort:
				verdict = nfqueue.NfDrop
			}
		}
		_ = w.nf.SetVerdict(*a.PacketID, verdict)
		return 0
	}
	errFn := func(e error) int { return 0 }

	if err := w.nf.RegisterWithErrorFunc(ctx, hook, errFn); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// Stop cancels the registered hook and closes the queue handle.
func (w *NFQueueWorker) Stop() {
	w.running.Store(false)
	if w.cancel != nil {
		w.cancel()
	}
	_ = w.nf.Close()
}

// Pipeline returns the worker's packet processor.
func (w *NFQueueWorker) Pipeline() *pipeline.Pipeline { return w.pl }
