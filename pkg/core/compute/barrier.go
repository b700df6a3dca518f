// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compute

import (
	stderrors "errors"
	"sync"

	"github.com/pkg/errors"
)

// Barrier aggregates events to be waited on jointly.
//
// Events can't be added while a Wait is in progress (ErrBarrierWaiting), but after Wait returns the
// barrier can be reused: more events can be added and waited on again.
type Barrier struct {
	mu      sync.Mutex
	events  []*Event
	waiters int
}

// NewBarrier creates a Barrier with the given events. nil events are ignored.
func NewBarrier(events ...*Event) *Barrier {
	b := &Barrier{}
	for _, ev := range events {
		if ev != nil {
			b.events = append(b.events, ev)
		}
	}
	return b
}

// Add an event to the barrier. It fails with ErrBarrierWaiting if a Wait is in progress.
func (b *Barrier) Add(ev *Event) error {
	if ev == nil {
		return errors.New("Barrier.Add(nil)")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.waiters > 0 {
		return errors.Wrapf(ErrBarrierWaiting, "Barrier.Add(%s)", ev)
	}
	b.events = append(b.events, ev)
	return nil
}

// Len returns the number of events in the barrier.
func (b *Barrier) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Wait blocks until all events of the barrier complete, and returns their errors joined.
// It can be called any number of times.
func (b *Barrier) Wait() error {
	b.mu.Lock()
	b.waiters++
	events := b.events
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.waiters--
		b.mu.Unlock()
	}()

	var errs []error
	for _, ev := range events {
		if err := ev.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
