// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compute

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/hetero/backends"
	"github.com/gomlx/hetero/pkg/support/xsync"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// processStart is the origin of the profiling timestamps.
var processStart = time.Now()

var nextEventID atomic.Uint64

// Event is the completion token of one submitted command.
//
// Each event counts its unfinished predecessors: when the count reaches zero its command is executed on
// a new goroutine, and when the command finishes the event completes and notifies its successors.
// If a predecessor fails, the command is not executed and the event fails with an error wrapping
// ErrDependencyFailed.
type Event struct {
	id    uint64
	queue *Queue
	name  string

	// run executes the command.
	run func() error

	mu         sync.Mutex
	pending    int
	depErr     error
	successors []*Event
	completed  bool
	err        error
	done       *xsync.Latch

	submitNs, startNs, endNs uint64

	// deviceTimed is set when start and end were measured by the backend executing the operation.
	deviceTimed bool
}

func newEvent(q *Queue, name string, run func() error) *Event {
	return &Event{
		id:    nextEventID.Add(1),
		queue: q,
		name:  name,
		run:   run,
		// The extra pending count is removed by seal, once all predecessors are registered.
		pending: 1,
		done:    xsync.NewLatch(),
	}
}

// String implements fmt.Stringer.
func (ev *Event) String() string {
	return fmt.Sprintf("event#%d(%s)", ev.id, ev.name)
}

// dependOn registers ev as a successor of pred. It must be called before seal.
func (ev *Event) dependOn(pred *Event) {
	if pred == nil || pred == ev {
		return
	}
	pred.mu.Lock()
	if pred.completed {
		predErr := pred.err
		pred.mu.Unlock()
		if predErr != nil {
			ev.mu.Lock()
			if ev.depErr == nil {
				ev.depErr = errors.Wrapf(ErrDependencyFailed, "%s depends on %s: %v", ev, pred, predErr)
			}
			ev.mu.Unlock()
		}
		return
	}
	pred.successors = append(pred.successors, ev)
	pred.mu.Unlock()

	ev.mu.Lock()
	ev.pending++
	ev.mu.Unlock()
	klog.V(2).Infof("%s depends on %s", ev, pred)
}

// seal records the submission time and allows the event to run once its predecessors complete.
func (ev *Event) seal() {
	ev.submitNs = nowNs()
	ev.predecessorDone(nil)
}

// predecessorDone decrements the pending count, and schedules the event if it reaches zero.
func (ev *Event) predecessorDone(pred *Event) {
	ev.mu.Lock()
	if pred != nil && pred.err != nil && ev.depErr == nil {
		ev.depErr = errors.Wrapf(ErrDependencyFailed, "%s depends on %s: %v", ev, pred, pred.err)
	}
	ev.pending--
	isReady := ev.pending == 0
	ev.mu.Unlock()
	if isReady {
		go ev.execute()
	}
}

// execute runs the command, called when all predecessors completed.
func (ev *Event) execute() {
	ev.mu.Lock()
	ev.startNs = nowNs()
	depErr := ev.depErr
	ev.mu.Unlock()
	if depErr != nil {
		ev.complete(depErr)
		return
	}
	var err error
	exception := exceptions.Try(func() { err = ev.run() })
	if exception != nil {
		err = panicToError(exception)
	}
	ev.complete(err)
}

// complete marks the event as finished and notifies its successors. Extra calls are ignored.
func (ev *Event) complete(err error) {
	ev.mu.Lock()
	if ev.completed {
		ev.mu.Unlock()
		return
	}
	if !ev.deviceTimed {
		ev.endNs = max(nowNs(), ev.startNs)
		if ev.startNs == 0 {
			ev.startNs = ev.endNs
		}
	}
	ev.err = err
	ev.completed = true
	successors := ev.successors
	ev.successors = nil
	ev.mu.Unlock()
	ev.done.Trigger()
	if err != nil {
		klog.V(1).Infof("%s failed: %v", ev, err)
	}
	for _, succ := range successors {
		succ.predecessorDone(ev)
	}
}

// Wait blocks until the command completes and returns its error. It can be called any number of times.
func (ev *Event) Wait() error {
	ev.done.Wait()
	return ev.err
}

// IsComplete returns whether the command finished, without blocking.
func (ev *Event) IsComplete() bool { return ev.done.Test() }

// Err returns the error of a completed command, or nil if it is not complete yet.
func (ev *Event) Err() error {
	if !ev.IsComplete() {
		return nil
	}
	return ev.err
}

// Queue returns the queue the event belongs to.
func (ev *Event) Queue() *Queue { return ev.queue }

// Done returns a channel closed when the event completes.
func (ev *Event) Done() <-chan struct{} { return ev.done.WaitChan() }

func isEventComplete(ev *Event) bool { return ev.IsComplete() }

func nowNs() uint64 {
	return uint64(time.Since(processStart).Nanoseconds())
}

// awaitToken waits for the backend operation of the command and takes its profiling timestamps
// as the start and end of the command.
func (ev *Event) awaitToken(tok backends.Token) error {
	start, end := backends.ProfilingTimestamps(tok)
	ev.mu.Lock()
	ev.startNs = uint64(start.Sub(processStart).Nanoseconds())
	ev.endNs = uint64(end.Sub(processStart).Nanoseconds())
	ev.deviceTimed = true
	ev.mu.Unlock()
	return tok.Err()
}

func (ev *Event) profilingInfo(which string) (uint64, error) {
	if ev.queue == nil || !ev.queue.profiling {
		return 0, errors.Wrapf(ErrProfilingNotEnabled, "%s: profiling %s time", ev, which)
	}
	_ = ev.Wait()
	switch which {
	case "submit":
		return ev.submitNs, nil
	case "start":
		return ev.startNs, nil
	default:
		return ev.endNs, nil
	}
}

// ProfilingSubmit returns when the command was submitted, in nanoseconds since the process started.
// It waits for the command to complete, and fails with ErrProfilingNotEnabled if the queue was
// not created with WithProfiling.
func (ev *Event) ProfilingSubmit() (uint64, error) { return ev.profilingInfo("submit") }

// ProfilingStart returns when the command started executing, see ProfilingSubmit.
func (ev *Event) ProfilingStart() (uint64, error) { return ev.profilingInfo("start") }

// ProfilingEnd returns when the command finished executing, see ProfilingSubmit.
func (ev *Event) ProfilingEnd() (uint64, error) { return ev.profilingInfo("end") }

// CreateBarrier returns a new Barrier with this event.
func (ev *Event) CreateBarrier() *Barrier {
	return NewBarrier(ev)
}

func panicToError(exception any) error {
	if err, ok := exception.(error); ok {
		return errors.WithMessage(err, "panic")
	}
	return errors.Errorf("panic: %v", exception)
}
