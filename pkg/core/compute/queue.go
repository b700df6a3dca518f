// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compute

import (
	stderrors "errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/hetero/pkg/core/platform"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Queue submits commands to one device of a Context.
//
// Commands are executed asynchronously, ordered only by their dependencies (see the package
// documentation), unless the queue was created WithInOrder. It is safe for concurrent use.
type Queue struct {
	ctx       *Context
	device    *platform.Device
	domain    int
	profiling bool
	inOrder   bool

	mu     sync.Mutex
	events []*Event
	last   *Event
}

// QueueOption configures a Queue.
type QueueOption func(q *Queue)

// WithProfiling enables the profiling timestamps of the events of the queue.
func WithProfiling() QueueOption {
	return func(q *Queue) { q.profiling = true }
}

// WithInOrder makes every command of the queue depend on the previously submitted one.
func WithInOrder() QueueOption {
	return func(q *Queue) { q.inOrder = true }
}

// NewQueue creates a queue on dev, which must be one of the context devices.
func NewQueue(ctx *Context, dev *platform.Device, opts ...QueueOption) (*Queue, error) {
	if ctx == nil {
		return nil, errors.New("NewQueue: nil context")
	}
	domain := ctx.domainOf(dev)
	if domain < 0 {
		return nil, errors.Wrapf(ErrDeviceMismatch, "NewQueue: device %s is not part of the context", dev)
	}
	q := &Queue{ctx: ctx, device: dev, domain: domain}
	for _, opt := range opts {
		opt(q)
	}
	klog.V(1).Infof("queue created on %s (profiling=%v, in-order=%v)", dev, q.profiling, q.inOrder)
	return q, nil
}

// NewQueueFromSelector selects a device from the registry (the default one if reg is nil), and creates a
// queue on a new Context for it.
func NewQueueFromSelector(reg *platform.Registry, sel platform.Selector, opts ...QueueOption) (*Queue, error) {
	if reg == nil {
		reg = platform.Default()
	}
	dev, err := reg.Select(sel)
	if err != nil {
		return nil, err
	}
	ctx, err := NewContextForDevice(dev)
	if err != nil {
		return nil, err
	}
	return NewQueue(ctx, dev, opts...)
}

// String implements fmt.Stringer.
func (q *Queue) String() string {
	if q.device == nil {
		return "queue(host)"
	}
	return fmt.Sprintf("queue(%s)", q.device)
}

// Device of the queue. It is nil for the internal host queue.
func (q *Queue) Device() *platform.Device { return q.device }

// Context of the queue.
func (q *Queue) Context() *Context { return q.ctx }

// ProfilingEnabled returns whether the queue was created WithProfiling.
func (q *Queue) ProfilingEnabled() bool { return q.profiling }

// InOrder returns whether the queue was created WithInOrder.
func (q *Queue) InOrder() bool { return q.inOrder }

// Submit builds a command with cgf and submits it, returning its event.
//
// cgf must issue exactly one operation on the Handler, otherwise Submit fails with
// ErrInvalidCommandSequence. Errors returned by cgf (or panics) abort the submission.
// Errors during the execution of the command are reported by its event, and by Queue.Wait.
func (q *Queue) Submit(cgf func(h *Handler) error) (*Event, error) {
	h := newHandler(q)
	return q.submit(h, cgf)
}

func (q *Queue) submit(h *Handler, cgf func(h *Handler) error) (*Event, error) {
	var err error
	exception := exceptions.Try(func() { err = cgf(h) })
	if exception != nil {
		err = panicToError(exception)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "%s: command group failed", q)
	}

	q.mu.Lock()
	ev, err := h.finalize()
	if err != nil {
		q.mu.Unlock()
		return nil, errors.WithMessagef(err, "%s: submitting command", q)
	}
	// Completed successful events are dropped, failed ones are kept for Wait.
	q.events = slices.DeleteFunc(q.events, func(e *Event) bool { return e.IsComplete() && e.Err() == nil })
	q.events = append(q.events, ev)
	q.last = ev
	q.mu.Unlock()

	ev.seal()
	klog.V(3).Infof("%s: submitted %s", q, ev)
	return ev, nil
}

// Wait blocks until every command submitted so far completes.
//
// The errors of failed commands are delivered to the context's AsyncHandler if one is set, in which
// case Wait returns nil. Otherwise they are returned joined. Commands can be submitted again afterwards.
func (q *Queue) Wait() error {
	q.mu.Lock()
	events := q.events
	q.events = nil
	q.mu.Unlock()

	var errs []error
	for _, ev := range events {
		if err := ev.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	if handler := q.ctx.AsyncHandler(); handler != nil {
		handler(errs)
		return nil
	}
	return stderrors.Join(errs...)
}
