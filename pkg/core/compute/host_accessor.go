// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compute

import (
	"github.com/gomlx/hetero/pkg/core/dtypes"
	"github.com/gomlx/hetero/pkg/support/xsync"
	"github.com/pkg/errors"
)

// HostAccessor gives the host direct access to a region of a Buffer, until Release is called.
//
// Creating it blocks until earlier conflicting commands complete and the data is in host memory.
// Later commands accessing the region conflictingly wait for the Release.
type HostAccessor struct {
	acc   *Accessor
	event *Event

	ready, release *xsync.Latch
}

// hold is the operation of the host access command: it signals the data is ready and blocks until released.
func (ha *HostAccessor) hold() error {
	ha.ready.Trigger()
	ha.release.Wait()
	return nil
}

// HostAccess blocks until the region of the buffer (by default all of it) is available in host
// memory with the given mode, and returns a HostAccessor to it. It must be released with Release.
func (b *Buffer) HostAccess(mode AccessMode, opts ...AccessorOption) (*HostAccessor, error) {
	q := b.ctx.internalHostQueue()
	ha := &HostAccessor{ready: xsync.NewLatch(), release: xsync.NewLatch()}
	ev, err := q.submit(newHandler(q), func(h *Handler) error {
		acc, err := h.Accessor(b, mode, opts...)
		if err != nil {
			return err
		}
		if err := h.setOp(opHostAccess, "host_access"); err != nil {
			return err
		}
		ha.acc = acc
		h.hostAccess = ha
		return nil
	})
	if err != nil {
		return nil, err
	}
	ha.event = ev
	select {
	case <-ha.ready.WaitChan():
		return ha, nil
	case <-ev.Done():
		return nil, errors.WithMessagef(ev.Err(), "HostAccess(%s)", b)
	}
}

// Accessor returns the accessor to be used with HostView.
func (ha *HostAccessor) Accessor() *Accessor { return ha.acc }

// Release the host access, allowing later conflicting commands to proceed. Extra calls are ignored.
func (ha *HostAccessor) Release() {
	ha.release.Trigger()
}

// ReadAll returns a copy of the contents of the buffer, waiting for pending writes.
func ReadAll[T dtypes.Supported](b *Buffer) ([]T, error) {
	if b.dtype != dtypes.FromGenericsType[T]() {
		return nil, errors.Errorf("ReadAll[%s](%s): dtype mismatch", dtypes.FromGenericsType[T](), b)
	}
	ha, err := b.HostAccess(Read)
	if err != nil {
		return nil, err
	}
	defer ha.Release()
	return append([]T(nil), HostView[T](ha.Accessor()).Flat...), nil
}

// WriteAll overwrites the contents of the buffer with data, which must have the buffer's size.
func WriteAll[T dtypes.Supported](b *Buffer, data []T) error {
	if b.dtype != dtypes.FromGenericsType[T]() || len(data) != b.Size() {
		return errors.Errorf("WriteAll[%s](%s): %d elements given, dtype or size mismatch",
			dtypes.FromGenericsType[T](), b, len(data))
	}
	ha, err := b.HostAccess(DiscardWrite)
	if err != nil {
		return err
	}
	defer ha.Release()
	copy(HostView[T](ha.Accessor()).Flat, data)
	return nil
}
