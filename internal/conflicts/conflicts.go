// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package conflicts implements an interval conflict tracker: a reader/writer lock over regions of an
// index space, expressed as dependencies between tokens instead of blocking.
//
// Each access registers a region (a ranges.Box), a Mode and a token (an event). Acquire returns the tokens
// of earlier, not yet completed accesses the new one must wait for: those over overlapping regions where
// at least one of the two accesses writes.
package conflicts

import (
	"github.com/gomlx/hetero/pkg/core/ranges"
)

// Mode of an access: Read, Write or both.
type Mode uint8

const (
	Read Mode = 1 << iota
	Write

	ReadWrite = Read | Write
)

//go:generate go tool enumer -type=Mode -transform=snake -output=gen_mode_enumer.go conflicts.go

// ConflictsWith returns whether two accesses with the given modes over overlapping regions must be ordered.
func (m Mode) ConflictsWith(other Mode) bool {
	if m == 0 || other == 0 {
		return false
	}
	return m&Write != 0 || other&Write != 0
}

type entry[T comparable] struct {
	box   ranges.Box
	mode  Mode
	token T
}

// Tracker holds the outstanding accesses of one memory domain. It is not safe for concurrent use:
// the owner serializes calls.
type Tracker[T comparable] struct {
	entries []entry[T]
}

// Acquire registers a new access and returns the tokens of the outstanding conflicting accesses it
// depends on, without duplicates, in registration order.
//
// done reports whether a token already completed: completed entries are pruned and never returned.
// Older entries fully covered by a new write are dropped, since any later access that conflicts
// with them also conflicts with (and thus depends on) the new one.
func (t *Tracker[T]) Acquire(box ranges.Box, mode Mode, token T, done func(T) bool) []T {
	var deps []T
	kept := t.entries[:0]
	for _, e := range t.entries {
		if done != nil && done(e.token) {
			continue
		}
		conflicting := e.token != token && e.mode.ConflictsWith(mode) && e.box.Overlaps(box)
		if conflicting {
			deps = appendUnique(deps, e.token)
		}
		if mode&Write != 0 && box.Covers(e.box) && e.token != token {
			// Subsumed by the new write.
			continue
		}
		kept = append(kept, e)
	}
	clear(t.entries[len(kept):])
	t.entries = append(kept, entry[T]{box: box, mode: mode, token: token})
	return deps
}

// Prune removes completed entries.
func (t *Tracker[T]) Prune(done func(T) bool) {
	kept := t.entries[:0]
	for _, e := range t.entries {
		if !done(e.token) {
			kept = append(kept, e)
		}
	}
	clear(t.entries[len(kept):])
	t.entries = kept
}

// Outstanding returns the tokens of all registered (not pruned) accesses, without duplicates.
func (t *Tracker[T]) Outstanding() []T {
	var tokens []T
	for _, e := range t.entries {
		tokens = appendUnique(tokens, e.token)
	}
	return tokens
}

// Len returns the number of registered accesses.
func (t *Tracker[T]) Len() int { return len(t.entries) }

func appendUnique[T comparable](list []T, value T) []T {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
