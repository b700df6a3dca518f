// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"sync"
	"time"
)

// Token is the completion handle of an asynchronous backend operation (copy or launch).
type Token interface {
	// Done returns a channel closed when the operation finishes, successfully or not.
	Done() <-chan struct{}

	// Err returns the error of the operation. Only valid after Done is closed.
	Err() error

	// Timestamps returns when the operation started and ended executing. Only valid after Done is closed.
	Timestamps() (start, end time.Time)
}

// QueryCompletion returns whether the operation of the token is finished, without blocking.
func QueryCompletion(tok Token) bool {
	select {
	case <-tok.Done():
		return true
	default:
		return false
	}
}

// Await blocks until the operation finishes and returns its error.
func Await(tok Token) error {
	<-tok.Done()
	return tok.Err()
}

// ProfilingTimestamps waits for the operation to finish and returns its start and end times.
func ProfilingTimestamps(tok Token) (start, end time.Time) {
	<-tok.Done()
	return tok.Timestamps()
}

// Completion is a Token implementation backends can use: call Start when execution begins and Finish
// exactly once when it ends.
type Completion struct {
	done       chan struct{}
	finishOnce sync.Once
	err        error
	start, end time.Time
}

var _ Token = (*Completion)(nil)

// NewCompletion returns a new pending Completion.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Completed returns an already finished Completion with the given error.
func Completed(err error) *Completion {
	c := NewCompletion()
	c.Start()
	c.Finish(err)
	return c
}

// Start records the start timestamp.
func (c *Completion) Start() {
	c.start = time.Now()
}

// Finish records the end timestamp and error, and closes the Done channel. Extra calls are ignored.
func (c *Completion) Finish(err error) {
	c.finishOnce.Do(func() {
		c.end = time.Now()
		if c.start.IsZero() {
			c.start = c.end
		}
		c.err = err
		close(c.done)
	})
}

// Done implements Token.
func (c *Completion) Done() <-chan struct{} { return c.done }

// Err implements Token.
func (c *Completion) Err() error { return c.err }

// Timestamps implements Token.
func (c *Completion) Timestamps() (start, end time.Time) { return c.start, c.end }
