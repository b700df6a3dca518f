// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Limit(t *testing.T) {
	pool := New(2)
	release := make(chan struct{})
	var running, maxRunning atomic.Int32
	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			n := running.Add(1)
			for {
				m := maxRunning.Load()
				if n <= m || maxRunning.CompareAndSwap(m, n) {
					break
				}
			}
			<-release
			running.Add(-1)
		})
	}
	require.Eventually(t, func() bool { return pool.NumRunning() == 2 }, time.Second, time.Millisecond)
	assert.False(t, pool.StartIfAvailable(func() {}))
	close(release)
	wg.Wait()
	assert.Equal(t, int32(2), maxRunning.Load())
}

func TestPool_NoParallelism(t *testing.T) {
	pool := New(0)
	assert.False(t, pool.IsEnabled())
	var count int
	pool.WaitToStart(func() { count++ })
	assert.Equal(t, 1, count)

	done := make(chan struct{})
	pool.Submit(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for task")
	}
}

func TestPool_Unlimited(t *testing.T) {
	pool := New(-1)
	assert.True(t, pool.IsUnlimited())
	var wg sync.WaitGroup
	var count atomic.Int32
	for range 100 {
		wg.Add(1)
		assert.True(t, pool.StartIfAvailable(func() {
			count.Add(1)
			wg.Done()
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(100), count.Load())

	assert.Greater(t, New(AutoParallelism).MaxParallelism(), 0)
}

func TestPool_WorkerIsAsleep(t *testing.T) {
	pool := New(1)
	inner := make(chan struct{})
	outerDone := make(chan struct{})
	pool.WaitToStart(func() {
		// The outer task sleeps waiting for the inner one, which needs the only worker.
		pool.WorkerIsAsleep()
		pool.WaitToStart(func() { close(inner) })
		<-inner
		pool.WorkerRestarted()
		close(outerDone)
	})
	select {
	case <-outerDone:
	case <-time.After(time.Second):
		t.Fatal("deadlock: inner task never started")
	}
}
