// Copyright 2024 The LUCI Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package periodic

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// FSExecutor bounds how many dump/load (or other blocking filesystem)
// operations run concurrently, so a burst of caches all dumping at once
// can't starve the disk or exhaust file descriptors. It is a dedicated
// pool for filesystem I/O, kept separate from the pool driving update
// ticks.
type FSExecutor struct {
	sem *semaphore.Weighted
}

// NewFSExecutor returns an FSExecutor allowing at most width concurrent
// operations. A width <= 0 means unbounded.
func NewFSExecutor(width int64) *FSExecutor {
	if width <= 0 {
		return &FSExecutor{}
	}
	return &FSExecutor{sem: semaphore.NewWeighted(width)}
}

// Spawn runs fn on its own goroutine once a slot is available, and
// returns a TaskHandle tracking it. If ctx is canceled before a slot
// frees up, fn never runs and the handle completes with ctx.Err().
func (e *FSExecutor) Spawn(ctx context.Context, name string, fn func(context.Context) error) *TaskHandle {
	runCtx, cancel := context.WithCancel(ctx)
	h := &TaskHandle{name: name, cancel: cancel, done: make(chan struct{}), valid: true}

	go func() {
		defer close(h.done)
		if e.sem != nil {
			if err := e.sem.Acquire(runCtx, 1); err != nil {
				h.err = err
				return
			}
			defer e.sem.Release(1)
		}
		h.err = fn(runCtx)
	}()

	return h
}

// TaskHandle refers to one in-flight (or completed) unit of work spawned
// by an FSExecutor: spawn, wait, request cancel, is valid, is finished,
// get.
type TaskHandle struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
	valid  bool
}

// IsValid reports whether this handle refers to a real task (as opposed
// to a zero TaskHandle{}, which callers use to mean "no dump task ever
// started").
func (h *TaskHandle) IsValid() bool { return h != nil && h.valid }

// IsFinished reports whether the task has completed, without blocking.
func (h *TaskHandle) IsFinished() bool {
	if !h.IsValid() {
		return true
	}
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// RequestCancel asks the task to stop by canceling the context it was
// spawned with. It does not wait for the task to actually stop; call
// Wait for that.
func (h *TaskHandle) RequestCancel() {
	if h.IsValid() {
		h.cancel()
	}
}

// Wait blocks until the task finishes.
func (h *TaskHandle) Wait() {
	if h.IsValid() {
		<-h.done
	}
}

// Get waits for the task to finish and returns its error. Calling Get on
// an invalid handle returns nil, since there was nothing to fail.
func (h *TaskHandle) Get() error {
	if !h.IsValid() {
		return nil
	}
	<-h.done
	return h.err
}
