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

// Package periodic implements component F of the cache engine: a
// jittered periodic task primitive (Task) and a bounded filesystem
// executor (FSExecutor) that dump/load I/O runs on, kept separate from
// the default goroutine pool driving update ticks.
package periodic

import (
	"context"
	"sync"
	"time"

	"go.chromium.org/luci-cache/common/clock"
	"go.chromium.org/luci-cache/common/data/rand/mathrand"
	"go.chromium.org/luci-cache/common/logging"
)

// Flags are descriptive/behavioral modifiers for a Task's schedule.
type Flags uint8

const (
	// Chaotic marks a task whose failures are expected and routine
	// (e.g. transient upstream errors), so its logging is quieter.
	Chaotic Flags = 1 << iota
	// Critical marks a task whose sustained failure should page
	// somebody, in whatever alerting layer sits above this package.
	Critical
	// Now makes the task's very first tick fire immediately instead of
	// waiting one full Interval+jitter first.
	Now
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// Settings configures a Task's schedule.
type Settings struct {
	Interval time.Duration
	Jitter   time.Duration
	Flags    Flags
}

func (s Settings) sleepDuration(ctx context.Context) time.Duration {
	if s.Jitter <= 0 {
		return s.Interval
	}
	offset := time.Duration(mathrand.Get(ctx).Int63n(int64(2*s.Jitter))) - s.Jitter
	d := s.Interval + offset
	if d < 0 {
		return 0
	}
	return d
}

// Task runs callback on a jittered interval until Stop is called.
// Callers Start it once, may SetSettings it repeatedly while running to
// hot-reload interval/jitter, and Stop it exactly once.
type Task struct {
	name string

	mu       sync.Mutex
	settings Settings
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewTask returns a Task identified by name (used only for logging).
func NewTask(name string) *Task {
	return &Task{name: name}
}

// Start begins running callback on the given schedule. Starting an
// already-running Task is a no-op, matching the at-most-one-in-flight
// discipline the engine relies on for its own update/cleanup tasks.
func (t *Task) Start(ctx context.Context, settings Settings, callback func(context.Context) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.settings = settings
	t.running = true

	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	go t.loop(loopCtx, callback)
}

// SetSettings hot-reloads the schedule. The tick currently sleeping
// keeps its old wake-up time; the new Settings apply starting with the
// next sleep.
func (t *Task) SetSettings(settings Settings) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.settings = settings
}

func (t *Task) currentSettings() Settings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settings
}

// Stop halts the Task and waits for its current tick, if any, to
// return. Stopping an already-stopped or never-started Task is a no-op.
func (t *Task) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	cancel := t.cancel
	done := t.done
	t.mu.Unlock()

	cancel()
	<-done
}

func (t *Task) loop(ctx context.Context, callback func(context.Context) error) {
	defer close(t.done)

	first := true
	for {
		settings := t.currentSettings()

		if !(first && settings.Flags.has(Now)) {
			wait := settings.sleepDuration(ctx)
			select {
			case <-ctx.Done():
				return
			case <-clock.After(ctx, wait):
			}
		}
		first = false

		if ctx.Err() != nil {
			return
		}

		if err := callback(ctx); err != nil {
			if settings.Flags.has(Chaotic) {
				logging.WithError(err).Warningf(ctx, "periodic task %s: tick failed", t.name)
			} else {
				logging.WithError(err).Errorf(ctx, "periodic task %s: tick failed", t.name)
			}
		}
	}
}
