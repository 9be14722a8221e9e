// Copyright 2014 The LUCI Authors.
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

// Package testclock provides a Clock implementation that can be driven
// manually, for use in deterministic tests of code that reads time
// through go.chromium.org/luci-cache/common/clock.
package testclock

import (
	"context"
	"sync"
	"time"

	"go.chromium.org/luci-cache/common/clock"
)

// TestClock is a Clock interface with additional methods to help
// instrument it.
type TestClock interface {
	clock.Clock

	// Set sets the test clock's time.
	Set(time.Time)

	// Add advances the test clock's time.
	Add(time.Duration)

	// SetTimerCallback is a goroutine-safe method to set an
	// instance-wide callback invoked when any timer begins.
	SetTimerCallback(TimerCallback)
}

// TimerCallback is invoked when a timer has been set. Useful for
// synchronizing state when testing.
type TimerCallback func(time.Duration, clock.Timer)

// testClock is a test-oriented implementation of the Clock interface.
//
// Time-based events are explicitly triggered by advancing the clock via
// Set/Add.
type testClock struct {
	sync.Mutex

	now       time.Time
	timerCond *sync.Cond

	timerCallback TimerCallback
}

var _ TestClock = (*testClock)(nil)

// New returns a TestClock instance set at the specified time.
func New(now time.Time) TestClock {
	c := &testClock{now: now}
	c.timerCond = sync.NewCond(c)
	return c
}

func (c *testClock) Now() time.Time {
	c.Lock()
	defer c.Unlock()
	return c.now
}

func (c *testClock) Sleep(ctx context.Context, d time.Duration) clock.TimerResult {
	return <-c.After(ctx, d)
}

func (c *testClock) NewTimer(ctx context.Context) clock.Timer {
	return newTimer(ctx, c)
}

func (c *testClock) After(ctx context.Context, d time.Duration) <-chan clock.TimerResult {
	t := newTimer(ctx, c)
	t.Reset(d)
	return t.afterC
}

func (c *testClock) Set(t time.Time) {
	c.Lock()
	defer c.Unlock()
	c.setTimeLocked(t)
}

func (c *testClock) Add(d time.Duration) {
	c.Lock()
	defer c.Unlock()
	c.setTimeLocked(c.now.Add(d))
}

func (c *testClock) setTimeLocked(t time.Time) {
	if t.Before(c.now) {
		panic("clock cannot go backwards in time")
	}
	c.now = t
	c.timerCond.Broadcast()
}

func (c *testClock) SetTimerCallback(callback TimerCallback) {
	c.Lock()
	defer c.Unlock()
	c.timerCallback = callback
}

func (c *testClock) getTimerCallback() TimerCallback {
	c.Lock()
	defer c.Unlock()
	return c.timerCallback
}

func (c *testClock) signalTimerSet(d time.Duration, t clock.Timer) {
	if callback := c.getTimerCallback(); callback != nil {
		callback(d, t)
	}
}

// invokeAt invokes callback once the clock has advanced at or past
// threshold, or ctx is canceled first.
func (c *testClock) invokeAt(ctx context.Context, threshold time.Time, callback func(clock.TimerResult)) {
	finishedC := make(chan struct{})
	stopC := make(chan struct{})

	c.Lock()
	go func() {
		defer close(finishedC)
		defer func() {
			now := c.now
			c.Unlock()
			callback(clock.TimerResult{Time: now, Err: ctx.Err()})
		}()

		for {
			if !c.now.Before(threshold) {
				return
			}
			c.timerCond.Wait()
			select {
			case <-stopC:
				return
			default:
			}
		}
	}()

	go func() {
		select {
		case <-finishedC:
			return
		case <-ctx.Done():
			select {
			case <-finishedC:
				return
			default:
			}
			close(stopC)
			c.timerCond.Broadcast()
		}
	}()
}
