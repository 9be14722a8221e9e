// Copyright 2015 The LUCI Authors.
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

package testclock

import (
	"context"
	"time"

	"go.chromium.org/luci-cache/common/clock"
)

// timer is the TestClock's Timer implementation.
type timer struct {
	parent context.Context
	clock  *testClock
	afterC chan clock.TimerResult

	ctx    context.Context
	cancel context.CancelFunc
}

var _ clock.Timer = (*timer)(nil)

func newTimer(ctx context.Context, c *testClock) *timer {
	t := &timer{
		parent: ctx,
		clock:  c,
		afterC: make(chan clock.TimerResult, 1),
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	return t
}

func (t *timer) GetC() <-chan clock.TimerResult {
	return t.afterC
}

func (t *timer) Reset(d time.Duration) bool {
	wasActive := t.Stop()

	threshold := t.clock.Now().Add(d)
	t.clock.signalTimerSet(d, t)
	t.clock.invokeAt(t.ctx, threshold, func(r clock.TimerResult) {
		select {
		case t.afterC <- r:
		default:
		}
	})
	return wasActive
}

func (t *timer) Stop() bool {
	active := t.ctx.Err() == nil
	t.cancel()
	// Rearm, still derived from the original parent Context, so a
	// subsequent Reset keeps observing the caller's cancellation.
	t.ctx, t.cancel = context.WithCancel(t.parent)
	return active
}
