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

package clock

import (
	"context"
	"sync"
	"time"
)

// systemTimer implements Timer on top of time.Timer, additionally
// aborting early if its Context is canceled.
type systemTimer struct {
	ctx context.Context
	c   chan TimerResult

	mu    sync.Mutex
	timer *time.Timer
	stop  chan struct{}
}

func newSystemTimer(ctx context.Context) *systemTimer {
	t := &systemTimer{
		ctx: ctx,
		c:   make(chan TimerResult, 1),
	}
	go t.watchContext()
	return t
}

func (t *systemTimer) watchContext() {
	<-t.ctx.Done()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil && t.timer.Stop() {
		t.emitLocked(TimerResult{Time: time.Now(), Err: t.ctx.Err()})
	}
}

func (t *systemTimer) GetC() <-chan TimerResult {
	return t.c
}

func (t *systemTimer) Reset(d time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ctx.Err(); err != nil {
		t.emitLocked(TimerResult{Time: time.Now(), Err: err})
		return t.timer != nil
	}

	wasRunning := false
	if t.timer != nil {
		wasRunning = t.timer.Stop()
	}

	timer := time.AfterFunc(d, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.emitLocked(TimerResult{Time: time.Now()})
	})
	t.timer = timer
	return wasRunning
}

func (t *systemTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer == nil {
		return false
	}
	return t.timer.Stop()
}

// emitLocked must be called with t.mu held.
func (t *systemTimer) emitLocked(r TimerResult) {
	select {
	case t.c <- r:
	default:
	}
}
