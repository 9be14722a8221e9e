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

package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"go.chromium.org/luci-cache/cache/periodic"
)

// updateState is component D: the mutable per-cache bookkeeping that
// every operation touching timestamps or the in-flight dump task must
// hold updateState.mu for. The zero value is a valid "never updated"
// state.
//
// Invariant: lastModifyingUpdate <= lastUpdate always; a zero lastUpdate
// ("never") implies no dump may be written.
type updateState struct {
	mu sync.Mutex

	// lastUpdate is the wall-clock moment of the most recent successful
	// update (full or incremental). Zero means never.
	lastUpdate time.Time
	// lastModifyingUpdate is the wall-clock moment of the most recent
	// update the Capability reported as having changed contents.
	lastModifyingUpdate time.Time
	// lastFullUpdate is the moment of the most recent successful full
	// update, read through the same clock.Clock as everything else in
	// this module (see DESIGN.md for why a single Context-scoped Clock
	// is used here instead of a separate monotonic clock).
	lastFullUpdate time.Time

	// dumpTask is the handle of the most recently started dump task (at
	// most one is in flight at a time), or nil if no dump task has been
	// started yet. It keeps pointing at a finished task until the next
	// one replaces it.
	dumpTask *periodic.TaskHandle

	// forceNextUpdateFull is consumed (read-and-clear) by the next tick's
	// type selection; set by Start's post-load-forced-full step.
	forceNextUpdateFull bool
}

func (s *updateState) dumpInFlightLocked() bool {
	return s.dumpTask.IsValid() && !s.dumpTask.IsFinished()
}

// exchangeForceFullLocked reads and clears forceNextUpdateFull.
func (s *updateState) exchangeForceFullLocked() bool {
	v := s.forceNextUpdateFull
	s.forceNextUpdateFull = false
	return v
}

// atomicTimestamp is a process-local, lock-free timestamp that only ever
// moves forward: Max stores t iff it is later than the current value.
// Used for lastDumpedUpdate, since a naive store could let a stale
// write from a bump task regress it below a newer dump's timestamp.
type atomicTimestamp struct {
	p atomic.Pointer[time.Time]
}

// Load returns the current value, or the zero Time if Max was never
// called.
func (a *atomicTimestamp) Load() time.Time {
	if t := a.p.Load(); t != nil {
		return *t
	}
	return time.Time{}
}

// Max updates the stored value to t if t is later than the current
// value (or if there is no current value yet).
func (a *atomicTimestamp) Max(t time.Time) {
	for {
		cur := a.p.Load()
		if cur != nil && !t.After(*cur) {
			return
		}
		tt := t
		if a.p.CompareAndSwap(cur, &tt) {
			return
		}
	}
}
