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

// Package clock exposes a testable indirection over wall-clock and
// monotonic time.
//
// Production code reads the current time exclusively through this
// package instead of calling time.Now/time.Sleep directly, so that tests
// can install a testclock.TestClock in the context and drive ticks
// deterministically.
package clock

import (
	"context"
	"time"
)

// Clock is an interface to system time.
//
// The standard clock is SystemClock, which falls through to the system
// time library. testclock.TestClock simulates time facilities for
// testing.
type Clock interface {
	// Now returns the current time (see time.Now).
	Now() time.Time

	// Sleep sleeps the current goroutine (see time.Sleep).
	//
	// Sleep returns a TimerResult containing the time when it was
	// awakened and detailing its execution. If the sleep terminated
	// prematurely from cancellation, the TimerResult's Incomplete method
	// returns true.
	Sleep(context.Context, time.Duration) TimerResult

	// NewTimer creates a new Timer instance, bound to this Clock.
	//
	// If the supplied Context is canceled, the timer expires
	// immediately.
	NewTimer(c context.Context) Timer

	// After waits a duration, then sends the current time over the
	// returned channel.
	//
	// If the supplied Context is canceled, the timer expires
	// immediately.
	After(context.Context, time.Duration) <-chan TimerResult
}

// Unique value for clock key.
var clockKey = "clock.Clock"

// Factory is a generator function that produces a Clock instance.
type Factory func(context.Context) Clock

// SetFactory creates a new Context using the supplied Clock factory.
func SetFactory(ctx context.Context, f Factory) context.Context {
	return context.WithValue(ctx, &clockKey, f)
}

// Set creates a new Context using the supplied Clock.
func Set(ctx context.Context, c Clock) context.Context {
	return SetFactory(ctx, func(context.Context) Clock { return c })
}

// Get returns the Clock set in the supplied Context, defaulting to
// GetSystemClock() if none is set.
func Get(ctx context.Context) (clock Clock) {
	if v := ctx.Value(&clockKey); v != nil {
		if f, ok := v.(Factory); ok {
			clock = f(ctx)
		}
	}
	if clock == nil {
		clock = GetSystemClock()
	}
	return
}

// Now calls Clock.Now on the Clock instance stored in the supplied
// Context.
func Now(ctx context.Context) time.Time {
	return Get(ctx).Now()
}

// Sleep calls Clock.Sleep on the Clock instance stored in the supplied
// Context.
func Sleep(ctx context.Context, d time.Duration) TimerResult {
	return Get(ctx).Sleep(ctx, d)
}

// NewTimer calls Clock.NewTimer on the Clock instance stored in the
// supplied Context.
func NewTimer(ctx context.Context) Timer {
	return Get(ctx).NewTimer(ctx)
}

// After waits a duration using the Clock instance stored in the supplied
// Context, then sends the current time over the returned channel.
//
// If the supplied Context is canceled, the timer expires immediately.
func After(ctx context.Context, d time.Duration) <-chan TimerResult {
	c := Get(ctx)
	return c.After(ctx, d)
}

// Since is an equivalent of time.Since that reads Now from the Context's
// Clock.
func Since(ctx context.Context, t time.Time) time.Duration {
	return Now(ctx).Sub(t)
}

// Until is an equivalent of time.Until that reads Now from the Context's
// Clock.
func Until(ctx context.Context, t time.Time) time.Duration {
	return t.Sub(Now(ctx))
}
