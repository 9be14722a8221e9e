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
	"context"
	"time"

	"go.chromium.org/luci-cache/cache/dump"
	"go.chromium.org/luci-cache/cache/stats"
)

// Capability is the contract a user-defined in-memory cache implements to
// plug into the engine, in place of base-class inheritance: whether
// dumps are wired in is decided at Cache construction by a type
// assertion against Dumpable, not by virtual dispatch.
type Capability interface {
	// Update performs a full or incremental refresh, chosen by uc.Kind().
	// It reports failure by returning a non-nil error, and reports
	// whether it changed the cache's contents by calling
	// uc.MarkModified(). Update runs with UpdateState's mutex held, so
	// concurrent Update calls for the same Cache never overlap.
	Update(ctx context.Context, uc UpdateContext) error

	// Cleanup performs periodic maintenance unrelated to refreshing
	// contents (e.g. evicting entries past a TTL). It runs on its own
	// schedule, independent of Update.
	Cleanup(ctx context.Context) error
}

// Dumpable is implemented by a Capability that supports persistence.
// A Capability not implementing Dumpable can still be used with
// StaticConfig.DumpsEnabled set to false; setting DumpsEnabled true for a
// non-Dumpable Capability is a programmer error caught at dump time (see
// DumpUnimplementedError).
type Dumpable interface {
	// WriteTo serializes the cache's current contents to w. Returning
	// dump.ErrEmptyCache aborts the dump gracefully: the engine treats it
	// as an expected, non-fatal outcome, not a DumpFailure.
	WriteTo(w dump.Writer) error

	// ReadFrom deserializes the cache's contents from r, replacing
	// whatever the cache currently holds.
	ReadFrom(r dump.Reader) error
}

// UpdateContext is handed to Capability.Update for one invocation. It
// exposes the update's type, timing, and a way to report back whether
// anything changed and how large the cache ended up.
type UpdateContext interface {
	// Kind is the update type the engine selected for this tick.
	Kind() stats.Kind
	// LastUpdate is the wall-clock time of the last successful update,
	// or the zero Time if this is the cache's first update.
	LastUpdate() time.Time
	// Now is the wall-clock time this update began.
	Now() time.Time
	// MarkModified signals that this update changed the cache's
	// contents. Calling it more than once is harmless.
	MarkModified()
	// SetDocumentsCurrentCount reports the resulting document count for
	// the Statistics sink.
	SetDocumentsCurrentCount(n int64)
}

// updateContext is the concrete UpdateContext handed to a Capability.
type updateContext struct {
	kind       stats.Kind
	lastUpdate time.Time
	now        time.Time
	scope      *stats.UpdateScope
	modified   bool
}

func (u *updateContext) Kind() stats.Kind        { return u.kind }
func (u *updateContext) LastUpdate() time.Time   { return u.lastUpdate }
func (u *updateContext) Now() time.Time          { return u.now }
func (u *updateContext) MarkModified()           { u.modified = true }
func (u *updateContext) SetDocumentsCurrentCount(n int64) {
	u.scope.SetDocumentsCurrentCount(n)
}
