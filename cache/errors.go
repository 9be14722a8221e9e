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
	"errors"
	"fmt"

	"go.chromium.org/luci-cache/cache/dump"
)

// ErrEmptyCache is dump.ErrEmptyCache, re-exported so callers that only
// import cache don't also need cache/dump for errors.Is checks.
var ErrEmptyCache = dump.ErrEmptyCache

// IsEmptyCache reports whether err is (or wraps) ErrEmptyCache.
func IsEmptyCache(err error) bool {
	return errors.Is(err, dump.ErrEmptyCache)
}

// DumpUnimplementedError is raised when a dump is attempted for a cache
// configured with DumpsEnabled whose Capability does not implement
// Dumpable. It is a programmer error, not a runtime failure: on the
// write path it panics rather than propagating as an ordinary error, so
// a misconfigured cache fails loudly during development instead of
// silently skipping every dump.
type DumpUnimplementedError struct {
	Name string
}

func (e *DumpUnimplementedError) Error() string {
	return fmt.Sprintf("cache %q: dumps_enabled is set but its Capability does not implement Dumpable", e.Name)
}

// NotRunningError is the panic value of MustBeRunning.
type NotRunningError struct {
	Name string
}

func (e *NotRunningError) Error() string {
	return fmt.Sprintf("cache %q: operation requires the engine to be running (call Start first)", e.Name)
}
