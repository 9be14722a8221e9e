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

package dump

import (
	"path/filepath"
	"strings"
	"time"
)

// timeLayout is a fixed-width, lexicographically sortable rendering of a
// UTC timestamp, used as the sortable prefix of a dump file name.
const timeLayout = "20060102T150405.000000000Z"

// fileExt is the fixed suffix every dump file carries, distinguishing it
// from the directory's lock sentinel and from any stray file a human
// drops next to the dumps.
const fileExt = ".dump"

// Record describes one dump file on disk. The engine only ever
// interprets UpdateTime and Path; the file's contents are opaque to it.
type Record struct {
	// UpdateTime is the update_time encoded in the file name: the
	// cache's last_update when this dump was written or last bumped.
	UpdateTime time.Time

	// Path is the absolute path of the dump file.
	Path string
}

// fileName renders the on-disk name for a dump taken at t. It is a pure
// function of t: RegisterNew, Bump, and PathFor all derive a record's
// path by calling it with the same timestamp, so the three never
// disagree about where a given dump lives.
func fileName(t time.Time) string {
	return t.UTC().Format(timeLayout) + fileExt
}

// parseFileName extracts the UpdateTime encoded in a dump file's base
// name. ok is false if name does not look like a dump file.
func parseFileName(name string) (t time.Time, ok bool) {
	if !strings.HasSuffix(name, fileExt) {
		return time.Time{}, false
	}
	t, err := time.Parse(timeLayout, strings.TrimSuffix(name, fileExt))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func fullPath(dir string, t time.Time) string {
	return filepath.Join(dir, fileName(t))
}
