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
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/danjacques/gofslock/fslock"

	"go.chromium.org/luci-cache/common/clock"
	"go.chromium.org/luci-cache/common/errors"
	"go.chromium.org/luci-cache/common/logging"
)

// Store owns one cache's on-disk dump directory: it enumerates the
// latest record, allocates fresh paths, bumps (renames) a record to a
// new timestamp without rewriting its bytes, and prunes old records.
//
// All Store methods perform blocking I/O; callers are expected to run
// them off a dedicated executor (see cache/periodic.FSExecutor), never
// from the goroutine driving an update tick.
//
// A Store instance owns its directory exclusively within this process.
// Across processes, register/bump/cleanup take an OS-level advisory
// lock on a sentinel file in the directory so a concurrent inspection
// tool (or a second engine instance misconfigured to share the
// directory) can't observe or produce a torn rename.
type Store struct {
	dir    string
	retain int
}

// NewStore returns a Store rooted at dir, retaining at most retain dump
// files after Cleanup (retain <= 0 means unlimited).
func NewStore(dir string, retain int) *Store {
	return &Store{dir: dir, retain: retain}
}

func (s *Store) lockPath() string {
	return filepath.Join(s.dir, ".lock")
}

// PathFor returns the path a dump taken at t would live at, without
// creating or registering anything. Since fileName is a pure function of
// t, this always agrees with whatever RegisterNew or Bump produced for
// the same timestamp.
func (s *Store) PathFor(t time.Time) string {
	return fullPath(s.dir, t)
}

// withLock runs fn while holding the directory's advisory lock,
// creating the directory first if necessary.
func (s *Store) withLock(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Annotate(err, "creating dump directory %s", s.dir).Err()
	}

	const retryDelay = 20 * time.Millisecond
	for {
		handle, err := fslock.Lock(s.lockPath())
		if err == nil {
			defer handle.Unlock()
			return fn()
		}
		if err != fslock.ErrLockHeld {
			return errors.Annotate(err, "locking dump directory %s", s.dir).Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(ctx, retryDelay):
		}
	}
}

// Latest returns the most recently timestamped dump record in the
// directory, or nil if there is none.
func (s *Store) Latest(ctx context.Context) (*Record, error) {
	var latest *Record
	err := s.withLock(ctx, func() error {
		records, err := s.listLocked()
		if err != nil {
			return err
		}
		if len(records) > 0 {
			r := records[len(records)-1]
			latest = &r
		}
		return nil
	})
	return latest, err
}

// listLocked returns every record in the directory, sorted oldest to
// newest. Caller must hold the directory lock.
func (s *Store) listLocked() ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Annotate(err, "listing dump directory %s", s.dir).Err()
	}

	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		t, ok := parseFileName(e.Name())
		if !ok {
			continue
		}
		records = append(records, Record{UpdateTime: t, Path: filepath.Join(s.dir, e.Name())})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].UpdateTime.Before(records[j].UpdateTime) })
	return records, nil
}

// RegisterNew allocates a fresh path for a dump taken at updateTime. It
// does not create the file; the caller (via a Codec) writes it, then the
// path is already discoverable by future Latest/listLocked calls once
// the file exists.
func (s *Store) RegisterNew(ctx context.Context, updateTime time.Time) (path string, err error) {
	err = s.withLock(ctx, func() error {
		if mkErr := os.MkdirAll(s.dir, 0o755); mkErr != nil {
			return errors.Annotate(mkErr, "creating dump directory %s", s.dir).Err()
		}
		path = fullPath(s.dir, updateTime)
		return nil
	})
	return path, err
}

// Bump renames the dump file whose encoded update time is oldTime to a
// new file encoding newTime, without rewriting its contents, and returns
// the path it renamed the file to. Returns "" if no such record exists
// (e.g. it was pruned concurrently).
func (s *Store) Bump(ctx context.Context, oldTime, newTime time.Time) (string, error) {
	var newPath string
	err := s.withLock(ctx, func() error {
		records, err := s.listLocked()
		if err != nil {
			return err
		}
		for _, r := range records {
			if r.UpdateTime.Equal(oldTime) {
				dest := fullPath(s.dir, newTime)
				if rnErr := os.Rename(r.Path, dest); rnErr != nil {
					return errors.Annotate(rnErr, "bumping dump %s to %s", r.Path, dest).Err()
				}
				newPath = dest
				return nil
			}
		}
		return nil
	})
	return newPath, err
}

// Cleanup prunes dump files beyond the configured retention count,
// oldest first.
func (s *Store) Cleanup(ctx context.Context) error {
	if s.retain <= 0 {
		return nil
	}
	return s.withLock(ctx, func() error {
		records, err := s.listLocked()
		if err != nil {
			return err
		}
		if len(records) <= s.retain {
			return nil
		}
		toRemove := records[:len(records)-s.retain]
		for _, r := range toRemove {
			if rmErr := os.Remove(r.Path); rmErr != nil && !os.IsNotExist(rmErr) {
				logging.WithError(rmErr).Warningf(ctx, "failed to prune stale dump %s", r.Path)
			}
		}
		return nil
	})
}
