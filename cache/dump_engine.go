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
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"go.chromium.org/luci-cache/cache/config"
	"go.chromium.org/luci-cache/cache/periodic"
	"go.chromium.org/luci-cache/common/clock"
	"go.chromium.org/luci-cache/common/errors"
	"go.chromium.org/luci-cache/common/logging"
)

// dumpTrigger distinguishes a dump considered because MinDumpInterval
// has elapsed from one forced unconditionally (DumpSyncDebug).
type dumpTrigger int

const (
	honorInterval dumpTrigger = iota
	forced
)

// shouldDumpLocked implements ShouldDump. Caller must hold state.mu.
func (c *Cache) shouldDumpLocked(cfg *config.Config, trigger dumpTrigger) bool {
	if !cfg.DumpsEnabled || c.store == nil {
		return false
	}
	if c.state.lastUpdate.IsZero() {
		return false
	}
	if c.state.dumpInFlightLocked() {
		return false
	}
	if trigger == forced {
		return true
	}
	threshold := c.state.lastUpdate.Add(-cfg.MinDumpInterval)
	return !c.lastDumpedUpdate.Load().After(threshold)
}

// dumpAsyncIfNeededLocked implements DumpAsyncIfNeeded: if a dump is
// due, it awaits and consumes the previous dump handle (per the
// at-most-one-in-flight discipline, guaranteed already finished by
// shouldDumpLocked), then dispatches either a bump (if nothing has
// changed since the last dump) or a fresh serialize, onto the
// filesystem executor. Caller must hold state.mu.
func (c *Cache) dumpAsyncIfNeededLocked(ctx context.Context, cfg *config.Config, trigger dumpTrigger) {
	if !c.shouldDumpLocked(cfg, trigger) {
		return
	}
	c.awaitPreviousDumpLocked(ctx)

	newTime := c.state.lastUpdate
	var handle *periodic.TaskHandle
	if c.lastDumpedUpdate.Load().Equal(c.state.lastModifyingUpdate) {
		oldTime := c.lastDumpedUpdate.Load()
		handle = c.fsExecutor.Spawn(ctx, "dump-bump/"+c.name, func(taskCtx context.Context) error {
			return c.doBump(taskCtx, oldTime, newTime)
		})
	} else {
		if c.dumpable == nil {
			panic(&DumpUnimplementedError{Name: c.name})
		}
		handle = c.fsExecutor.Spawn(ctx, "dump-new/"+c.name, func(taskCtx context.Context) error {
			return c.doNewDump(taskCtx, newTime)
		})
	}
	c.state.dumpTask = handle
}

func (c *Cache) awaitPreviousDumpLocked(ctx context.Context) {
	if !c.state.dumpTask.IsValid() {
		return
	}
	if err := c.state.dumpTask.Get(); err != nil {
		logging.WithError(err).Warningf(ctx, "cache %q: previous dump task failed", c.name)
	}
}

// doBump is the dump task body that renames an existing, unchanged dump
// to a later timestamp instead of rewriting its bytes.
func (c *Cache) doBump(ctx context.Context, oldTime, newTime time.Time) error {
	start := clock.Now(ctx)

	newPath, err := c.store.Bump(ctx, oldTime, newTime)
	if err != nil {
		return errors.Annotate(err, "cache %q: bumping dump", c.name).Err()
	}
	if newPath == "" {
		logging.Warningf(ctx, "cache %q: dump record to bump was not found, skipping", c.name)
		return nil
	}

	size := statSizeOrZero(newPath)
	duration := clock.Since(ctx, start)
	c.lastDumpedUpdate.Max(newTime)
	c.statistics.RecordDumpWrite(size, duration, start)
	logging.Infof(ctx, "cache %q: bumped dump to %s (%s, %s)", c.name, newTime, humanize.Bytes(uint64(size)), duration)
	return nil
}

// doNewDump is the dump task body that serializes the cache's current
// contents to a fresh file.
func (c *Cache) doNewDump(ctx context.Context, updateTime time.Time) error {
	if c.dumpable == nil {
		panic(&DumpUnimplementedError{Name: c.name})
	}

	start := clock.Now(ctx)

	path, err := c.store.RegisterNew(ctx, updateTime)
	if err != nil {
		return errors.Annotate(err, "cache %q: registering dump path", c.name).Err()
	}

	_, span := c.tracer.Start(ctx, fmt.Sprintf("serialize-dump/%s", c.name))
	defer span.End()

	w, err := c.codec.NewWriter(path)
	if err != nil {
		return errors.Annotate(err, "cache %q: opening dump writer", c.name).Err()
	}

	if writeErr := c.dumpable.WriteTo(w); writeErr != nil {
		// The writer has already created the file; remove it so an
		// aborted dump leaves no empty or truncated record behind.
		os.Remove(path)
		if IsEmptyCache(writeErr) {
			logging.Warningf(ctx, "cache %q: cache was empty at dump time, skipping", c.name)
			return nil
		}
		span.RecordError(writeErr)
		return errors.Annotate(writeErr, "cache %q: writing dump", c.name).Err()
	}
	if err := w.Finish(); err != nil {
		return errors.Annotate(err, "cache %q: finishing dump write", c.name).Err()
	}

	size := statSizeOrZero(path)
	if err := c.store.Cleanup(ctx); err != nil {
		logging.WithError(err).Warningf(ctx, "cache %q: dump cleanup failed", c.name)
	}

	duration := clock.Since(ctx, start)
	c.lastDumpedUpdate.Max(updateTime)
	c.statistics.RecordDumpWrite(size, duration, start)
	logging.Infof(ctx, "cache %q: wrote dump %s (%s, %s)", c.name, updateTime, humanize.Bytes(uint64(size)), duration)
	return nil
}

// loadFromDump implements LoadFromDump, called once from Start before
// the first update.
func (c *Cache) loadFromDump(ctx context.Context) (bool, error) {
	cfg := c.config.Read()
	if !cfg.DumpsEnabled || c.store == nil {
		return false, nil
	}

	record, err := c.store.Latest(ctx)
	if err != nil {
		return false, errors.Annotate(err, "cache %q: listing dump directory", c.name).Err()
	}
	if record == nil {
		return false, nil
	}

	spanCtx, span := c.tracer.Start(ctx, fmt.Sprintf("load-from-dump/%s", c.name))
	defer span.End()

	start := clock.Now(spanCtx)
	handle := c.fsExecutor.Spawn(spanCtx, "load-from-dump/"+c.name, func(taskCtx context.Context) error {
		if c.dumpable == nil {
			return &DumpUnimplementedError{Name: c.name}
		}
		r, err := c.codec.NewReader(record.Path)
		if err != nil {
			return err
		}
		if err := c.dumpable.ReadFrom(r); err != nil {
			return err
		}
		return r.Finish()
	})

	if err := handle.Get(); err != nil {
		span.RecordError(err)
		return false, errors.Annotate(err, "cache %q: loading dump %s", c.name, record.Path).Err()
	}
	duration := clock.Since(spanCtx, start)

	c.state.mu.Lock()
	c.state.lastUpdate = record.UpdateTime
	c.state.lastModifyingUpdate = record.UpdateTime
	c.state.mu.Unlock()

	c.lastDumpedUpdate.Max(record.UpdateTime)
	c.statistics.RecordDumpLoad(duration)
	logging.Infof(ctx, "cache %q: loaded dump from %s (%s) in %s", c.name, record.Path, humanize.Time(record.UpdateTime), duration)

	return true, nil
}

func statSizeOrZero(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
