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

// Package cache implements the periodic refresh and dump-persistence
// engine that drives a single named in-memory cache: it schedules full
// and incremental updates, writes and loads on-disk dumps, and exposes
// statistics, all coordinated through a small state machine (Cache).
//
// A cache's own data structure and refresh logic are external to this
// package, plugged in as a Capability.
package cache

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"go.chromium.org/luci-cache/cache/config"
	"go.chromium.org/luci-cache/cache/dump"
	"go.chromium.org/luci-cache/cache/periodic"
	"go.chromium.org/luci-cache/cache/stats"
	"go.chromium.org/luci-cache/common/clock"
	"go.chromium.org/luci-cache/common/errors"
	"go.chromium.org/luci-cache/common/logging"
)

// StartFlags modify Start's behavior.
type StartFlags uint8

const (
	// NoFirstUpdate skips the synchronous first update when periodic
	// updates are enabled, leaving the cache to populate on its first
	// scheduled tick instead. It has no effect if periodic updates are
	// disabled (UpdateInterval == 0): the first update always runs then,
	// since it would otherwise be the cache's only chance to populate.
	NoFirstUpdate StartFlags = 1 << iota
)

func (f StartFlags) has(bit StartFlags) bool { return f&bit != 0 }

// Params configures a new Cache. Name and Capability are required.
type Params struct {
	// Name identifies the cache in logs, traces and statistics. Must be
	// unique process-wide.
	Name string
	// Capability is the user-provided cache implementation.
	Capability Capability
	// Config is the cache's construction-time tunables. Config.DumpsEnabled
	// requires both DumpDir and a Capability implementing Dumpable.
	Config config.StaticConfig
	// DumpDir is the on-disk directory dumps are read from and written
	// to. Required if Config.DumpsEnabled is true.
	DumpDir string
	// Codec serializes/deserializes dumps. Required if Config.DumpsEnabled
	// is true; defaults are not assumed, since the wire format is a
	// deliberate per-cache choice (see dump.MsgpackCodec for a ready one).
	Codec dump.Codec
	// FSExecutorWidth bounds how many dump/load operations this Cache's
	// own filesystem executor runs at once. Zero means 1 (the
	// conservative default: this cache's dumps never contend with each
	// other for disk bandwidth). Each Cache builds its own executor in
	// New; executors are not shared between Caches.
	FSExecutorWidth int64
	// Meter, if non-nil, registers this cache's counters and gauges with
	// an OpenTelemetry Meter. Nil is fine for tests.
	Meter otelmetric.Meter
	// Tracer, if non-nil, is used for the engine's tracing scopes. If
	// nil, a Tracer is obtained from the global otel provider.
	Tracer trace.Tracer
}

// Cache is one named cache's engine: the state machine coordinating
// updates, dumps and statistics for it.
type Cache struct {
	name       string
	capability Capability
	dumpable   Dumpable // nil if capability does not implement Dumpable

	config     *config.View
	statistics *stats.Statistics
	store      *dump.Store // nil if DumpDir was not configured
	codec      dump.Codec
	fsExecutor *periodic.FSExecutor
	tracer     trace.Tracer

	updateTask  *periodic.Task
	cleanupTask *periodic.Task

	state            updateState
	lastDumpedUpdate atomicTimestamp

	running atomic.Bool
}

// New constructs a Cache from p. It does not start any background work;
// call Start for that.
func New(p Params) (*Cache, error) {
	if p.Name == "" {
		return nil, errors.New("cache: Params.Name is required")
	}
	if p.Capability == nil {
		return nil, errors.New("cache: Params.Capability is required")
	}
	if p.Config.DumpsEnabled && p.DumpDir == "" {
		return nil, errors.Reason("cache %q: DumpsEnabled requires DumpDir", p.Name).Err()
	}

	statistics, err := stats.New(p.Meter, p.Name)
	if err != nil {
		return nil, errors.Annotate(err, "cache %q: creating statistics", p.Name).Err()
	}

	var store *dump.Store
	if p.DumpDir != "" {
		store = dump.NewStore(p.DumpDir, p.Config.DumpRetentionCount)
	}

	width := p.FSExecutorWidth
	if width == 0 {
		width = 1
	}

	tracer := p.Tracer
	if tracer == nil {
		tracer = otel.Tracer("go.chromium.org/luci-cache/cache")
	}

	dumpable, _ := p.Capability.(Dumpable)

	return &Cache{
		name:        p.Name,
		capability:  p.Capability,
		dumpable:    dumpable,
		config:      config.NewView(p.Config),
		statistics:  statistics,
		store:       store,
		codec:       p.Codec,
		fsExecutor:  periodic.NewFSExecutor(width),
		tracer:      tracer,
		updateTask:  periodic.NewTask(p.Name + "-update"),
		cleanupTask: periodic.NewTask(p.Name + "-cleanup"),
	}, nil
}

// Name returns the cache's name.
func (c *Cache) Name() string { return c.name }

// Statistics returns the counters and gauges this Cache maintains.
func (c *Cache) Statistics() *stats.Statistics { return c.statistics }

// IsRunning reports whether Start has completed successfully and Stop
// has not yet been called.
func (c *Cache) IsRunning() bool { return c.running.Load() }

// MustBeRunning panics with a NotRunningError if the engine is not
// currently running. Intended for a Capability's own request-handling
// paths that only make sense once Start has returned successfully.
func (c *Cache) MustBeRunning() {
	if !c.running.Load() {
		panic(&NotRunningError{Name: c.name})
	}
}

// AllowedUpdateTypes returns the cache's currently configured
// AllowedUpdateTypes without triggering an update.
func (c *Cache) AllowedUpdateTypes(context.Context) config.AllowedUpdateTypes {
	return c.config.Read().AllowedUpdateTypes
}

// SetConfig hot-reloads the cache's live tunables: nil resets to the
// static defaults, a non-nil cfg is merged field-by-field over them.
// The periodic update and cleanup tasks' schedules are then updated to
// match, as separate steps: the config and the two schedules are not
// swapped as one atomic unit, so a concurrent reader can see the new
// config before the schedules change. A tick already in flight keeps
// the settings snapshot it started with.
func (c *Cache) SetConfig(cfg *config.Config) {
	c.config.Assign(cfg)
	view := c.config.Read()

	updateFlags := periodic.Critical
	c.updateTask.SetSettings(periodic.Settings{
		Interval: view.UpdateInterval,
		Jitter:   view.UpdateJitter,
		Flags:    updateFlags,
	})
	c.cleanupTask.SetSettings(periodic.Settings{
		Interval: view.CleanupInterval,
		Flags:    periodic.Chaotic,
	})
}

// Start attempts a dump load, then a synchronous first update, then
// arms the periodic update and cleanup tasks. Calling Start on an
// already-running Cache is a no-op. If the first update fails and
// policy says the failure must propagate, Start returns that error and
// leaves the Cache not running.
func (c *Cache) Start(ctx context.Context, flags StartFlags) (err error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil
	}
	defer func() {
		if err != nil {
			c.running.Store(false)
		}
	}()

	static := c.config.Static()
	cfg := c.config.Read()
	periodicUpdatesEnabled := cfg.UpdateInterval > 0

	dumpLoaded, loadErr := c.loadFromDump(ctx)
	if loadErr != nil {
		logging.WithError(loadErr).Warningf(ctx, "cache %q: dump load failed, starting cold", c.name)
		dumpLoaded = false
	}

	skipFirstUpdate := (dumpLoaded && cfg.FirstUpdateMode == config.Skip) ||
		(flags.has(NoFirstUpdate) && periodicUpdatesEnabled)

	if !skipFirstUpdate {
		spanCtx, span := c.tracer.Start(ctx, fmt.Sprintf("first-update/%s", c.name))
		updateErr := c.DoPeriodicUpdate(spanCtx)
		span.End()

		if updateErr != nil {
			switch {
			case dumpLoaded && cfg.FirstUpdateMode != config.Required:
				logging.WithError(updateErr).Warningf(ctx, "cache %q: first update failed after dump load, continuing with dump contents", c.name)
			case static.AllowFirstUpdateFailure:
				logging.WithError(updateErr).Warningf(ctx, "cache %q: first update failed, continuing with empty cache", c.name)
			default:
				return errors.Annotate(updateErr, "cache %q: first update failed", c.name).Err()
			}
		}
	}

	forceFullNextTick := false
	if dumpLoaded && cfg.AllowedUpdateTypes == config.OnlyIncremental && cfg.ForceFullSecondUpdate {
		c.state.mu.Lock()
		c.state.forceNextUpdateFull = true
		c.state.mu.Unlock()
		forceFullNextTick = true
	}

	if periodicUpdatesEnabled {
		settings := periodic.Settings{Interval: cfg.UpdateInterval, Jitter: cfg.UpdateJitter, Flags: periodic.Critical}
		if forceFullNextTick {
			settings.Flags |= periodic.Now
		}
		c.updateTask.Start(ctx, settings, c.tick)
	}
	if cfg.CleanupInterval > 0 {
		c.cleanupTask.Start(ctx, periodic.Settings{Interval: cfg.CleanupInterval, Flags: periodic.Chaotic}, c.cleanupTick)
	}

	return nil
}

// Stop halts the periodic tasks and, if a dump is in flight, requests
// its cancellation and awaits it. Calling Stop on an already-stopped or
// never-started Cache is a no-op. Stop absorbs all errors; it never
// returns one, since shutdown is expected to make a best effort and log
// rather than fail.
func (c *Cache) Stop(ctx context.Context) {
	if !c.running.CompareAndSwap(true, false) {
		return
	}

	c.updateTask.Stop()
	c.cleanupTask.Stop()

	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	if c.state.dumpTask.IsValid() {
		c.state.dumpTask.RequestCancel()
		if err := c.state.dumpTask.Get(); err != nil {
			logging.WithError(err).Warningf(ctx, "cache %q: in-flight dump task failed while stopping", c.name)
		}
	}
}

func (c *Cache) tick(ctx context.Context) error {
	return c.DoPeriodicUpdate(ctx)
}

func (c *Cache) cleanupTick(ctx context.Context) error {
	spanCtx, span := c.tracer.Start(ctx, fmt.Sprintf("cleanup/%s", c.name))
	defer span.End()
	return c.capability.Cleanup(spanCtx)
}

// DoPeriodicUpdate runs one update tick: it selects the update type from
// the live config and current state, invokes the Capability, and
// dispatches a dump if one is due. It is also what Start's synchronous
// first update runs. A dump is attempted whether or not the update
// itself succeeded: a failed update can still leave a due, unchanged
// dump worth bumping.
func (c *Cache) DoPeriodicUpdate(ctx context.Context) error {
	cfg := c.config.Read()

	c.state.mu.Lock()
	defer c.state.mu.Unlock()

	forceFull := c.state.exchangeForceFullLocked() || c.state.lastUpdate.IsZero()
	kind := c.selectKindLocked(ctx, cfg, forceFull)

	updateErr := c.doUpdateLocked(ctx, cfg, kind)
	c.dumpAsyncIfNeededLocked(ctx, cfg, honorInterval)
	return updateErr
}

// Update forces an update of the requested kind, taken verbatim except
// that requesting Incremental on an OnlyFull cache is upgraded to Full.
// It is the engine's test/debug hook for triggering an update outside
// its normal schedule.
func (c *Cache) Update(ctx context.Context, requested stats.Kind) error {
	cfg := c.config.Read()
	if requested == stats.Incremental && cfg.AllowedUpdateTypes == config.OnlyFull {
		requested = stats.Full
	}

	c.state.mu.Lock()
	defer c.state.mu.Unlock()

	return c.doUpdateLocked(ctx, cfg, requested)
}

// DumpSyncDebug forces a dump (bypassing MinDumpInterval) and waits for
// it to finish. It is a test/debug hook; production code should let the
// engine dump on its own schedule.
func (c *Cache) DumpSyncDebug(ctx context.Context) error {
	cfg := c.config.Read()

	task := func() *periodic.TaskHandle {
		c.state.mu.Lock()
		defer c.state.mu.Unlock()
		c.dumpAsyncIfNeededLocked(ctx, cfg, forced)
		return c.state.dumpTask
	}()

	return task.Get()
}

func (c *Cache) selectKindLocked(ctx context.Context, cfg *config.Config, forceFull bool) stats.Kind {
	if forceFull {
		return stats.Full
	}
	switch cfg.AllowedUpdateTypes {
	case config.OnlyFull:
		return stats.Full
	case config.OnlyIncremental:
		return stats.Incremental
	default: // FullAndIncremental
		if clock.Since(ctx, c.state.lastFullUpdate) < cfg.FullUpdateInterval {
			return stats.Incremental
		}
		return stats.Full
	}
}

func (c *Cache) doUpdateLocked(ctx context.Context, cfg *config.Config, kind stats.Kind) error {
	now := clock.Now(ctx)

	spanCtx, span := c.tracer.Start(ctx, fmt.Sprintf("update/%s/%s", c.name, kind))
	defer span.End()

	scope := c.statistics.Begin(spanCtx, kind)
	uc := &updateContext{kind: kind, lastUpdate: c.state.lastUpdate, now: now, scope: scope}

	err := c.capability.Update(spanCtx, uc)
	scope.Finish(spanCtx, err)

	if err != nil {
		span.RecordError(err)
		logging.WithError(err).Errorf(ctx, "cache %q: %s update failed", c.name, kind)
		return errors.Annotate(err, "cache %q: %s update", c.name, kind).Err()
	}

	c.state.lastUpdate = now
	if uc.modified {
		c.state.lastModifyingUpdate = now
	}
	if kind == stats.Full {
		c.state.lastFullUpdate = now
	}
	c.statistics.ClearCurrentFromDump()
	return nil
}
