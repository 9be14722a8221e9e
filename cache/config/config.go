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

// Package config holds the tunables that govern a cache's refresh and
// dump schedule (component A of the cache engine), and View, the
// lock-free, hot-reloadable snapshot the engine reads them through.
package config

import (
	"sync/atomic"
	"time"
)

// AllowedUpdateTypes constrains which kinds of update DoPeriodicUpdate
// may choose.
type AllowedUpdateTypes int

const (
	// OnlyFull means every update is a full rebuild.
	OnlyFull AllowedUpdateTypes = iota
	// OnlyIncremental means every update is incremental (except the very
	// first, which is always full because there is nothing to apply a
	// delta to yet).
	OnlyIncremental
	// FullAndIncremental means the engine picks based on how long it's
	// been since the last full update, per FullUpdateInterval.
	FullAndIncremental
)

func (a AllowedUpdateTypes) String() string {
	switch a {
	case OnlyFull:
		return "only-full"
	case OnlyIncremental:
		return "only-incremental"
	case FullAndIncremental:
		return "full-and-incremental"
	default:
		return "unknown"
	}
}

// FirstUpdateMode controls how Start's synchronous first update
// interacts with a successful dump load.
type FirstUpdateMode int

const (
	// Required means the first update must succeed even if a dump was
	// loaded; its failure propagates out of Start unless
	// StaticConfig.AllowFirstUpdateFailure is set.
	Required FirstUpdateMode = iota
	// BestEffort means a first-update failure after a successful dump
	// load is tolerated: the engine keeps running with the dump's
	// contents.
	BestEffort
	// Skip means the synchronous first update is skipped entirely if a
	// dump was loaded.
	Skip
)

func (m FirstUpdateMode) String() string {
	switch m {
	case Required:
		return "required"
	case BestEffort:
		return "best-effort"
	case Skip:
		return "skip"
	default:
		return "unknown"
	}
}

// Config is the hot-reloadable half of a cache's tunables.
type Config struct {
	// UpdateInterval is the nominal period between periodic updates.
	UpdateInterval time.Duration
	// UpdateJitter is the maximum random offset applied to each
	// UpdateInterval tick, to avoid every cache in a fleet refreshing in
	// lockstep.
	UpdateJitter time.Duration
	// FullUpdateInterval is, for FullAndIncremental caches, how long may
	// elapse since the last full update before an incremental is
	// upgraded to full.
	FullUpdateInterval time.Duration
	// AllowedUpdateTypes constrains update-type selection.
	AllowedUpdateTypes AllowedUpdateTypes
	// FirstUpdateMode controls Start's synchronous first update.
	FirstUpdateMode FirstUpdateMode
	// ForceFullSecondUpdate, combined with OnlyIncremental and a
	// successful dump load, forces the first post-load scheduled update
	// to run as Full.
	ForceFullSecondUpdate bool
	// CleanupInterval is the period of the cleanup task.
	CleanupInterval time.Duration
	// DumpsEnabled turns on persistence: dump writes, bumps and loads.
	DumpsEnabled bool
	// MinDumpInterval is the minimum wall-clock time that must elapse
	// between two on-disk dumps taken via the HonorInterval path (a
	// forced dump ignores it).
	MinDumpInterval time.Duration
	// DumpRetentionCount is how many dump files Cleanup keeps.
	DumpRetentionCount int
}

// StaticConfig holds tunables that are fixed at construction and never
// hot-reloaded, because changing them mid-flight would be meaningless or
// unsafe (e.g. changing whether a first-update failure is tolerated
// after the process has already decided how to react to one).
type StaticConfig struct {
	Config

	// AllowFirstUpdateFailure, if true, tolerates the synchronous first
	// update failing even when no dump was loaded: the cache starts
	// empty rather than propagating the error out of Start.
	AllowFirstUpdateFailure bool
}

// MergeWith returns base with every non-zero field of override applied
// on top. A zero-valued field in override (0, "", false, or an
// unrecognized enum's zero constant) means "not set" and leaves base's
// value untouched; there is no way for an override to explicitly reset a
// field back to its own zero value. Used by View.Assign(nil) to reset to
// defaults, and by View.Assign(cfg) to apply a partial override coming
// from a dynamic-configuration source on top of the static defaults.
func (base Config) MergeWith(override *Config) Config {
	if override == nil {
		return base
	}
	merged := base
	if override.UpdateInterval != 0 {
		merged.UpdateInterval = override.UpdateInterval
	}
	if override.UpdateJitter != 0 {
		merged.UpdateJitter = override.UpdateJitter
	}
	if override.FullUpdateInterval != 0 {
		merged.FullUpdateInterval = override.FullUpdateInterval
	}
	if override.AllowedUpdateTypes != 0 {
		merged.AllowedUpdateTypes = override.AllowedUpdateTypes
	}
	if override.FirstUpdateMode != 0 {
		merged.FirstUpdateMode = override.FirstUpdateMode
	}
	if override.ForceFullSecondUpdate {
		merged.ForceFullSecondUpdate = override.ForceFullSecondUpdate
	}
	if override.CleanupInterval != 0 {
		merged.CleanupInterval = override.CleanupInterval
	}
	if override.DumpsEnabled {
		merged.DumpsEnabled = override.DumpsEnabled
	}
	if override.MinDumpInterval != 0 {
		merged.MinDumpInterval = override.MinDumpInterval
	}
	if override.DumpRetentionCount != 0 {
		merged.DumpRetentionCount = override.DumpRetentionCount
	}
	return merged
}

// View atomically publishes the current Config snapshot. Reads are
// lock-free; writes (Assign) are rare and expected to come from a
// dynamic-configuration subsystem external to this module.
//
// A single logical operation must call Read once and reuse the returned
// snapshot throughout, so it observes a consistent set of tunables even
// if Assign races with it.
type View struct {
	static  StaticConfig
	current atomic.Pointer[Config]
}

// NewView creates a View seeded with static as both the static defaults
// and the initial live config.
func NewView(static StaticConfig) *View {
	v := &View{static: static}
	cfg := static.Config
	v.current.Store(&cfg)
	return v
}

// Read returns the current Config snapshot. The returned pointer is
// immutable and safe to retain for the duration of one logical
// operation.
func (v *View) Read() *Config {
	return v.current.Load()
}

// Static returns the cache's immutable, construction-time configuration.
func (v *View) Static() StaticConfig {
	return v.static
}

// Assign hot-reloads the live config. Passing nil resets to the static
// defaults; a non-nil cfg is merged field-by-field over the static
// defaults.
func (v *View) Assign(cfg *Config) {
	merged := v.static.Config.MergeWith(cfg)
	v.current.Store(&merged)
}

// CleanupStaleSnapshots is a hook point matching the interface named in
// the engine's external contract with the dynamic-configuration
// subsystem. This module does not itself retain snapshots beyond the
// lifetime of one operation, so it has nothing to prune; the hook exists
// so a caller wiring a real config subsystem in has a symmetric place to
// call.
func (v *View) CleanupStaleSnapshots() {}
