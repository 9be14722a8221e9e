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

// Package stats implements component E of the cache engine: the
// counters and gauges a metrics exporter periodically reads, backed by
// OpenTelemetry instruments.
package stats

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"go.chromium.org/luci-cache/common/clock"
)

// Kind distinguishes a full rebuild from an incremental delta update.
type Kind int

const (
	Full Kind = iota
	Incremental
)

func (k Kind) String() string {
	if k == Full {
		return "full"
	}
	return "incremental"
}

// counters holds the success/failure tallies for one update Kind, or
// for "any" (the sum of both kinds).
type counters struct {
	success atomic.Int64
	failure atomic.Int64
}

func (c *counters) add(err error) {
	if err != nil {
		c.failure.Add(1)
	} else {
		c.success.Add(1)
	}
}

// Snapshot is a point-in-time render of Statistics, suitable for a
// metrics exporter or a debug endpoint.
type Snapshot struct {
	FullSuccess, FullFailure               int64
	IncrementalSuccess, IncrementalFailure int64
	AnySuccess, AnyFailure                 int64

	DocumentsCurrentCount int64

	DumpLastWrittenSize             int64
	DumpLastNontrivialWriteDuration time.Duration
	DumpLastNontrivialWriteStart    time.Time
	DumpIsLoaded                    bool
	DumpIsCurrentFromDump           bool
	DumpLoadDuration                time.Duration
}

// Statistics is one cache's full set of counters and gauges. It is safe
// for concurrent use; every field is updated via atomics so a metrics
// exporter can read a Snapshot without contending with update ticks.
type Statistics struct {
	name string

	full        counters
	incremental counters

	documentsCurrentCount atomic.Int64

	dumpLastWrittenSize             atomic.Int64
	dumpLastNontrivialWriteDuration atomic.Int64 // nanoseconds
	dumpLastNontrivialWriteStart    atomic.Int64 // unix nanoseconds
	dumpIsLoaded                    atomic.Bool
	dumpIsCurrentFromDump           atomic.Bool
	dumpLoadDuration                atomic.Int64 // nanoseconds

	instruments *instruments // nil if constructed without a Meter
}

// New returns a Statistics for the cache named name. If meter is
// non-nil, per-kind counters and gauges are additionally registered
// with it as the "cache.*" instruments, each observation tagged with a
// cache_name attribute.
func New(meter otelmetric.Meter, name string) (*Statistics, error) {
	s := &Statistics{name: name}
	if meter == nil {
		return s, nil
	}
	inst, err := newInstruments(meter, s)
	if err != nil {
		return nil, err
	}
	s.instruments = inst
	return s, nil
}

// Name returns the cache name this Statistics was created for.
func (s *Statistics) Name() string { return s.name }

// Begin opens an update scope for kind, to be closed with Finish once
// the user's Update capability returns.
func (s *Statistics) Begin(ctx context.Context, kind Kind) *UpdateScope {
	return &UpdateScope{stats: s, kind: kind, start: clock.Now(ctx)}
}

// SetDocumentsCurrentCount reports the cache's current document count,
// as surfaced through the Update capability's stats argument.
func (s *Statistics) SetDocumentsCurrentCount(n int64) {
	s.documentsCurrentCount.Store(n)
}

// RecordDumpWrite records a completed (successful) dump write.
func (s *Statistics) RecordDumpWrite(size int64, duration time.Duration, start time.Time) {
	s.dumpLastWrittenSize.Store(size)
	s.dumpLastNontrivialWriteDuration.Store(int64(duration))
	s.dumpLastNontrivialWriteStart.Store(start.UnixNano())
	s.dumpIsCurrentFromDump.Store(false)
}

// RecordDumpLoad records a completed dump load.
func (s *Statistics) RecordDumpLoad(duration time.Duration) {
	s.dumpIsLoaded.Store(true)
	s.dumpIsCurrentFromDump.Store(true)
	s.dumpLoadDuration.Store(int64(duration))
}

// ClearCurrentFromDump marks that a real update has since overwritten
// the dump-loaded contents.
func (s *Statistics) ClearCurrentFromDump() {
	s.dumpIsCurrentFromDump.Store(false)
}

// Snapshot renders the current values of every counter and gauge.
func (s *Statistics) Snapshot() Snapshot {
	return Snapshot{
		FullSuccess:        s.full.success.Load(),
		FullFailure:        s.full.failure.Load(),
		IncrementalSuccess: s.incremental.success.Load(),
		IncrementalFailure: s.incremental.failure.Load(),
		AnySuccess:         s.full.success.Load() + s.incremental.success.Load(),
		AnyFailure:         s.full.failure.Load() + s.incremental.failure.Load(),

		DocumentsCurrentCount: s.documentsCurrentCount.Load(),

		DumpLastWrittenSize:             s.dumpLastWrittenSize.Load(),
		DumpLastNontrivialWriteDuration: time.Duration(s.dumpLastNontrivialWriteDuration.Load()),
		DumpLastNontrivialWriteStart:    unixNanoOrZero(s.dumpLastNontrivialWriteStart.Load()),
		DumpIsLoaded:                    s.dumpIsLoaded.Load(),
		DumpIsCurrentFromDump:           s.dumpIsCurrentFromDump.Load(),
		DumpLoadDuration:                time.Duration(s.dumpLoadDuration.Load()),
	}
}

func unixNanoOrZero(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// UpdateScope tracks one in-flight update: constructed when the user's
// Update capability is invoked, closed with Finish when it returns.
type UpdateScope struct {
	stats *Statistics
	kind  Kind
	start time.Time
}

// Kind returns the update type this scope was opened for.
func (u *UpdateScope) Kind() Kind { return u.kind }

// SetDocumentsCurrentCount lets the Update capability report the
// resulting document count directly through the scope it was handed.
func (u *UpdateScope) SetDocumentsCurrentCount(n int64) {
	u.stats.SetDocumentsCurrentCount(n)
}

// Finish records success or failure for this scope's Kind and the
// combined "any" counters, and reports the instruments if configured.
func (u *UpdateScope) Finish(ctx context.Context, err error) {
	switch u.kind {
	case Full:
		u.stats.full.add(err)
	default:
		u.stats.incremental.add(err)
	}
	if u.stats.instruments != nil {
		u.stats.instruments.recordUpdate(ctx, u.kind, err)
	}
}

// instruments bundles the OpenTelemetry instruments backing one
// Statistics, so New only pays the registration cost when a Meter is
// actually supplied (e.g. tests typically pass nil).
type instruments struct {
	updateCounter  otelmetric.Int64Counter
	dumpSizeGauge  otelmetric.Int64ObservableGauge
	documentsGauge otelmetric.Int64ObservableGauge
	loadedGauge    otelmetric.Int64ObservableGauge
	fromDumpGauge  otelmetric.Int64ObservableGauge
	nameAttr       attribute.KeyValue
}

func newInstruments(meter otelmetric.Meter, s *Statistics) (*instruments, error) {
	nameAttr := attribute.String("cache_name", s.name)

	updateCounter, err := meter.Int64Counter(
		"cache.update.count",
		otelmetric.WithDescription("Count of cache update attempts, by kind and outcome"),
	)
	if err != nil {
		return nil, err
	}

	inst := &instruments{updateCounter: updateCounter, nameAttr: nameAttr}

	inst.documentsGauge, err = meter.Int64ObservableGauge(
		"cache.documents_current_count",
		otelmetric.WithDescription("Current number of documents held by the cache"),
		otelmetric.WithInt64Callback(func(_ context.Context, o otelmetric.Int64Observer) error {
			o.Observe(s.documentsCurrentCount.Load(), otelmetric.WithAttributes(nameAttr))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	inst.dumpSizeGauge, err = meter.Int64ObservableGauge(
		"cache.dump.last_written_size_bytes",
		otelmetric.WithDescription("Size in bytes of the most recent dump write"),
		otelmetric.WithInt64Callback(func(_ context.Context, o otelmetric.Int64Observer) error {
			o.Observe(s.dumpLastWrittenSize.Load(), otelmetric.WithAttributes(nameAttr))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	inst.loadedGauge, err = meter.Int64ObservableGauge(
		"cache.dump.is_loaded",
		otelmetric.WithDescription("1 if this cache has ever successfully loaded a dump"),
		otelmetric.WithInt64Callback(func(_ context.Context, o otelmetric.Int64Observer) error {
			o.Observe(boolToInt64(s.dumpIsLoaded.Load()), otelmetric.WithAttributes(nameAttr))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	inst.fromDumpGauge, err = meter.Int64ObservableGauge(
		"cache.dump.is_current_from_dump",
		otelmetric.WithDescription("1 if the cache's current contents came from a dump, not a live update"),
		otelmetric.WithInt64Callback(func(_ context.Context, o otelmetric.Int64Observer) error {
			o.Observe(boolToInt64(s.dumpIsCurrentFromDump.Load()), otelmetric.WithAttributes(nameAttr))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return inst, nil
}

func (i *instruments) recordUpdate(ctx context.Context, kind Kind, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	i.updateCounter.Add(ctx, 1, otelmetric.WithAttributes(
		i.nameAttr,
		attribute.String("kind", kind.String()),
		attribute.String("outcome", outcome),
	))
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
