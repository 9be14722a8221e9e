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

package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"go.chromium.org/luci-cache/common/clock/testclock"
)

func TestBeginFinishRecordsSuccessAndFailurePerKind(t *testing.T) {
	t.Parallel()

	Convey("Begin/Finish tally success and failure separately per Kind", t, func() {
		ctx, _ := testclock.UseTime(context.Background(), testclock.TestRecentTimeUTC)
		s, err := New(nil, "test-cache")
		So(err, ShouldBeNil)

		s.Begin(ctx, Full).Finish(ctx, nil)
		s.Begin(ctx, Full).Finish(ctx, errors.New("boom"))
		s.Begin(ctx, Incremental).Finish(ctx, nil)

		snap := s.Snapshot()
		So(snap.FullSuccess, ShouldEqual, 1)
		So(snap.FullFailure, ShouldEqual, 1)
		So(snap.IncrementalSuccess, ShouldEqual, 1)
		So(snap.IncrementalFailure, ShouldEqual, 0)
		So(snap.AnySuccess, ShouldEqual, 2)
		So(snap.AnyFailure, ShouldEqual, 1)
	})
}

func TestSetDocumentsCurrentCountThroughScope(t *testing.T) {
	t.Parallel()

	Convey("A scope's SetDocumentsCurrentCount reaches the owning Statistics", t, func() {
		ctx, _ := testclock.UseTime(context.Background(), testclock.TestRecentTimeUTC)
		s, err := New(nil, "test-cache")
		So(err, ShouldBeNil)

		scope := s.Begin(ctx, Full)
		scope.SetDocumentsCurrentCount(42)
		scope.Finish(ctx, nil)

		So(s.Snapshot().DocumentsCurrentCount, ShouldEqual, 42)
	})
}

func TestRecordDumpWriteAndLoad(t *testing.T) {
	t.Parallel()

	Convey("RecordDumpWrite and RecordDumpLoad update the dump gauges", t, func() {
		s, err := New(nil, "test-cache")
		So(err, ShouldBeNil)

		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		s.RecordDumpWrite(1024, 5*time.Second, start)

		snap := s.Snapshot()
		So(snap.DumpLastWrittenSize, ShouldEqual, 1024)
		So(snap.DumpLastNontrivialWriteDuration, ShouldEqual, 5*time.Second)
		So(snap.DumpLastNontrivialWriteStart.Equal(start), ShouldBeTrue)
		So(snap.DumpIsCurrentFromDump, ShouldBeFalse)

		s.RecordDumpLoad(2 * time.Second)
		snap = s.Snapshot()
		So(snap.DumpIsLoaded, ShouldBeTrue)
		So(snap.DumpIsCurrentFromDump, ShouldBeTrue)
		So(snap.DumpLoadDuration, ShouldEqual, 2*time.Second)

		s.ClearCurrentFromDump()
		So(s.Snapshot().DumpIsCurrentFromDump, ShouldBeFalse)
	})
}

func TestNewWithNilMeterSkipsInstruments(t *testing.T) {
	t.Parallel()

	Convey("New with a nil Meter still returns a usable Statistics", t, func() {
		s, err := New(nil, "test-cache")
		So(err, ShouldBeNil)
		So(s.Name(), ShouldEqual, "test-cache")
		So(func() { s.Begin(context.Background(), Full).Finish(context.Background(), nil) }, ShouldNotPanic)
	})
}

func TestKindString(t *testing.T) {
	t.Parallel()

	Convey("Kind.String distinguishes full from incremental", t, func() {
		So(Full.String(), ShouldEqual, "full")
		So(Incremental.String(), ShouldEqual, "incremental")
	})
}
