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

package configyaml

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"go.chromium.org/luci-cache/cache/config"
)

func TestLoadFullDocument(t *testing.T) {
	t.Parallel()

	Convey("Load decodes every field of a fully populated document", t, func() {
		doc := []byte(`
update_interval: 1m
update_jitter: 10s
full_update_interval: 1h
allowed_update_types: full_and_incremental
first_update_mode: best_effort
force_full_second_update: true
cleanup_interval: 10m
dumps_enabled: true
min_dump_interval: 5m
dump_retention_count: 3
allow_first_update_failure: true
`)
		static, err := Load(doc)
		So(err, ShouldBeNil)

		So(static.UpdateInterval, ShouldEqual, time.Minute)
		So(static.UpdateJitter, ShouldEqual, 10*time.Second)
		So(static.FullUpdateInterval, ShouldEqual, time.Hour)
		So(static.AllowedUpdateTypes, ShouldEqual, config.FullAndIncremental)
		So(static.FirstUpdateMode, ShouldEqual, config.BestEffort)
		So(static.ForceFullSecondUpdate, ShouldBeTrue)
		So(static.CleanupInterval, ShouldEqual, 10*time.Minute)
		So(static.DumpsEnabled, ShouldBeTrue)
		So(static.MinDumpInterval, ShouldEqual, 5*time.Minute)
		So(static.DumpRetentionCount, ShouldEqual, 3)
		So(static.AllowFirstUpdateFailure, ShouldBeTrue)
	})
}

func TestLoadEmptyDocumentDefaults(t *testing.T) {
	t.Parallel()

	Convey("Load on an empty document yields zero durations and the default enum values", t, func() {
		static, err := Load([]byte(``))
		So(err, ShouldBeNil)
		So(static.UpdateInterval, ShouldEqual, time.Duration(0))
		So(static.AllowedUpdateTypes, ShouldEqual, config.OnlyFull)
		So(static.FirstUpdateMode, ShouldEqual, config.Required)
		So(static.DumpsEnabled, ShouldBeFalse)
	})
}

func TestLoadInvalidDurationErrors(t *testing.T) {
	t.Parallel()

	Convey("Load rejects a duration string time.ParseDuration can't parse", t, func() {
		_, err := Load([]byte("update_interval: not-a-duration\n"))
		So(err, ShouldNotBeNil)
	})
}

func TestLoadInvalidYAMLErrors(t *testing.T) {
	t.Parallel()

	Convey("Load rejects malformed YAML", t, func() {
		_, err := Load([]byte("update_interval: [1, 2\n"))
		So(err, ShouldNotBeNil)
	})
}

func TestParseAllowedUpdateTypesUnknownDefaultsToOnlyFull(t *testing.T) {
	t.Parallel()

	Convey("An unrecognized allowed_update_types value defaults to only_full", t, func() {
		static, err := Load([]byte("allowed_update_types: something_else\n"))
		So(err, ShouldBeNil)
		So(static.AllowedUpdateTypes, ShouldEqual, config.OnlyFull)
	})
}

func TestParseFirstUpdateModeUnknownDefaultsToRequired(t *testing.T) {
	t.Parallel()

	Convey("An unrecognized first_update_mode value defaults to required", t, func() {
		static, err := Load([]byte("first_update_mode: something_else\n"))
		So(err, ShouldBeNil)
		So(static.FirstUpdateMode, ShouldEqual, config.Required)
	})
}
