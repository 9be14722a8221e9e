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

package config

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMergeWithNilResetsToBase(t *testing.T) {
	t.Parallel()

	Convey("MergeWith(nil) returns the base unchanged", t, func() {
		base := Config{UpdateInterval: time.Minute, AllowedUpdateTypes: FullAndIncremental}
		So(base.MergeWith(nil), ShouldResemble, base)
	})
}

func TestMergeWithOverridesNonZeroDurations(t *testing.T) {
	t.Parallel()

	Convey("MergeWith only replaces duration fields the override sets", t, func() {
		base := Config{
			UpdateInterval:     time.Minute,
			FullUpdateInterval: time.Hour,
			MinDumpInterval:    5 * time.Minute,
		}
		override := &Config{UpdateInterval: 30 * time.Second}

		merged := base.MergeWith(override)
		So(merged.UpdateInterval, ShouldEqual, 30*time.Second)
		So(merged.FullUpdateInterval, ShouldEqual, time.Hour)
		So(merged.MinDumpInterval, ShouldEqual, 5*time.Minute)
	})
}

func TestMergeWithGuardsEnumsAndBoolsOnZero(t *testing.T) {
	t.Parallel()

	Convey("A zero-valued override leaves base's enum and bool fields untouched", t, func() {
		base := Config{
			AllowedUpdateTypes:    FullAndIncremental,
			FirstUpdateMode:       BestEffort,
			ForceFullSecondUpdate: true,
			DumpsEnabled:          true,
		}
		override := &Config{
			AllowedUpdateTypes:    OnlyFull, // the zero AllowedUpdateTypes value
			FirstUpdateMode:       Required, // the zero FirstUpdateMode value
			ForceFullSecondUpdate: false,
			DumpsEnabled:          false,
		}

		merged := base.MergeWith(override)
		So(merged.AllowedUpdateTypes, ShouldEqual, FullAndIncremental)
		So(merged.FirstUpdateMode, ShouldEqual, BestEffort)
		So(merged.ForceFullSecondUpdate, ShouldBeTrue)
		So(merged.DumpsEnabled, ShouldBeTrue)
	})
}

func TestMergeWithAppliesNonZeroEnumsAndBools(t *testing.T) {
	t.Parallel()

	Convey("A non-zero override replaces base's enum and bool fields", t, func() {
		base := Config{
			AllowedUpdateTypes: OnlyFull,
			FirstUpdateMode:    Required,
			DumpsEnabled:       false,
		}
		override := &Config{
			AllowedUpdateTypes:    OnlyIncremental,
			FirstUpdateMode:       Skip,
			ForceFullSecondUpdate: true,
			DumpsEnabled:          true,
		}

		merged := base.MergeWith(override)
		So(merged.AllowedUpdateTypes, ShouldEqual, OnlyIncremental)
		So(merged.FirstUpdateMode, ShouldEqual, Skip)
		So(merged.ForceFullSecondUpdate, ShouldBeTrue)
		So(merged.DumpsEnabled, ShouldBeTrue)
	})
}

func TestViewAssignMergesOverStaticDefaults(t *testing.T) {
	t.Parallel()

	Convey("View.Assign merges a partial override on top of the static config", t, func() {
		static := StaticConfig{Config: Config{
			UpdateInterval:     time.Minute,
			FullUpdateInterval: time.Hour,
		}}
		view := NewView(static)

		So(view.Read().UpdateInterval, ShouldEqual, time.Minute)

		view.Assign(&Config{UpdateInterval: 10 * time.Second, FullUpdateInterval: 2 * time.Hour})
		So(view.Read().UpdateInterval, ShouldEqual, 10*time.Second)
		So(view.Read().FullUpdateInterval, ShouldEqual, 2*time.Hour)

		view.Assign(nil)
		So(view.Read().UpdateInterval, ShouldEqual, time.Minute)
		So(view.Read().FullUpdateInterval, ShouldEqual, time.Hour)
	})
}

func TestViewStaticIsImmutable(t *testing.T) {
	t.Parallel()

	Convey("View.Static always reflects the construction-time config regardless of Assign", t, func() {
		static := StaticConfig{Config: Config{UpdateInterval: time.Minute}, AllowFirstUpdateFailure: true}
		view := NewView(static)

		view.Assign(&Config{UpdateInterval: time.Hour})
		So(view.Static().UpdateInterval, ShouldEqual, time.Minute)
		So(view.Static().AllowFirstUpdateFailure, ShouldBeTrue)
	})
}

func TestAllowedUpdateTypesString(t *testing.T) {
	t.Parallel()

	Convey("AllowedUpdateTypes.String covers every known value", t, func() {
		So(OnlyFull.String(), ShouldEqual, "only-full")
		So(OnlyIncremental.String(), ShouldEqual, "only-incremental")
		So(FullAndIncremental.String(), ShouldEqual, "full-and-incremental")
		So(AllowedUpdateTypes(99).String(), ShouldEqual, "unknown")
	})
}

func TestFirstUpdateModeString(t *testing.T) {
	t.Parallel()

	Convey("FirstUpdateMode.String covers every known value", t, func() {
		So(Required.String(), ShouldEqual, "required")
		So(BestEffort.String(), ShouldEqual, "best-effort")
		So(Skip.String(), ShouldEqual, "skip")
		So(FirstUpdateMode(99).String(), ShouldEqual, "unknown")
	})
}
