// Copyright 2015 The LUCI Authors.
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

package testclock

import (
	"context"
	"time"

	"go.chromium.org/luci-cache/common/clock"
)

// TestRecentTimeUTC is an arbitrary recent time point in UTC, useful as a
// base for update-timestamp fixtures.
var TestRecentTimeUTC = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// UseTime instantiates a TestClock and returns a Context configured to
// use it, along with the instantiated clock.
func UseTime(ctx context.Context, now time.Time) (context.Context, TestClock) {
	tc := New(now)
	return clock.Set(ctx, tc), tc
}
