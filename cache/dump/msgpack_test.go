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
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMsgpackCodecRawWriteRead(t *testing.T) {
	t.Parallel()

	Convey("MsgpackCodec's Writer/Reader are plain file passthroughs", t, func() {
		path := filepath.Join(t.TempDir(), "dump.bin")
		codec := MsgpackCodec{}

		w, err := codec.NewWriter(path)
		So(err, ShouldBeNil)
		_, err = w.Write([]byte("raw bytes"))
		So(err, ShouldBeNil)
		So(w.Finish(), ShouldBeNil)

		r, err := codec.NewReader(path)
		So(err, ShouldBeNil)
		got, err := io.ReadAll(r)
		So(err, ShouldBeNil)
		So(r.Finish(), ShouldBeNil)
		So(string(got), ShouldEqual, "raw bytes")
	})
}

type point struct {
	X, Y int
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	Convey("Encode/Decode round-trip a value through msgpack", t, func() {
		path := filepath.Join(t.TempDir(), "dump.msgpack")
		codec := MsgpackCodec{}

		w, err := codec.NewWriter(path)
		So(err, ShouldBeNil)
		So(Encode(w, point{X: 1, Y: 2}), ShouldBeNil)
		So(w.Finish(), ShouldBeNil)

		r, err := codec.NewReader(path)
		So(err, ShouldBeNil)
		var got point
		So(Decode(r, &got), ShouldBeNil)
		So(r.Finish(), ShouldBeNil)
		So(got, ShouldResemble, point{X: 1, Y: 2})
	})
}

func TestNewReaderMissingFile(t *testing.T) {
	t.Parallel()

	Convey("NewReader on a missing path fails", t, func() {
		codec := MsgpackCodec{}
		_, err := codec.NewReader(filepath.Join(t.TempDir(), "missing.bin"))
		So(err, ShouldNotBeNil)
	})
}

func TestErrEmptyCacheIsMatchable(t *testing.T) {
	t.Parallel()

	Convey("A wrapped ErrEmptyCache is still recognizable via errors.Is", t, func() {
		wrapped := fmt.Errorf("writing dump: %w", ErrEmptyCache)
		So(errors.Is(wrapped, ErrEmptyCache), ShouldBeTrue)
		So(errors.Is(errors.New("unrelated"), ErrEmptyCache), ShouldBeFalse)
	})
}
