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
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackCodec is the default Codec: it hands the cache a plain file
// handle, so a cache's WriteTo/ReadFrom typically look like:
//
//	func (c *myCache) WriteTo(w dump.Writer) error {
//		return msgpack.NewEncoder(w).Encode(c.snapshot())
//	}
//
//	func (c *myCache) ReadFrom(r dump.Reader) error {
//		var snap mySnapshot
//		if err := msgpack.NewDecoder(r).Decode(&snap); err != nil {
//			return err
//		}
//		c.restore(snap)
//		return nil
//	}
//
// It is named after msgpack because that's the encoding this module
// recommends, but MsgpackCodec itself only opens files: it never touches
// the bytes in between, so a cache is free to use any encoding over the
// same Writer/Reader.
type MsgpackCodec struct{}

var _ Codec = MsgpackCodec{}

func (MsgpackCodec) NewWriter(path string) (Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileWriter{f: f}, nil
}

func (MsgpackCodec) NewReader(path string) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &fileReader{f: f}, nil
}

type fileWriter struct{ f *os.File }

func (w *fileWriter) Write(p []byte) (int, error) { return w.f.Write(p) }

func (w *fileWriter) Finish() error {
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

type fileReader struct{ f *os.File }

func (r *fileReader) Read(p []byte) (int, error) { return r.f.Read(p) }

func (r *fileReader) Finish() error { return r.f.Close() }

// Encode is a convenience wrapper for cache implementations that would
// rather not import msgpack directly.
func Encode(w Writer, v any) error {
	return msgpack.NewEncoder(w).Encode(v)
}

// Decode is the read-side counterpart of Encode.
func Decode(r Reader, v any) error {
	return msgpack.NewDecoder(r).Decode(v)
}
