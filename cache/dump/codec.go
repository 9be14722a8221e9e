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

// Package dump implements the on-disk half of a cache's persistence: the
// directory of dump files (Store) and the abstract serializer pair a
// cache plugs in to read and write them (Codec, Writer, Reader).
//
// The package never interprets a dump's bytes; that's the cache's own
// WriteTo/ReadFrom implementation, typically built on Codec.
package dump

import (
	"errors"
	"io"
)

// ErrEmptyCache is returned by a cache's WriteTo when it has nothing to
// write, despite a successful preceding update. The engine treats this
// as an expected, non-fatal outcome: the dump attempt is abandoned with
// a warning log rather than reported as a failure.
var ErrEmptyCache = errors.New("cache: contents are empty, dump skipped")

// Writer is the sink a cache serializes itself into when dumping.
type Writer interface {
	io.Writer

	// Finish flushes and closes the underlying file. It must be called
	// exactly once, after a successful WriteTo; the engine does not
	// call it if WriteTo returns an error.
	Finish() error
}

// Reader is the source a cache deserializes itself from when loading a
// dump.
type Reader interface {
	io.Reader

	// Finish closes the underlying file. It must be called exactly
	// once, after a successful ReadFrom.
	Finish() error
}

// Codec creates the Writer/Reader pair bound to a cache's on-disk
// format. The engine holds one Codec per cache for its whole lifetime.
type Codec interface {
	NewWriter(path string) (Writer, error)
	NewReader(path string) (Reader, error)
}
