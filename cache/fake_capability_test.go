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

package cache

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.chromium.org/luci-cache/cache/dump"
	"go.chromium.org/luci-cache/cache/stats"
)

// fakeCapability is a minimal in-memory Capability/Dumpable used across
// this package's tests: it records every Update call's Kind, lets a
// test script the next call's error or modified-flag, and serializes
// its "contents" (just a counter rendered as a string) for dump
// round-trip tests.
type fakeCapability struct {
	mu sync.Mutex

	kinds       []stats.Kind
	nextErr     error
	nextModify  bool
	emptyOnDump bool

	contents string
}

func (f *fakeCapability) Update(ctx context.Context, uc UpdateContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.kinds = append(f.kinds, uc.Kind())

	if f.nextErr != nil {
		err := f.nextErr
		f.nextErr = nil
		return err
	}
	if f.nextModify {
		uc.MarkModified()
		f.nextModify = false
	}
	f.contents = fmt.Sprintf("update-%d", len(f.kinds))
	uc.SetDocumentsCurrentCount(int64(len(f.kinds)))
	return nil
}

func (f *fakeCapability) Cleanup(context.Context) error { return nil }

func (f *fakeCapability) WriteTo(w dump.Writer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emptyOnDump {
		return dump.ErrEmptyCache
	}
	_, err := io.WriteString(w, f.contents)
	return err
}

func (f *fakeCapability) ReadFrom(r dump.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.contents = string(b)
	f.mu.Unlock()
	return nil
}

func (f *fakeCapability) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.kinds)
}

func (f *fakeCapability) kindsSnapshot() []stats.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stats.Kind, len(f.kinds))
	copy(out, f.kinds)
	return out
}

func (f *fakeCapability) failNextUpdate(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextErr = err
}

func (f *fakeCapability) modifyNextUpdate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextModify = true
}

// blockingCapability blocks in WriteTo until unblock is closed, letting
// tests exercise a dump task still in flight when Stop is called.
type blockingCapability struct {
	fakeCapability
	started  chan struct{}
	unblock  chan struct{}
	startedO sync.Once
}

func newBlockingCapability() *blockingCapability {
	return &blockingCapability{started: make(chan struct{}), unblock: make(chan struct{})}
}

func (b *blockingCapability) WriteTo(w dump.Writer) error {
	b.startedO.Do(func() { close(b.started) })
	<-b.unblock
	return b.fakeCapability.WriteTo(w)
}
