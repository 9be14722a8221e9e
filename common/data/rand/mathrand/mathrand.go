// Copyright 2017 The LUCI Authors.
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

// Package mathrand provides a Context-scoped math/rand source, so that
// jitter computations can be seeded deterministically in tests without
// touching the process-global generator.
package mathrand

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
)

type randKeyType struct{}

var randKey randKeyType

// Set installs r as the *rand.Rand returned by Get for ctx and its
// children. Useful in tests that need reproducible jitter.
//
// The Context-installed generator is used by a single goroutine (the
// caller and whatever it hands ctx to synchronously); it is not
// synchronized the way the process-global fallback is.
func Set(ctx context.Context, r *rand.Rand) context.Context {
	return context.WithValue(ctx, randKey, r)
}

// Get returns the *rand.Rand installed on ctx, falling back to a
// process-global, mutex-guarded source if none was installed.
func Get(ctx context.Context) *rand.Rand {
	if r, ok := ctx.Value(randKey).(*rand.Rand); ok {
		return r
	}
	return globalRand
}

// lockedRand adapts *rand.Rand for concurrent use by the process-global
// fallback source.
type lockedRand struct {
	mu  sync.Mutex
	src *rand.Rand
}

func (l *lockedRand) Int63() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Int63()
}

func (l *lockedRand) Seed(seed int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.src.Seed(seed)
}

var globalRand = rand.New(&lockedRand{src: rand.New(rand.NewSource(seed()))})

func seed() int64 {
	var s int64
	if err := binary.Read(cryptorand.Reader, binary.LittleEndian, &s); err != nil {
		panic(err)
	}
	return s
}
