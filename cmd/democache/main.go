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

// Command democache runs a refreshcache.Cache under the engine, driven
// by a config file and an in-process fake backing store, so its
// periodic refresh and dump behavior can be observed end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.chromium.org/luci-cache/cache"
	"go.chromium.org/luci-cache/cache/config"
	"go.chromium.org/luci-cache/cache/config/configyaml"
	"go.chromium.org/luci-cache/cache/dump"
	"go.chromium.org/luci-cache/common/logging"
	"go.chromium.org/luci-cache/examples/refreshcache"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML cache config file (see cache/config/configyaml)")
	dumpDir := flag.String("dump-dir", "", "directory for cache dumps")
	name := flag.String("name", "demo", "name of the cache instance")
	flag.Parse()

	ctx := context.Background()
	if err := run(ctx, *configPath, *dumpDir, *name); err != nil {
		logging.Errorf(ctx, "democache: %s", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, dumpDir, name string) error {
	static := config.StaticConfig{Config: config.Config{
		UpdateInterval:     10 * time.Second,
		UpdateJitter:       2 * time.Second,
		FullUpdateInterval: 5 * time.Minute,
		AllowedUpdateTypes: config.FullAndIncremental,
		CleanupInterval:    time.Minute,
		MinDumpInterval:    30 * time.Second,
		DumpRetentionCount: 3,
	}}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
		static, err = configyaml.Load(data)
		if err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
	}

	if dumpDir != "" {
		static.DumpsEnabled = true
	}

	source := newDemoSource()
	capability := refreshcache.New(source)

	c, err := cache.New(cache.Params{
		Name:       name,
		Capability: capability,
		Config:     static,
		DumpDir:    dumpDir,
		Codec:      dump.MsgpackCodec{},
	})
	if err != nil {
		return fmt.Errorf("constructing cache: %w", err)
	}

	if err := c.Start(ctx, 0); err != nil {
		return fmt.Errorf("starting cache: %w", err)
	}
	logging.Infof(ctx, "democache %q started with %d records", name, capability.Size())

	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-sigCtx.Done()

	logging.Infof(ctx, "democache %q shutting down", name)
	c.Stop(ctx)
	return nil
}

// demoSource is a Source that mutates a handful of keys on every fetch,
// so the running demo has something to refresh.
type demoSource struct {
	revision int64
}

func newDemoSource() *demoSource {
	return &demoSource{}
}

func (s *demoSource) FullFetch(context.Context) (map[string]string, int64, error) {
	s.revision++
	return s.snapshot(), s.revision, nil
}

func (s *demoSource) IncrementalFetch(_ context.Context, since int64) (map[string]string, []string, int64, error) {
	s.revision++
	if since >= s.revision {
		return nil, nil, s.revision, nil
	}
	return s.snapshot(), nil, s.revision, nil
}

func (s *demoSource) snapshot() map[string]string {
	const keys = 5
	out := make(map[string]string, keys)
	for i := 0; i < keys; i++ {
		out["key-"+strconv.Itoa(i)] = strconv.FormatInt(rand.Int63(), 10)
	}
	return out
}
