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

// Package configyaml decodes a cache's StaticConfig from YAML bytes.
//
// This is the file-backed bootstrap path: a real deployment typically
// layers a dynamic-configuration subsystem on top of a config file
// loaded this way at process start.
package configyaml

import (
	"time"

	"gopkg.in/yaml.v2"

	"go.chromium.org/luci-cache/cache/config"
)

// document mirrors config.StaticConfig with YAML-friendly field names
// and duration strings ("30s", "5m") instead of time.Duration.
type document struct {
	UpdateInterval          string `yaml:"update_interval"`
	UpdateJitter            string `yaml:"update_jitter"`
	FullUpdateInterval      string `yaml:"full_update_interval"`
	AllowedUpdateTypes      string `yaml:"allowed_update_types"`
	FirstUpdateMode         string `yaml:"first_update_mode"`
	ForceFullSecondUpdate   bool   `yaml:"force_full_second_update"`
	CleanupInterval         string `yaml:"cleanup_interval"`
	DumpsEnabled            bool   `yaml:"dumps_enabled"`
	MinDumpInterval         string `yaml:"min_dump_interval"`
	DumpRetentionCount      int    `yaml:"dump_retention_count"`
	AllowFirstUpdateFailure bool   `yaml:"allow_first_update_failure"`
}

// Load decodes a StaticConfig from YAML bytes shaped like:
//
//	update_interval: 1m
//	full_update_interval: 1h
//	allowed_update_types: full_and_incremental
//	first_update_mode: required
//	cleanup_interval: 10m
//	dumps_enabled: true
//	min_dump_interval: 5m
//	dump_retention_count: 3
func Load(data []byte) (config.StaticConfig, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return config.StaticConfig{}, err
	}

	var static config.StaticConfig
	var err error

	if static.UpdateInterval, err = parseDuration(doc.UpdateInterval); err != nil {
		return config.StaticConfig{}, err
	}
	if static.UpdateJitter, err = parseDuration(doc.UpdateJitter); err != nil {
		return config.StaticConfig{}, err
	}
	if static.FullUpdateInterval, err = parseDuration(doc.FullUpdateInterval); err != nil {
		return config.StaticConfig{}, err
	}
	if static.CleanupInterval, err = parseDuration(doc.CleanupInterval); err != nil {
		return config.StaticConfig{}, err
	}
	if static.MinDumpInterval, err = parseDuration(doc.MinDumpInterval); err != nil {
		return config.StaticConfig{}, err
	}

	static.AllowedUpdateTypes = parseAllowedUpdateTypes(doc.AllowedUpdateTypes)
	static.FirstUpdateMode = parseFirstUpdateMode(doc.FirstUpdateMode)
	static.ForceFullSecondUpdate = doc.ForceFullSecondUpdate
	static.DumpsEnabled = doc.DumpsEnabled
	static.DumpRetentionCount = doc.DumpRetentionCount
	static.AllowFirstUpdateFailure = doc.AllowFirstUpdateFailure

	return static, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func parseAllowedUpdateTypes(s string) config.AllowedUpdateTypes {
	switch s {
	case "only_incremental":
		return config.OnlyIncremental
	case "full_and_incremental":
		return config.FullAndIncremental
	default:
		return config.OnlyFull
	}
}

func parseFirstUpdateMode(s string) config.FirstUpdateMode {
	switch s {
	case "best_effort":
		return config.BestEffort
	case "skip":
		return config.Skip
	default:
		return config.Required
	}
}
