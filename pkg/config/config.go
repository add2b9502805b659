// Package config loads the engine's tunable parameters — ANN construction
// quality, scoring decay, and auto-link defaults — from an optional YAML
// file layered over hardcoded defaults.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kestrel-db/kestrel/pkg/ann"
	"github.com/kestrel-db/kestrel/pkg/scoring"
)

// HNSWConfig mirrors ann.Config with YAML tags; EfSearch is construction-
// time fixed here rather than tunable per search call.
type HNSWConfig struct {
	M              int `yaml:"m"`
	EfConstruction int `yaml:"ef_construction"`
	EfSearch       int `yaml:"ef_search"`
	Capacity       int `yaml:"capacity"`
}

// ScoringConfig mirrors scoring.Config with YAML tags.
type ScoringConfig struct {
	HalfLifeDays float64 `yaml:"half_life_days"`
	TimeWeight   float64 `yaml:"time_weight"`
	MinWeight    float64 `yaml:"min_weight"`
}

// AutoLinkConfig holds auto_link's tunables.
type AutoLinkConfig struct {
	Threshold  float64 `yaml:"threshold"`
	RelType    string  `yaml:"rel_type"`
	Candidates int     `yaml:"candidates"`
}

// EngineConfig is the full set of tunables the DB facade consults.
type EngineConfig struct {
	DefaultDim int            `yaml:"default_dim"`
	HNSW       HNSWConfig     `yaml:"hnsw"`
	Scoring    ScoringConfig  `yaml:"scoring"`
	AutoLink   AutoLinkConfig `yaml:"auto_link"`
}

// Default returns the configuration used when no file is loaded.
func Default() EngineConfig {
	return EngineConfig{
		DefaultDim: 768,
		HNSW:       HNSWConfig{M: 16, EfConstruction: 200, EfSearch: 100, Capacity: 1_000_000},
		Scoring:    ScoringConfig{HalfLifeDays: 30, TimeWeight: 0.3, MinWeight: 0},
		AutoLink:   AutoLinkConfig{Threshold: 0.80, RelType: "related_to", Candidates: 15},
	}
}

// Load reads path as YAML and layers it over Default. A missing path
// (including an empty string) returns the defaults unchanged rather than
// erroring — the engine always has something usable.
func Load(path string) (EngineConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ANN converts the HNSW section into ann.Config.
func (c EngineConfig) ANN() ann.Config {
	return ann.Config{M: c.HNSW.M, EfConstruction: c.HNSW.EfConstruction, EfSearch: c.HNSW.EfSearch}
}

// Scorer converts the Scoring section into scoring.Config.
func (c EngineConfig) Scorer() scoring.Config {
	return scoring.Config{HalfLifeDays: c.Scoring.HalfLifeDays, TimeWeight: c.Scoring.TimeWeight, MinWeight: c.Scoring.MinWeight}
}
