// Package config loads and validates the fuzzer's run configuration
// from a YAML file, following the teacher's default-then-override
// pattern: DefaultConfig() seeds sane values, Load() overlays a file and
// environment variables on top of them, and Validate() rejects
// impossible combinations before the scheduler starts.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// TargetConfig describes the binary under test and how to run it.
type TargetConfig struct {
	// BinaryPath is the instrumented interpreter executable.
	BinaryPath string `yaml:"binary_path"`
	// Args are extra arguments passed to the target on every launch.
	Args []string `yaml:"args"`
	// NumEdges is the instrumentation's edge-coverage bitmap size.
	NumEdges int `yaml:"num_edges"`
	// ExecutionTimeout bounds a single REPRL round-trip.
	ExecutionTimeout time.Duration `yaml:"execution_timeout"`
	// MaxExecsBeforeRespawn recycles the child after this many
	// executions, guarding against slow resource leaks in the target.
	MaxExecsBeforeRespawn int `yaml:"max_execs_before_respawn"`
}

// CorpusConfig controls in-memory corpus management.
type CorpusConfig struct {
	MaxSize               int `yaml:"max_size"`
	MinMutationsPerProgram int `yaml:"min_mutations_per_program"`
	// ImportPath/ExportPath are optional corpus snapshot files in
	// Corpus.ExportState's count + length-prefixed format: `run` loads
	// ImportPath before fuzzing and writes ExportPath on exit.
	ImportPath string `yaml:"import_path"`
	ExportPath string `yaml:"export_path"`
}

// EngineConfig controls generation/mutation behavior.
type EngineConfig struct {
	MaxProgramSize        int     `yaml:"max_program_size"`
	MinMutationsPerSample  int     `yaml:"min_mutations_per_sample"`
	MaxMutationsPerSample  int     `yaml:"max_mutations_per_sample"`
	NumInitialSamples      int     `yaml:"num_initial_samples"`
	// MinimizationLimit is the floor fraction of a candidate's original
	// size that the minimizer's reduction passes refuse to shrink below
	// (0 lets it reduce all the way to empty; 1 keeps every instruction,
	// though literal simplification still runs).
	MinimizationLimit      float64 `yaml:"minimization_limit"`
	CodeGenWeight          float64 `yaml:"code_gen_weight"`
}

// DeterminismConfig controls the replay-to-confirm-stability loop.
type DeterminismConfig struct {
	MinAttempts int `yaml:"min_attempts"`
	MaxAttempts int `yaml:"max_attempts"`
}

// LoggingConfig gates the categorized file loggers.
type LoggingConfig struct {
	Debug   bool   `yaml:"debug"`
	WorkDir string `yaml:"work_dir"`
}

// Config is the fuzzer's complete run configuration.
type Config struct {
	Target      TargetConfig      `yaml:"target"`
	Corpus      CorpusConfig      `yaml:"corpus"`
	Engine      EngineConfig      `yaml:"engine"`
	Determinism DeterminismConfig `yaml:"determinism"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DefaultConfig returns the fuzzer's default configuration.
func DefaultConfig() *Config {
	return &Config{
		Target: TargetConfig{
			NumEdges:              1 << 16,
			ExecutionTimeout:      1 * time.Second,
			MaxExecsBeforeRespawn: 1000,
		},
		Corpus: CorpusConfig{
			MaxSize:                10000,
			MinMutationsPerProgram: 5,
		},
		Engine: EngineConfig{
			MaxProgramSize:        250,
			MinMutationsPerSample: 2,
			MaxMutationsPerSample: 5,
			NumInitialSamples:     100,
			MinimizationLimit:     0.2,
			CodeGenWeight:         0.5,
		},
		Determinism: DeterminismConfig{
			MinAttempts: 5,
			MaxAttempts: 50,
		},
		Logging: LoggingConfig{
			Debug:   false,
			WorkDir: ".",
		},
	}
}

// Load reads configuration from a YAML file, overlaying it on the
// defaults. A missing file is not an error — the defaults (plus
// environment overrides) are returned as-is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to path as YAML, creating its parent
// directory if necessary.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides lets the target binary be pointed at without editing
// the config file, matching the teacher's env-override convention.
func (c *Config) applyEnvOverrides() {
	if bin := os.Getenv("ILFUZZ_TARGET"); bin != "" {
		c.Target.BinaryPath = bin
	}
	if wd := os.Getenv("ILFUZZ_WORKDIR"); wd != "" {
		c.Logging.WorkDir = wd
	}
}

// Validate rejects configurations the scheduler cannot run with.
func (c *Config) Validate() error {
	if c.Target.BinaryPath == "" {
		return fmt.Errorf("config: target.binary_path not set (or ILFUZZ_TARGET unset)")
	}
	if c.Target.NumEdges <= 0 {
		return fmt.Errorf("config: target.num_edges must be positive, got %d", c.Target.NumEdges)
	}
	if c.Corpus.MaxSize <= 0 {
		return fmt.Errorf("config: corpus.max_size must be positive, got %d", c.Corpus.MaxSize)
	}
	if c.Engine.MinMutationsPerSample <= 0 || c.Engine.MaxMutationsPerSample < c.Engine.MinMutationsPerSample {
		return fmt.Errorf("config: engine.min_mutations_per_sample/max_mutations_per_sample out of order (%d/%d)",
			c.Engine.MinMutationsPerSample, c.Engine.MaxMutationsPerSample)
	}
	if c.Determinism.MinAttempts <= 0 || c.Determinism.MaxAttempts < c.Determinism.MinAttempts {
		return fmt.Errorf("config: determinism.min_attempts/max_attempts out of order (%d/%d)",
			c.Determinism.MinAttempts, c.Determinism.MaxAttempts)
	}
	return nil
}
