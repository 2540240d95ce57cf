// Package config provides configuration management for tenon.
// Settings start from defaults, are overlaid by an optional YAML file and
// then by environment variables with the TENON_ prefix.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/chazu/tenon/pkg/engine"
	"github.com/chazu/tenon/pkg/pipeline"
	"github.com/chazu/tenon/pkg/profile"
	"github.com/chazu/tenon/pkg/solver"
	"github.com/chazu/tenon/pkg/tessellate"
)

// Config holds all tenon settings.
type Config struct {
	Solver  SolverConfig  `yaml:"solver"`
	Profile ProfileConfig `yaml:"profile"`
	Mesh    MeshConfig    `yaml:"mesh"`
	Build   BuildConfig   `yaml:"build"`
	Engine  EngineConfig  `yaml:"engine"`
	Log     LogConfig     `yaml:"log"`
}

// SolverConfig tunes the sketch solver.
type SolverConfig struct {
	Tolerance     float64       `yaml:"tolerance"`      // max accepted residual (default: 1e-7)
	MaxIterations int           `yaml:"max_iterations"` // (default: 200)
	Timeout       time.Duration `yaml:"timeout"`        // zero means no limit
}

// ProfileConfig tunes profile building.
type ProfileConfig struct {
	Tolerance float64 `yaml:"tolerance"` // endpoint matching distance (default: 1e-6)
}

// MeshConfig tunes tessellation and export.
type MeshConfig struct {
	Tolerance float64 `yaml:"tolerance"` // chordal deviation (default: 0.1)
	Workers   int     `yaml:"workers"`   // zero means one per part
}

// BuildConfig tunes multi-part builds.
type BuildConfig struct {
	Workers int `yaml:"workers"` // zero means one per part
}

// EngineConfig tunes Lisp evaluation.
type EngineConfig struct {
	Timeout time.Duration `yaml:"timeout"` // (default: 5s)
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error (default: info)
	Development bool   `yaml:"development"` // console encoding, stack traces on warn
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Solver: SolverConfig{
			Tolerance:     solver.DefaultTolerance,
			MaxIterations: solver.DefaultMaxIterations,
		},
		Profile: ProfileConfig{Tolerance: profile.DefaultTolerance},
		Mesh:    MeshConfig{Tolerance: tessellate.DefaultTolerance},
		Engine:  EngineConfig{Timeout: engine.EvalTimeout},
		Log:     LogConfig{Level: "info"},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and TENON_ environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Solver.Tolerance = getEnvFloat("TENON_SOLVER_TOLERANCE", c.Solver.Tolerance)
	c.Solver.MaxIterations = getEnvInt("TENON_SOLVER_MAX_ITERATIONS", c.Solver.MaxIterations)
	c.Solver.Timeout = getEnvDuration("TENON_SOLVER_TIMEOUT", c.Solver.Timeout)
	c.Profile.Tolerance = getEnvFloat("TENON_PROFILE_TOLERANCE", c.Profile.Tolerance)
	c.Mesh.Tolerance = getEnvFloat("TENON_MESH_TOLERANCE", c.Mesh.Tolerance)
	c.Mesh.Workers = getEnvInt("TENON_MESH_WORKERS", c.Mesh.Workers)
	c.Build.Workers = getEnvInt("TENON_BUILD_WORKERS", c.Build.Workers)
	c.Engine.Timeout = getEnvDuration("TENON_ENGINE_TIMEOUT", c.Engine.Timeout)
	c.Log.Level = getEnv("TENON_LOG_LEVEL", c.Log.Level)
	c.Log.Development = getEnvBool("TENON_LOG_DEVELOPMENT", c.Log.Development)
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Solver.Tolerance <= 0 {
		errs = append(errs, fmt.Errorf("solver.tolerance must be positive, got %g", c.Solver.Tolerance))
	}
	if c.Solver.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("solver.max_iterations must be positive, got %d", c.Solver.MaxIterations))
	}
	if c.Profile.Tolerance <= 0 {
		errs = append(errs, fmt.Errorf("profile.tolerance must be positive, got %g", c.Profile.Tolerance))
	}
	if c.Mesh.Tolerance <= 0 {
		errs = append(errs, fmt.Errorf("mesh.tolerance must be positive, got %g", c.Mesh.Tolerance))
	}
	if c.Mesh.Workers < 0 || c.Build.Workers < 0 {
		errs = append(errs, errors.New("worker counts cannot be negative"))
	}
	if c.Solver.Timeout < 0 || c.Engine.Timeout < 0 {
		errs = append(errs, errors.New("timeouts cannot be negative"))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// SolverOptions converts the solver settings.
func (c *Config) SolverOptions() solver.Options {
	return solver.Options{
		Tolerance:     c.Solver.Tolerance,
		MaxIterations: c.Solver.MaxIterations,
		Timeout:       c.Solver.Timeout,
	}
}

// PipelineOptions converts the build settings.
func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		Solver:           c.SolverOptions(),
		ProfileTolerance: c.Profile.Tolerance,
		Workers:          c.Build.Workers,
	}
}

// MeshOptions converts the mesh settings.
func (c *Config) MeshOptions() tessellate.Options {
	return tessellate.Options{Tolerance: c.Mesh.Tolerance, Workers: c.Mesh.Workers}
}

// EngineOptions converts the engine settings.
func (c *Config) EngineOptions(logger *zap.Logger) []engine.Option {
	return []engine.Option{engine.WithTimeout(c.Engine.Timeout), engine.WithLogger(logger)}
}

// NewLogger builds a production zap logger at the configured level. The
// returned level can be changed while the logger is in use.
func NewLogger(lc LogConfig) (*zap.Logger, zap.AtomicLevel, error) {
	level, err := zap.ParseAtomicLevel(lc.Level)
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("config: log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	logger, err := zc.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, level, nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value when it is unset or unparsable.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool recognizes "true", "1", "yes" and "false", "0", "no" in any case.
func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}
