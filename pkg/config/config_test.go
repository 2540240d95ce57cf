package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/chazu/tenon/pkg/config"
	"github.com/chazu/tenon/pkg/engine"
	"github.com/chazu/tenon/pkg/solver"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tenon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, solver.DefaultTolerance, cfg.Solver.Tolerance)
	assert.Equal(t, solver.DefaultMaxIterations, cfg.Solver.MaxIterations)
	assert.Equal(t, engine.EvalTimeout, cfg.Engine.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Zero(t, cfg.Build.Workers)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
solver:
  tolerance: 1e-9
  timeout: 250ms
mesh:
  tolerance: 0.05
  workers: 2
log:
  level: debug
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1e-9, cfg.Solver.Tolerance)
	assert.Equal(t, solver.DefaultMaxIterations, cfg.Solver.MaxIterations, "unset keys keep defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.Solver.Timeout)
	assert.Equal(t, 0.05, cfg.Mesh.Tolerance)
	assert.Equal(t, 2, cfg.MeshOptions().Workers)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "build:\n  workers: 2\n")
	t.Setenv("TENON_BUILD_WORKERS", "8")
	t.Setenv("TENON_SOLVER_MAX_ITERATIONS", "50")
	t.Setenv("TENON_ENGINE_TIMEOUT", "1s")
	t.Setenv("TENON_LOG_DEVELOPMENT", "YES")
	t.Setenv("TENON_PROFILE_TOLERANCE", "not-a-number")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Build.Workers)
	assert.Equal(t, 50, cfg.SolverOptions().MaxIterations)
	assert.Equal(t, time.Second, cfg.Engine.Timeout)
	assert.True(t, cfg.Log.Development)
	assert.Equal(t, 1e-6, cfg.Profile.Tolerance, "unparsable values fall back")
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.Load(writeFile(t, "solver:\n  tolerence: 1\n"))
	assert.Error(t, err, "unknown keys are rejected")

	_, err = config.Load(writeFile(t, "solver:\n  tolerance: -1\n"))
	assert.ErrorContains(t, err, "solver.tolerance")

	_, err = config.Load(writeFile(t, "log:\n  level: chatty\n"))
	assert.ErrorContains(t, err, "log.level")
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := config.Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestPipelineOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Build.Workers = 3
	opts := cfg.PipelineOptions()
	assert.Equal(t, 3, opts.Workers)
	assert.Equal(t, cfg.Profile.Tolerance, opts.ProfileTolerance)
	assert.Equal(t, cfg.SolverOptions(), opts.Solver)
}

func TestNewLogger(t *testing.T) {
	logger, level, err := config.NewLogger(config.LogConfig{Level: "warn"})
	require.NoError(t, err)
	defer func() { _ = logger.Sync() }()

	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	level.SetLevel(zapcore.DebugLevel)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel), "level changes apply to the live logger")

	_, _, err = config.NewLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
