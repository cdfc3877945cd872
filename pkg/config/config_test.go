package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Defaults and YAML
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 0, cfg.Eval.Seed)
	assert.False(t, cfg.Eval.Directed)
	assert.Equal(t, "csv", cfg.Results.Backend)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, "compact", cfg.Report.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	t.Run("partial_file_keeps_defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lpeval.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
eval:
  output_dir: ./experiments/cora
  seed: 7
  dist_fn: hyperboloid
results:
  dir: ./results
`), 0644))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "./experiments/cora", cfg.Eval.OutputDir)
		assert.Equal(t, 7, cfg.Eval.Seed)
		assert.Equal(t, "hyperboloid", cfg.Eval.DistFn)
		assert.Equal(t, "./results", cfg.Results.Dir)
		assert.Equal(t, "csv", cfg.Results.Backend)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("missing_file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad_yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("eval: [1, 2"), 0644))
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})

	t.Run("write_round_trip", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Eval.DistFn = "poincare"
		cfg.Eval.Seed = 3

		var buf bytes.Buffer
		require.NoError(t, cfg.Write(&buf))
		assert.Contains(t, buf.String(), "dist_fn: poincare")

		path := filepath.Join(t.TempDir(), "lpeval.yaml")
		require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
		loaded, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, cfg, loaded)
	})
}

// =============================================================================
// Environment
// =============================================================================

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LPEVAL_OUTPUT_DIR", "/data/out")
	t.Setenv("LPEVAL_EMBEDDING", "/data/emb.csv")
	t.Setenv("LPEVAL_TEST_RESULTS_DIR", "/data/results")
	t.Setenv("LPEVAL_DIRECTED", "yes")
	t.Setenv("LPEVAL_SEED", "12")
	t.Setenv("LPEVAL_DIST_FN", "euclidean")
	t.Setenv("LPEVAL_RESULTS_BACKEND", "badger")
	t.Setenv("LPEVAL_LOG_LEVEL", "debug")
	t.Setenv("LPEVAL_LOG_FORMAT", "json")
	t.Setenv("LPEVAL_REPORT_FORMAT", "summary")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "/data/out", cfg.Eval.OutputDir)
	assert.Equal(t, "/data/emb.csv", cfg.Eval.Embedding)
	assert.Equal(t, "/data/results", cfg.Results.Dir)
	assert.True(t, cfg.Eval.Directed)
	assert.Equal(t, 12, cfg.Eval.Seed)
	assert.Equal(t, "euclidean", cfg.Eval.DistFn)
	assert.Equal(t, "badger", cfg.Results.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "summary", cfg.Report.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnvRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"seed_with_suffix", "LPEVAL_SEED", "7x"},
		{"seed_not_a_number", "LPEVAL_SEED", "abc"},
		{"directed_typo", "LPEVAL_DIRECTED", "ture"},
		{"directed_number", "LPEVAL_DIRECTED", "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := LoadFromEnv()
			require.ErrorIs(t, err, ErrInvalidEnv)
			assert.Contains(t, err.Error(), tt.key)

			cfg, err := LoadFromEnvOrFile("")
			assert.ErrorIs(t, err, ErrInvalidEnv)
			assert.Nil(t, cfg)
		})
	}
}

func TestLoadFromEnvBoolSpellings(t *testing.T) {
	for value, want := range map[string]bool{
		"true": true, "TRUE": true, "1": true, "yes": true, "on": true,
		"false": false, "0": false, "no": false, "Off": false,
	} {
		t.Setenv("LPEVAL_DIRECTED", value)
		cfg, err := LoadFromEnv()
		require.NoError(t, err, value)
		assert.Equal(t, want, cfg.Eval.Directed, value)
	}
}

func TestLoadFromEnvOrFile(t *testing.T) {
	t.Run("env_overrides_file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lpeval.yaml")
		require.NoError(t, os.WriteFile(path, []byte("eval:\n  seed: 1\n  dist_fn: poincare\n"), 0644))
		t.Setenv("LPEVAL_SEED", "5")

		cfg, err := LoadFromEnvOrFile(path)
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Eval.Seed)
		assert.Equal(t, "poincare", cfg.Eval.DistFn)
	})

	t.Run("no_file", func(t *testing.T) {
		cfg, err := LoadFromEnvOrFile("")
		require.NoError(t, err)
		assert.Equal(t, "csv", cfg.Results.Backend)
	})

	t.Run("invalid_after_env", func(t *testing.T) {
		t.Setenv("LPEVAL_DIST_FN", "cosine")
		_, err := LoadFromEnvOrFile("")
		assert.Error(t, err)
	})
}

// =============================================================================
// Validation
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"negative_seed", func(c *Config) { c.Eval.Seed = -1 }, false},
		{"unknown_dist_fn", func(c *Config) { c.Eval.DistFn = "cosine" }, false},
		{"mixed_case_dist_fn", func(c *Config) { c.Eval.DistFn = "Poincare" }, true},
		{"unknown_backend", func(c *Config) { c.Results.Backend = "sqlite" }, false},
		{"bad_log_level", func(c *Config) { c.Logging.Level = "loud" }, false},
		{"bad_log_format", func(c *Config) { c.Logging.Format = "xml" }, false},
		{"bad_report_format", func(c *Config) { c.Report.Format = "html" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRequireEval(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.RequireEval()
	require.ErrorIs(t, err, ErrMissing)
	for _, name := range []string{"output", "embedding", "test-results-dir", "dist-fn"} {
		assert.Contains(t, err.Error(), name)
	}

	cfg.Eval.OutputDir = "out"
	cfg.Eval.Embedding = "emb"
	cfg.Results.Dir = "res"
	cfg.Eval.DistFn = "poincare"
	assert.NoError(t, cfg.RequireEval())
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Eval.DistFn = "poincare"
	s := cfg.String()
	assert.True(t, strings.HasPrefix(s, "Config{"))
	assert.Contains(t, s, "poincare")
}

// =============================================================================
// Logging
// =============================================================================

func TestNewLogger(t *testing.T) {
	t.Run("json_file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lpeval.log")
		logger, closer, err := LoggingConfig{Level: "warn", Format: "json", Output: path}.NewLogger()
		require.NoError(t, err)

		logger.Info().Msg("hidden")
		logger.Warn().Msg("shown")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "hidden")
		assert.Contains(t, string(data), `"message":"shown"`)
		assert.Contains(t, string(data), `"service":"lpeval"`)
	})

	t.Run("unknown_level_defaults_to_info", func(t *testing.T) {
		logger, closer, err := LoggingConfig{Level: "loud"}.NewLogger()
		require.NoError(t, err)
		defer closer.Close()
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	})

	t.Run("bad_output_path", func(t *testing.T) {
		_, _, err := LoggingConfig{Output: filepath.Join(t.TempDir(), "missing", "x.log")}.NewLogger()
		assert.Error(t, err)
	})
}
