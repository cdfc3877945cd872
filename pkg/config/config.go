// Package config handles lpeval configuration from a YAML file and
// environment variables.
//
// Settings are layered, later layers winning:
//
//  1. DefaultConfig()
//  2. YAML file (LoadConfig)
//  3. LPEVAL_* environment variables (ApplyEnv)
//  4. Command-line flags the user set explicitly (applied by the CLI)
//
// Example Usage:
//
//	cfg, err := config.LoadFromEnvOrFile("./lpeval.yaml")
//	if err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
//	logger, closer, err := cfg.Logging.NewLogger()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer closer.Close()
//	logger.Info().Str("config", cfg.String()).Msg("loaded")
//
// Environment Variables:
//   - LPEVAL_OUTPUT_DIR=./experiments/cora
//   - LPEVAL_EMBEDDING=./experiments/cora/embedding.csv
//   - LPEVAL_TEST_RESULTS_DIR=./results
//   - LPEVAL_DIRECTED=false
//   - LPEVAL_SEED=0
//   - LPEVAL_DIST_FN=poincare|hyperboloid|euclidean
//   - LPEVAL_RESULTS_BACKEND=csv|badger
//   - LPEVAL_LOG_LEVEL=debug|info|warn|error
//   - LPEVAL_LOG_FORMAT=console|json
//   - LPEVAL_LOG_OUTPUT=stderr|stdout|<file>
//   - LPEVAL_REPORT_FORMAT=compact|summary|json
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/orneryd/lpeval/pkg/math/distance"
	"github.com/orneryd/lpeval/pkg/storage"
)

// Config holds all lpeval configuration.
//
// Configuration is organized into logical sections:
//   - Eval: which experiment, embedding and geometry to evaluate
//   - Results: where the result table lives
//   - Logging: log level, format and destination
//   - Report: how the run's metrics are printed
type Config struct {
	Eval    EvalConfig    `yaml:"eval"`
	Results ResultsConfig `yaml:"results"`
	Logging LoggingConfig `yaml:"logging"`
	Report  ReportConfig  `yaml:"report"`
}

// EvalConfig selects the evaluation inputs.
type EvalConfig struct {
	// OutputDir holds seed=NNN/removed_edges/test_{edges,non_edges}.tsv
	OutputDir string `yaml:"output_dir"`
	// Embedding is the trained embedding file
	Embedding string `yaml:"embedding"`
	// Directed is recorded with the result; scoring ignores it
	Directed bool `yaml:"directed"`
	// Seed of the held-out split
	Seed int `yaml:"seed"`
	// DistFn is poincare, hyperboloid or euclidean
	DistFn string `yaml:"dist_fn"`
}

// ResultsConfig locates the shared result table.
type ResultsConfig struct {
	// Dir is the test results directory
	Dir string `yaml:"dir"`
	// Backend is csv or badger
	Backend string `yaml:"backend"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `yaml:"level"`
	// Format is console or json
	Format string `yaml:"format"`
	// Output is stderr, stdout or a file path
	Output string `yaml:"output"`
}

// ReportConfig controls the printed report.
type ReportConfig struct {
	// Format is compact, summary or json
	Format string `yaml:"format"`
	// SavePath, if set, receives the JSON report
	SavePath string `yaml:"save_path"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Eval: EvalConfig{
			Seed: 0,
		},
		Results: ResultsConfig{
			Backend: string(storage.BackendCSV),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Report: ReportConfig{
			Format: "compact",
		},
	}
}

// LoadConfig reads a YAML file over the defaults. Keys absent from the
// file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv returns the defaults overlaid with LPEVAL_* variables.
func LoadFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnvOrFile loads path if it is non-empty, applies the
// environment, and validates the result.
func LoadFromEnvOrFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields with any LPEVAL_* variables that are set.
// A numeric or boolean variable that does not parse is an error; the
// seed picks the result table row, so it is never guessed.
func (c *Config) ApplyEnv() error {
	var err error
	c.Eval.OutputDir = getEnv("LPEVAL_OUTPUT_DIR", c.Eval.OutputDir)
	c.Eval.Embedding = getEnv("LPEVAL_EMBEDDING", c.Eval.Embedding)
	if c.Eval.Directed, err = getEnvBool("LPEVAL_DIRECTED", c.Eval.Directed); err != nil {
		return err
	}
	if c.Eval.Seed, err = getEnvInt("LPEVAL_SEED", c.Eval.Seed); err != nil {
		return err
	}
	c.Eval.DistFn = getEnv("LPEVAL_DIST_FN", c.Eval.DistFn)

	c.Results.Dir = getEnv("LPEVAL_TEST_RESULTS_DIR", c.Results.Dir)
	c.Results.Backend = getEnv("LPEVAL_RESULTS_BACKEND", c.Results.Backend)

	c.Logging.Level = getEnv("LPEVAL_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LPEVAL_LOG_FORMAT", c.Logging.Format)
	c.Logging.Output = getEnv("LPEVAL_LOG_OUTPUT", c.Logging.Output)

	c.Report.Format = getEnv("LPEVAL_REPORT_FORMAT", c.Report.Format)
	return nil
}

// Validate checks settings that can be checked without touching files.
// Required paths are checked by the command that needs them.
func (c *Config) Validate() error {
	if c.Eval.Seed < 0 {
		return fmt.Errorf("invalid seed: %d", c.Eval.Seed)
	}
	if c.Eval.DistFn != "" {
		if _, err := distance.ParseMetric(c.Eval.DistFn); err != nil {
			return err
		}
	}
	if _, err := storage.ParseBackend(c.Results.Backend); err != nil {
		return err
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil {
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("invalid log format: %q (want console or json)", c.Logging.Format)
	}
	switch strings.ToLower(c.Report.Format) {
	case "", "compact", "summary", "json":
	default:
		return fmt.Errorf("invalid report format: %q (want compact, summary or json)", c.Report.Format)
	}
	return nil
}

// String returns a one-line summary for logs.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Output: %s, Embedding: %s, Seed: %d, DistFn: %s, Directed: %v, Results: %s (%s)}",
		c.Eval.OutputDir, c.Eval.Embedding, c.Eval.Seed, c.Eval.DistFn, c.Eval.Directed,
		c.Results.Dir, c.Results.Backend,
	)
}

// Write encodes the configuration as YAML.
func (c *Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// NewLogger builds the zerolog logger described by c, tagged
// service=lpeval. Unknown levels fall back to info.
func (c LoggingConfig) NewLogger() (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil || c.Level == "" {
		level = zerolog.InfoLevel
	}

	out, closer, err := c.writer()
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	var w io.Writer = out
	if !strings.EqualFold(c.Format, "json") {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
			NoColor:    closer != nil,
		}
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Str("service", "lpeval").Logger()
	if closer == nil {
		closer = nopCloser{}
	}
	return logger, closer, nil
}

// writer resolves Output. The closer is nil for the standard streams.
func (c LoggingConfig) writer() (io.Writer, io.Closer, error) {
	switch strings.ToLower(c.Output) {
	case "", "stderr":
		return os.Stderr, nil, nil
	case "stdout":
		return os.Stdout, nil, nil
	}
	f, err := os.OpenFile(c.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

var (
	// ErrMissing reports a required setting that was not provided.
	ErrMissing = errors.New("required setting missing")
	// ErrInvalidEnv reports an environment variable that does not parse.
	ErrInvalidEnv = errors.New("invalid environment variable")
)

// RequireEval checks that every setting evaluate needs is present.
func (c *Config) RequireEval() error {
	var missing []string
	if c.Eval.OutputDir == "" {
		missing = append(missing, "output")
	}
	if c.Eval.Embedding == "" {
		missing = append(missing, "embedding")
	}
	if c.Results.Dir == "" {
		missing = append(missing, "test-results-dir")
	}
	if c.Eval.DistFn == "" {
		missing = append(missing, "dist-fn")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidEnv, key, val)
	}
	return i, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "":
		return defaultVal, nil
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidEnv, key, val)
	}
	return b, nil
}
