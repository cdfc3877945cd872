// Package main provides the lpeval CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/orneryd/lpeval/pkg/config"
	"github.com/orneryd/lpeval/pkg/eval"
	"github.com/orneryd/lpeval/pkg/math/distance"
	"github.com/orneryd/lpeval/pkg/storage"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// app carries state resolved by the root command for its subcommands.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	logCloser io.Closer
}

func main() {
	a := &app{
		logger: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
			With().Timestamp().Str("service", "lpeval").Logger(),
	}

	rootCmd := newRootCmd(a)
	err := rootCmd.Execute()
	if err != nil {
		a.logger.Error().Err(err).Msg("lpeval failed")
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lpeval",
		Short: "lpeval - link prediction evaluation for graph embeddings",
		Long: `lpeval scores a trained graph embedding on held-out edges.

Given the removed test edges and sampled non-edges of one experiment seed,
it ranks every pair by embedding distance and reports:
  • Mean rank of true edges among non-edges
  • Average precision (AP)
  • ROC-AUC

Supported geometries: poincare, hyperboloid, euclidean.
Results from parallel runs merge into one table under a file lock.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	// --dist_fn and --dist-fn are the same flag.
	rootCmd.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: console, json")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lpeval v%s (%s)\n", version, commit)
		},
	})

	// Evaluate command
	evalCmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate an embedding on one seed's held-out edges",
		RunE:  a.runEvaluate,
	}
	evalCmd.Flags().String("output", "", "Experiment directory containing seed=NNN/removed_edges")
	evalCmd.Flags().String("embedding", "", "Embedding file to evaluate")
	evalCmd.Flags().String("test-results-dir", "", "Directory of the shared result table")
	evalCmd.Flags().Bool("directed", false, "Record the graph as directed (scoring is unchanged)")
	evalCmd.Flags().Int("seed", 0, "Seed of the held-out split")
	evalCmd.Flags().String("dist-fn", "", "Geometry: poincare, hyperboloid, euclidean")
	evalCmd.Flags().String("backend", "", "Result table backend: csv, badger")
	evalCmd.Flags().String("report", "", "Report format: compact, summary, json")
	evalCmd.Flags().String("save", "", "Also write the JSON report to this file")
	rootCmd.AddCommand(evalCmd)

	// Results commands
	resultsCmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect the shared result table",
	}
	resultsCmd.PersistentFlags().String("test-results-dir", "", "Directory of the shared result table")
	resultsCmd.PersistentFlags().String("backend", "", "Result table backend: csv, badger")

	resultsCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the result table as CSV",
		RunE:  a.runResultsShow,
	})
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write the result table to a CSV file",
		RunE:  a.runResultsExport,
	}
	exportCmd.Flags().String("to", "", "Destination CSV file")
	_ = exportCmd.MarkFlagRequired("to")
	resultsCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(resultsCmd)

	// Init command
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default lpeval.yaml",
		RunE:  a.runInit,
	}
	initCmd.Flags().String("dir", ".", "Directory to write lpeval.yaml into")
	initCmd.Flags().Bool("force", false, "Overwrite an existing lpeval.yaml")
	rootCmd.AddCommand(initCmd)

	return rootCmd
}

// setup loads file and environment config, applies the global flags and
// builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFromEnvOrFile(path)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Logging.Format, _ = cmd.Flags().GetString("log-format")
	}

	logger, closer, err := cfg.Logging.NewLogger()
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.logCloser = closer
	a.logger.Debug().Str("config", cfg.String()).Msg("configuration loaded")
	return nil
}

// applyFlags copies explicitly set flags over the loaded config.
func (a *app) applyFlags(flags *pflag.FlagSet) {
	cfg := a.cfg
	if flags.Changed("output") {
		cfg.Eval.OutputDir, _ = flags.GetString("output")
	}
	if flags.Changed("embedding") {
		cfg.Eval.Embedding, _ = flags.GetString("embedding")
	}
	if flags.Changed("test-results-dir") {
		cfg.Results.Dir, _ = flags.GetString("test-results-dir")
	}
	if flags.Changed("directed") {
		cfg.Eval.Directed, _ = flags.GetBool("directed")
	}
	if flags.Changed("seed") {
		cfg.Eval.Seed, _ = flags.GetInt("seed")
	}
	if flags.Changed("dist-fn") {
		cfg.Eval.DistFn, _ = flags.GetString("dist-fn")
	}
	if flags.Changed("backend") {
		cfg.Results.Backend, _ = flags.GetString("backend")
	}
	if flags.Changed("report") {
		cfg.Report.Format, _ = flags.GetString("report")
	}
	if flags.Changed("save") {
		cfg.Report.SavePath, _ = flags.GetString("save")
	}
}

func (a *app) openStore() (storage.ResultStore, error) {
	if a.cfg.Results.Dir == "" {
		return nil, fmt.Errorf("%w: test-results-dir", config.ErrMissing)
	}
	backend, err := storage.ParseBackend(a.cfg.Results.Backend)
	if err != nil {
		return nil, err
	}
	return storage.NewResultStore(backend, a.cfg.Results.Dir)
}

func (a *app) runEvaluate(cmd *cobra.Command, args []string) error {
	a.applyFlags(cmd.Flags())
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	if err := a.cfg.RequireEval(); err != nil {
		return err
	}

	metric, err := distance.ParseMetric(a.cfg.Eval.DistFn)
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	harness := eval.NewHarness(store, a.logger)
	result, err := harness.Run(ctx, eval.Options{
		OutputDir:     a.cfg.Eval.OutputDir,
		EmbeddingPath: a.cfg.Eval.Embedding,
		Seed:          a.cfg.Eval.Seed,
		Metric:        metric,
		Directed:      a.cfg.Eval.Directed,
	})
	if err != nil {
		return err
	}

	reporter := eval.NewReporter(cmd.OutOrStdout())
	if err := reporter.Print(result, a.cfg.Report.Format); err != nil {
		return err
	}
	if a.cfg.Report.SavePath != "" {
		if err := reporter.SaveJSON(result, a.cfg.Report.SavePath); err != nil {
			return err
		}
		a.logger.Info().Str("path", a.cfg.Report.SavePath).Msg("saved report")
	}
	return nil
}

func (a *app) loadTable(cmd *cobra.Command) (*storage.Table, error) {
	a.applyFlags(cmd.Flags())
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	return store.Load(cmd.Context())
}

func (a *app) runResultsShow(cmd *cobra.Command, args []string) error {
	table, err := a.loadTable(cmd)
	if err != nil {
		return err
	}
	return table.WriteCSV(cmd.OutOrStdout())
}

func (a *app) runResultsExport(cmd *cobra.Command, args []string) error {
	table, err := a.loadTable(cmd)
	if err != nil {
		return err
	}

	to, _ := cmd.Flags().GetString("to")
	f, err := os.Create(to)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", to, err)
	}
	if err := table.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	a.logger.Info().Str("path", to).Int("rows", table.Len()).Msg("exported results")
	return nil
}

func (a *app) runInit(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	force, _ := cmd.Flags().GetBool("force")

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, "lpeval.yaml")

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := config.DefaultConfig().Write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ Wrote %s\n", path)
	return nil
}
