// Package eval scores how well a graph embedding predicts held-out links.
//
// A run reads the held-out edge and non-edge sets of one experiment seed,
// loads the trained embedding, turns pairwise distances into scores, and
// computes three metrics:
//   - Mean rank: where each true edge lands among the non-edges (1 is best)
//   - Average precision (AP): area under the precision-recall curve
//   - ROC-AUC: probability a true edge outscores a non-edge
//
// The metrics are merged into the shared result table for the seed.
//
// Example usage:
//
//	store, _ := storage.NewResultStore(storage.BackendCSV, "./results")
//	harness := eval.NewHarness(store, logger)
//
//	result, err := harness.Run(ctx, eval.Options{
//	    OutputDir:     "./experiments/cora",
//	    EmbeddingPath: "./experiments/cora/embedding.csv",
//	    Seed:          0,
//	    Metric:        distance.Poincare,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	eval.NewReporter(os.Stdout).PrintCompact(result)
//
// ELI12 (Explain Like I'm 12):
//
// Think of it like grading a map:
//   - Someone drew a map where friends should live close together
//   - We secretly know some real friendships (edges) and some strangers
//   - If the real friends are drawn closer than the strangers, the map is good
//   - The harness turns "how much closer" into a few grades
package eval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/orneryd/lpeval/pkg/embedding"
	"github.com/orneryd/lpeval/pkg/linkpredict"
	"github.com/orneryd/lpeval/pkg/math/distance"
	"github.com/orneryd/lpeval/pkg/storage"
)

// Options selects the experiment a run evaluates.
type Options struct {
	// OutputDir is the experiment directory holding seed=NNN/removed_edges.
	OutputDir string `json:"output_dir"`

	// EmbeddingPath is the trained embedding file.
	EmbeddingPath string `json:"embedding_path"`

	// Seed picks the held-out edge split and the result table row.
	Seed int `json:"seed"`

	// Metric is the geometry the embedding was trained in.
	Metric distance.Metric `json:"dist_fn"`

	// Directed is recorded with the result. Scoring treats every pair as
	// given in the edge files regardless.
	Directed bool `json:"directed"`
}

// Validate checks that every required option is set.
func (o Options) Validate() error {
	if o.OutputDir == "" {
		return errors.New("output directory is required")
	}
	if o.EmbeddingPath == "" {
		return errors.New("embedding path is required")
	}
	if o.Seed < 0 {
		return fmt.Errorf("seed must be non-negative, got %d", o.Seed)
	}
	if !o.Metric.Valid() {
		return fmt.Errorf("%w: %q", distance.ErrUnknownMetric, string(o.Metric))
	}
	return nil
}

// EvalResult is the outcome of one run.
type EvalResult struct {
	RunID     string          `json:"run_id"`
	Seed      int             `json:"seed"`
	Metric    distance.Metric `json:"dist_fn"`
	Directed  bool            `json:"directed"`
	Timestamp time.Time       `json:"timestamp"`
	Duration  time.Duration   `json:"duration"`

	// Problem size
	Nodes      int `json:"nodes"`
	Dimensions int `json:"dimensions"`
	Edges      int `json:"edges"`
	NonEdges   int `json:"non_edges"`

	// OffManifold counts embedding rows outside the metric's manifold.
	OffManifold int `json:"off_manifold,omitempty"`

	Metrics Metrics `json:"metrics"`

	// ResultsPath is where the metrics were merged, empty if not saved.
	ResultsPath string `json:"results_path,omitempty"`
}

// Harness runs evaluations and records their metrics.
type Harness struct {
	store  storage.ResultStore
	logger zerolog.Logger
}

// NewHarness creates a harness that saves into store. A nil store runs
// evaluations without recording them.
func NewHarness(store storage.ResultStore, logger zerolog.Logger) *Harness {
	return &Harness{
		store:  store,
		logger: logger,
	}
}

// Run evaluates one embedding against one seed's held-out edges.
//
// The context is checked between stages; once the result table lock is
// taken the save runs to completion.
func (h *Harness) Run(ctx context.Context, opts Options) (*EvalResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &EvalResult{
		RunID:     uuid.NewString(),
		Seed:      opts.Seed,
		Metric:    opts.Metric,
		Directed:  opts.Directed,
		Timestamp: start,
	}

	log := h.logger.With().
		Str("run_id", result.RunID).
		Int("seed", opts.Seed).
		Str("dist_fn", opts.Metric.String()).
		Logger()

	// Held-out edges
	dir := linkpredict.RemovedEdgesDir(opts.OutputDir, opts.Seed)
	edges, err := linkpredict.ReadEdgeList(linkpredict.TestEdgesPath(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to load test edges: %w", err)
	}
	nonEdges, err := linkpredict.ReadEdgeList(linkpredict.TestNonEdgesPath(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to load test non-edges: %w", err)
	}
	result.Edges = len(edges)
	result.NonEdges = len(nonEdges)
	log.Debug().
		Str("dir", dir).
		Int("edges", len(edges)).
		Int("non_edges", len(nonEdges)).
		Msg("loaded held-out edges")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Embedding
	format := embedding.FormatFor(opts.Metric)
	emb, err := embedding.Load(opts.EmbeddingPath, format)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding: %w", err)
	}
	result.Nodes, result.Dimensions = emb.Dims()
	log.Debug().
		Str("path", opts.EmbeddingPath).
		Str("format", format.String()).
		Int("nodes", result.Nodes).
		Int("dims", result.Dimensions).
		Msg("loaded embedding")

	if bad := emb.CheckManifold(opts.Metric); bad > 0 {
		result.OffManifold = bad
		log.Warn().
			Int("rows", bad).
			Msg("embedding rows lie off the manifold; distances are clamped")
	}

	if err := edges.Validate(result.Nodes); err != nil {
		return nil, fmt.Errorf("test edges: %w", err)
	}
	if err := nonEdges.Validate(result.Nodes); err != nil {
		return nil, fmt.Errorf("test non-edges: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Scoring
	dists, err := distance.Pairwise(opts.Metric, emb.Vectors)
	if err != nil {
		return nil, fmt.Errorf("failed to compute distances: %w", err)
	}
	metrics, err := EvaluateRankAndAP(Scores(dists), edges, nonEdges)
	if err != nil {
		return nil, err
	}
	result.Metrics = metrics

	log.Info().
		Float64("mean_rank", metrics.MeanRank).
		Float64("ap", metrics.AveragePrecision).
		Float64("roc_auc", metrics.ROCAUC).
		Msg("evaluated link prediction")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Result table
	if h.store != nil {
		if err := h.store.Save(ctx, opts.Seed, metrics.Columns()); err != nil {
			return nil, fmt.Errorf("failed to save results: %w", err)
		}
		result.ResultsPath = h.store.Path()
		log.Debug().Str("path", result.ResultsPath).Msg("saved results")
	}

	result.Duration = time.Since(start)
	return result, nil
}
