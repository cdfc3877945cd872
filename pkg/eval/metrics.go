package eval

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/orneryd/lpeval/pkg/linkpredict"
)

// Result table column names.
const (
	ColumnMeanRank         = "mean_rank_lp"
	ColumnAveragePrecision = "ap_lp"
	ColumnROCAUC           = "roc_lp"
)

var (
	// ErrPositiveScore is returned when a score matrix has an entry above 0
	// (or NaN). Scores are negated distances; callers must negate first.
	ErrPositiveScore = errors.New("score matrix must be non-positive")
	// ErrNoEdges is returned when the positive (true edge) set is empty.
	ErrNoEdges = errors.New("no test edges to score")
	// ErrNoNonEdges is returned when the negative (non-edge) set is empty.
	ErrNoNonEdges = errors.New("no test non-edges to score")
)

// Metrics holds the link prediction quality of one embedding.
type Metrics struct {
	// MeanRank is the average, over true edges, of 1 + the number of
	// non-edges scored strictly higher. 1 is best.
	MeanRank float64 `json:"mean_rank"`

	// AveragePrecision summarizes the precision-recall curve. 1 is best.
	AveragePrecision float64 `json:"average_precision"`

	// ROCAUC is the area under the ROC curve. 1 is best, 0.5 is chance.
	ROCAUC float64 `json:"roc_auc"`
}

// Columns returns the metrics keyed by result table column.
func (m Metrics) Columns() map[string]float64 {
	return map[string]float64{
		ColumnMeanRank:         m.MeanRank,
		ColumnAveragePrecision: m.AveragePrecision,
		ColumnROCAUC:           m.ROCAUC,
	}
}

// Scores returns the elementwise negation of a distance matrix, so that
// closer pairs score higher and every score is <= 0.
func Scores(distances mat.Matrix) *mat.Dense {
	var s mat.Dense
	s.Scale(-1, distances)
	return &s
}

// EvaluateRankAndAP scores the true edges against the non-edges.
//
// scores[i][j] is the score of the pair (i, j); higher means more likely to
// be an edge, and every entry must be <= 0. Labels are 1 for edges and 0 for
// non-edges, concatenated in that order.
//
// Mean rank places a true edge before any non-edge with an equal score: its
// rank is 1 + the count of non-edges scoring strictly higher.
//
// Example:
//
//	d, _ := distance.Pairwise(distance.Euclidean, x)
//	m, err := eval.EvaluateRankAndAP(eval.Scores(d), edges, nonEdges)
//	if err != nil {
//		return err
//	}
//	fmt.Printf("MEAN RANK = %v AP = %v AUROC = %v\n", m.MeanRank, m.AveragePrecision, m.ROCAUC)
func EvaluateRankAndAP(scores mat.Matrix, edges, nonEdges []linkpredict.Edge) (Metrics, error) {
	if len(edges) == 0 {
		return Metrics{}, ErrNoEdges
	}
	if len(nonEdges) == 0 {
		return Metrics{}, ErrNoNonEdges
	}
	if err := checkNonPositive(scores); err != nil {
		return Metrics{}, err
	}

	edgeScores, err := gather(scores, edges)
	if err != nil {
		return Metrics{}, fmt.Errorf("edges: %w", err)
	}
	nonEdgeScores, err := gather(scores, nonEdges)
	if err != nil {
		return Metrics{}, fmt.Errorf("non-edges: %w", err)
	}

	labels := make([]bool, 0, len(edgeScores)+len(nonEdgeScores))
	values := make([]float64, 0, len(edgeScores)+len(nonEdgeScores))
	for _, s := range edgeScores {
		labels = append(labels, true)
		values = append(values, s)
	}
	for _, s := range nonEdgeScores {
		labels = append(labels, false)
		values = append(values, s)
	}

	ap, auc := rankingMetrics(values, labels, len(edgeScores), len(nonEdgeScores))

	return Metrics{
		MeanRank:         meanRank(edgeScores, nonEdgeScores),
		AveragePrecision: ap,
		ROCAUC:           auc,
	}, nil
}

func checkNonPositive(scores mat.Matrix) error {
	r, c := scores.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			// !(v <= 0) also catches NaN.
			if v := scores.At(i, j); !(v <= 0) {
				return fmt.Errorf("%w: scores[%d][%d] = %v", ErrPositiveScore, i, j, v)
			}
		}
	}
	return nil
}

func gather(scores mat.Matrix, pairs []linkpredict.Edge) ([]float64, error) {
	r, c := scores.Dims()
	out := make([]float64, len(pairs))
	for i, p := range pairs {
		if p.Source < 0 || p.Source >= r || p.Target < 0 || p.Target >= c {
			return nil, fmt.Errorf("%w: pair %d (%d, %d) with %dx%d scores",
				linkpredict.ErrNodeOutOfRange, i, p.Source, p.Target, r, c)
		}
		out[i] = scores.At(p.Source, p.Target)
	}
	return out, nil
}

// rankingMetrics returns average precision and ROC-AUC with higher values
// ranked as more likely positive.
//
// stat.ROC walks the distinct thresholds from high to low, giving the true
// and false positive rates after each one. The AUC is the trapezoidal area
// under that walk, which credits ties with one half. AP sums precision at
// each threshold weighted by the recall gained there.
func rankingMetrics(values []float64, labels []bool, positives, negatives int) (ap, auc float64) {
	y := append([]float64(nil), values...)
	classes := append([]bool(nil), labels...)
	stat.SortWeightedLabeled(y, classes, nil)

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	auc = integrate.Trapezoidal(fpr, tpr)

	p, n := float64(positives), float64(negatives)
	var prevRecall float64
	for i := 1; i < len(tpr); i++ {
		tp := tpr[i] * p
		fp := fpr[i] * n
		if tp+fp == 0 {
			continue
		}
		ap += (tpr[i] - prevRecall) * tp / (tp + fp)
		prevRecall = tpr[i]
	}
	return ap, auc
}

// meanRank returns the mean over edge scores of 1 + the number of non-edge
// scores strictly greater than it.
func meanRank(edgeScores, nonEdgeScores []float64) float64 {
	// Ascending order of the negated non-edge scores is descending order of
	// the scores; a leftmost search for -s then counts non-edges with a
	// score strictly above s.
	negated := make([]float64, len(nonEdgeScores))
	for i, s := range nonEdgeScores {
		negated[i] = -s
	}
	sort.Float64s(negated)

	ranks := make([]float64, len(edgeScores))
	for i, s := range edgeScores {
		ranks[i] = float64(sort.SearchFloat64s(negated, -s) + 1)
	}
	return stat.Mean(ranks, nil)
}
