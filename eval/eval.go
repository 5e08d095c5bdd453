// Package eval - Dataset-level localization evaluation: matchmap generation,
// alignment processing and hit scoring per example, aggregated to a mean.
package eval

import (
	"context"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"k8s.io/klog/v2"

	"github.com/groundvision/go-coloc/alignment"
	"github.com/groundvision/go-coloc/dataset"
	"github.com/groundvision/go-coloc/localization"
	"github.com/groundvision/go-coloc/matchmap"
)

// Dataset is the data-loading collaborator: random access to encoded
// examples. Any prefetching behind this interface is opaque to the runner.
type Dataset interface {
	Len() int
	At(i int) (*dataset.Example, error)
}

// Annotations is the ground-truth lookup collaborator. Absent identifiers
// surface as *dataset.MissingAnnotationError, never as empty entries.
type Annotations interface {
	Lookup(id string) (*dataset.Annotation, error)
}

// Config tunes a Runner.
type Config struct {
	// Mode selects token-level or phrase-level alignment.
	Mode alignment.Mode
	// Thresh scales each map's mean for binarization. Zero value selects
	// DefaultThresh.
	Thresh float32
	// TargetSize is the canonical map resolution. Zero value selects the
	// alignment default.
	TargetSize int
	// Rule is the overlap rule for hit decisions. Zero value selects
	// centroid-in-box.
	Rule localization.Rule
	// ProgressEvery is the reporting stride in examples. Zero value selects
	// 100.
	ProgressEvery int
}

// DefaultThresh is the relative binarization threshold used when Config
// leaves it unset.
const DefaultThresh = 0.5

// Result aggregates one evaluation pass.
type Result struct {
	// Scores holds the per-example hit scores in dataset order. Token mode
	// yields {0,1}; phrase mode yields the fraction of phrases hit, in
	// [0,1].
	Scores []float64
	// Mean is the arithmetic mean of Scores. The mean of an empty score
	// list is defined as 0.
	Mean float64
}

// Runner drives the per-example pipeline and accumulates scores.
type Runner struct {
	engine *matchmap.Engine
	proc   *alignment.Processor
	scorer *localization.Scorer
	data   Dataset
	anns   Annotations
	cfg    Config
}

// NewRunner wires the pipeline stages together. A nil engine or processor
// selects the defaults.
func NewRunner(engine *matchmap.Engine, proc *alignment.Processor, data Dataset, anns Annotations, cfg Config) *Runner {
	if engine == nil {
		engine = matchmap.NewEngine(nil)
	}
	if proc == nil {
		proc = alignment.NewProcessor()
	}
	if cfg.Thresh == 0 {
		cfg.Thresh = DefaultThresh
	}
	if cfg.ProgressEvery == 0 {
		cfg.ProgressEvery = 100
	}
	if cfg.Mode == "" {
		cfg.Mode = alignment.ModeMatchmap
	}
	scorer := &localization.Scorer{Thresh: cfg.Thresh, Rule: cfg.Rule}
	return &Runner{engine: engine, proc: proc, scorer: scorer, data: data, anns: anns, cfg: cfg}
}

// Run evaluates the first lastN examples and reports per-example scores with
// their arithmetic mean. lastN == 0 yields an empty score list and a mean of
// 0. A shape or annotation failure on any example aborts the whole run: a
// corrupted per-example result cannot be excluded from the mean without
// caller awareness. The abort error reports how many examples scored before
// the failure.
func (r *Runner) Run(ctx context.Context, lastN int) (*Result, error) {
	if lastN < 0 {
		return nil, errors.Errorf("lastN must be non-negative, got %d", lastN)
	}
	if lastN > r.data.Len() {
		return nil, errors.Errorf("lastN %d exceeds dataset size %d", lastN, r.data.Len())
	}

	scores := make([]float64, 0, lastN)
	var sum float64
	for i := 0; i < lastN; i++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "interrupted after %d of %d examples", len(scores), lastN)
		}

		score, err := r.evaluateOne(i)
		if err != nil {
			return nil, errors.Wrapf(err, "aborted after %d of %d examples scored", len(scores), lastN)
		}
		scores = append(scores, score)
		sum += score

		if progressDue(i, r.cfg.ProgressEvery) {
			klog.Infof("evaluated %d/%d: score=%.2f running mean=%.4f",
				i+1, lastN, score, sum/float64(len(scores)))
		}
	}

	mean := 0.0
	if len(scores) > 0 {
		mean = sum / float64(len(scores))
	}
	return &Result{Scores: scores, Mean: mean}, nil
}

// progressDue reports whether example i triggers a progress line: the first
// example and every stride-th one after it.
func progressDue(i, every int) bool {
	return i%every == 0
}

// evaluateOne runs fetch, align and score for a single example.
func (r *Runner) evaluateOne(i int) (float64, error) {
	ex, err := r.data.At(i)
	if err != nil {
		return 0, err
	}

	ann, err := r.anns.Lookup(ex.ID)
	if err != nil {
		return 0, err
	}

	grid, err := r.engine.Compute(ex.ImageFeatures, ex.CaptionFeatures)
	if err != nil {
		return 0, err
	}

	var groups [][]int
	if r.cfg.Mode == alignment.ModePhrase {
		groups = ann.PhraseGroups
	}
	clipped, err := r.proc.Process(ex.Tokens, grid, r.cfg.Mode, groups)
	if err != nil {
		return 0, err
	}
	clipped, err = r.proc.ResizeClipped(clipped, r.cfg.TargetSize)
	if err != nil {
		return 0, err
	}

	if r.cfg.Mode == alignment.ModePhrase {
		return r.scorePhrases(clipped, ann, ex.ID)
	}
	return r.scoreCaption(clipped, ann, ex.ID)
}

// scoreCaption folds all surviving token maps into one caption-level map and
// scores it against the first ground-truth box.
func (r *Runner) scoreCaption(clipped *alignment.Clipped, ann *dataset.Annotation, id string) (float64, error) {
	if len(ann.Boxes) == 0 {
		return 0, errors.Errorf("annotation for %q has no boxes", id)
	}
	if len(clipped.Maps) == 0 {
		return 0, errors.Errorf("no token maps survived clipping for %q", id)
	}

	folded, err := meanMap(clipped.Maps)
	if err != nil {
		return 0, err
	}
	hit, err := r.scorer.Score(folded, &ann.Boxes[0])
	if err != nil {
		return 0, err
	}
	return float64(hit), nil
}

// scorePhrases scores each phrase map against its parallel box and reports
// the fraction of phrases hit.
func (r *Runner) scorePhrases(clipped *alignment.Clipped, ann *dataset.Annotation, id string) (float64, error) {
	if len(clipped.Maps) == 0 {
		return 0, errors.Errorf("annotation for %q has no phrase groups", id)
	}
	if len(ann.Boxes) != len(clipped.Maps) {
		return 0, errors.Errorf("annotation for %q has %d boxes for %d phrases",
			id, len(ann.Boxes), len(clipped.Maps))
	}

	hits := 0
	for pi, m := range clipped.Maps {
		hit, err := r.scorer.Score(m, &ann.Boxes[pi])
		if err != nil {
			return 0, errors.Wrapf(err, "phrase %d", pi)
		}
		hits += hit
	}
	return float64(hits) / float64(len(clipped.Maps)), nil
}

func meanMap(maps []*tensor.Dense) (*tensor.Dense, error) {
	shape := maps[0].Shape()
	sum := make([]float32, shape.TotalSize())
	for _, m := range maps {
		data, ok := m.Data().([]float32)
		if !ok || len(data) != len(sum) {
			return nil, errors.Errorf("mismatched map in caption fold: %v", m.Shape())
		}
		for i, v := range data {
			sum[i] += v
		}
	}
	n := float32(len(maps))
	for i := range sum {
		sum[i] /= n
	}
	return tensor.New(tensor.WithShape(shape[0], shape[1]), tensor.WithBacking(sum)), nil
}
