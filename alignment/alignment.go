// Package alignment - Sentinel clipping, phrase aggregation and canonical
// resizing of matchmap grids.
package alignment

import (
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Reserved sentinel tokens, excluded from scoring.
const (
	StartToken   = "<start>"
	EndToken     = "<end>"
	UnknownToken = "<unk>"
)

// DefaultTargetSize is the canonical spatial resolution maps are resized to,
// matching the input resolution of the image encoders.
const DefaultTargetSize = 224

// Mode selects how a clipped alignment is folded before scoring.
type Mode string

const (
	// ModeMatchmap keeps one map per caption token.
	ModeMatchmap Mode = "matchmap"
	// ModePhrase folds token maps into one map per phrase group.
	ModePhrase Mode = "phrase"
)

// Clipped is an immutable caption/matchmap pair with sentinels removed.
// Tokens and Maps are aligned 1:1; in phrase mode each token entry is the
// space-joined phrase text.
type Clipped struct {
	Tokens []string
	Maps   []*tensor.Dense // each (H, W)
}

// NewClipped validates the record invariant before construction.
func NewClipped(tokens []string, maps []*tensor.Dense) (*Clipped, error) {
	if len(tokens) != len(maps) {
		return nil, errors.Errorf("clipped alignment out of step: %d tokens, %d maps",
			len(tokens), len(maps))
	}
	return &Clipped{Tokens: tokens, Maps: maps}, nil
}

// Processor strips sentinels, aggregates phrase groups and resizes maps.
type Processor struct {
	// Start and End are the sentinel tokens recognized by Clip.
	Start, End string
	// TargetSize is the canonical square resolution used by Resize.
	TargetSize int
}

// NewProcessor returns a processor with the default sentinels and target
// resolution.
func NewProcessor() *Processor {
	return &Processor{Start: StartToken, End: EndToken, TargetSize: DefaultTargetSize}
}

// Clip truncates caption and matchmap at the first end sentinel (inclusive)
// and drops the start sentinel at position 0 when present. A caption with no
// end sentinel is a valid degenerate case (maximum-length captions): only the
// start sentinel is dropped. Sentinel-free input passes through unchanged, so
// clipping is idempotent.
//
// Arguments:
//   - tokens: the raw caption including sentinels, aligned with the grid's
//     token dimension.
//   - grid: the (H, W, T) matchmap for the same caption.
//
// Returns:
//   - *Clipped: per-token (H, W) maps paired with the surviving tokens.
//   - error: when the token count and grid token dimension disagree.
func (p *Processor) Clip(tokens []string, grid *tensor.Dense) (*Clipped, error) {
	shape := grid.Shape()
	if len(shape) != 3 {
		return nil, errors.Errorf("matchmap grid must be (H, W, T), got %v", shape)
	}
	height, width, count := shape[0], shape[1], shape[2]
	if len(tokens) != count {
		return nil, errors.Errorf("caption/grid out of step: %d tokens, %d map slots",
			len(tokens), count)
	}

	start := 0
	if count > 0 && tokens[0] == p.Start {
		start = 1
	}
	end := count
	for i := start; i < count; i++ {
		if tokens[i] == p.End {
			end = i
			break
		}
	}

	data, ok := grid.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("float32 grid required, got %v", grid.Dtype())
	}

	kept := make([]string, 0, end-start)
	maps := make([]*tensor.Dense, 0, end-start)
	for t := start; t < end; t++ {
		kept = append(kept, tokens[t])
		maps = append(maps, tokenMap(data, height, width, count, t))
	}
	return &Clipped{Tokens: kept, Maps: maps}, nil
}

// AggregatePhrases folds token maps into phrase maps. Each group is a list of
// token positions into the clipped caption; the phrase map is the elementwise
// mean of the member maps and the phrase text joins the member tokens in
// order. Groups are independent: overlap is allowed and coverage of the full
// caption is not required.
//
// Returns:
//   - *Clipped: exactly one entry per supplied group.
//   - error: when a group is empty or indexes out of range.
func (p *Processor) AggregatePhrases(clipped *Clipped, groups [][]int) (*Clipped, error) {
	tokens := make([]string, 0, len(groups))
	maps := make([]*tensor.Dense, 0, len(groups))

	for gi, group := range groups {
		if len(group) == 0 {
			return nil, errors.Errorf("phrase group %d is empty", gi)
		}
		words := make([]string, 0, len(group))
		var sum []float32
		var height, width int
		for _, pos := range group {
			if pos < 0 || pos >= len(clipped.Tokens) {
				return nil, errors.Errorf("phrase group %d: position %d out of range [0,%d)",
					gi, pos, len(clipped.Tokens))
			}
			words = append(words, clipped.Tokens[pos])
			m := clipped.Maps[pos]
			md, ok := m.Data().([]float32)
			if !ok {
				return nil, errors.Errorf("float32 map required, got %v", m.Dtype())
			}
			if sum == nil {
				height, width = m.Shape()[0], m.Shape()[1]
				sum = make([]float32, len(md))
			}
			for i, v := range md {
				sum[i] += v
			}
		}
		n := float32(len(group))
		for i := range sum {
			sum[i] /= n
		}
		tokens = append(tokens, strings.Join(words, " "))
		maps = append(maps, tensor.New(tensor.WithShape(height, width), tensor.WithBacking(sum)))
	}
	return &Clipped{Tokens: tokens, Maps: maps}, nil
}

// Process is the explicit mode dispatch: clip, then fold per the selected
// mode. groups is ignored in matchmap mode.
func (p *Processor) Process(tokens []string, grid *tensor.Dense, mode Mode, groups [][]int) (*Clipped, error) {
	clipped, err := p.Clip(tokens, grid)
	if err != nil {
		return nil, err
	}
	switch mode {
	case ModeMatchmap, "":
		return clipped, nil
	case ModePhrase:
		return p.AggregatePhrases(clipped, groups)
	default:
		return nil, errors.Errorf("unknown alignment mode %q", mode)
	}
}

// tokenMap copies the 2-D slice for token t out of the (H, W, T) grid data.
func tokenMap(data []float32, height, width, count, t int) *tensor.Dense {
	out := make([]float32, height*width)
	for cell := 0; cell < height*width; cell++ {
		out[cell] = data[cell*count+t]
	}
	return tensor.New(tensor.WithShape(height, width), tensor.WithBacking(out))
}
