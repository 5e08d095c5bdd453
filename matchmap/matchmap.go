// Package matchmap - Dense co-localization grids between image regions and caption tokens.
package matchmap

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Similarity scores one image-region feature vector against one caption-token
// feature vector. Both slices share the embedding dimension.
type Similarity func(region, token []float32) float32

// Dot is the minimal similarity contract: an inner product over the shared
// embedding dimension.
func Dot(region, token []float32) float32 {
	var sum float32
	for i := range region {
		sum += region[i] * token[i]
	}
	return sum
}

// Cosine normalizes the inner product by both magnitudes. A zero vector on
// either side scores 0.
func Cosine(region, token []float32) float32 {
	var dot, rn, tn float32
	for i := range region {
		dot += region[i] * token[i]
		rn += region[i] * region[i]
		tn += token[i] * token[i]
	}
	if rn == 0 || tn == 0 {
		return 0
	}
	return dot / (math32.Sqrt(rn) * math32.Sqrt(tn))
}

// IncompatibleShapeError reports a dimensionality mismatch between image and
// caption feature tensors.
type IncompatibleShapeError struct {
	ImageShape   tensor.Shape
	CaptionShape tensor.Shape
	Reason       string
}

func (e *IncompatibleShapeError) Error() string {
	return fmt.Sprintf("incompatible feature shapes: image %v, caption %v: %s",
		e.ImageShape, e.CaptionShape, e.Reason)
}

// Engine computes matchmap grids for single examples or batches.
type Engine struct {
	sim Similarity
}

// NewEngine creates an engine with the given similarity policy. A nil policy
// selects Dot.
func NewEngine(sim Similarity) *Engine {
	if sim == nil {
		sim = Dot
	}
	return &Engine{sim: sim}
}

// Compute builds the (H, W, T) similarity grid for one example.
//
// Arguments:
//   - imageFeatures: (C, H, W) image encoder output.
//   - captionFeatures: (T, C) caption encoder output, one row per token
//     including sentinels.
//
// Returns:
//   - *tensor.Dense: the (H, W, T) grid; cell (h, w, t) is the similarity of
//     the image feature vector at (h, w) and the caption feature vector at t.
//   - error: *IncompatibleShapeError when the embedding dimensions differ.
func (e *Engine) Compute(imageFeatures, captionFeatures *tensor.Dense) (*tensor.Dense, error) {
	is := imageFeatures.Shape()
	cs := captionFeatures.Shape()
	if len(is) != 3 {
		return nil, &IncompatibleShapeError{ImageShape: is, CaptionShape: cs,
			Reason: "image features must be (C, H, W)"}
	}
	if len(cs) != 2 {
		return nil, &IncompatibleShapeError{ImageShape: is, CaptionShape: cs,
			Reason: "caption features must be (T, C)"}
	}
	channels, height, width := is[0], is[1], is[2]
	tokens, embed := cs[0], cs[1]
	if channels != embed {
		return nil, &IncompatibleShapeError{ImageShape: is, CaptionShape: cs,
			Reason: fmt.Sprintf("embedding dims differ: image %d, caption %d", channels, embed)}
	}

	img, err := floats(imageFeatures)
	if err != nil {
		return nil, err
	}
	capt, err := floats(captionFeatures)
	if err != nil {
		return nil, err
	}

	plane := height * width
	region := make([]float32, channels)
	out := make([]float32, height*width*tokens)
	for h := 0; h < height; h++ {
		for w := 0; w < width; w++ {
			// The region vector is strided across the channel dimension.
			cell := h*width + w
			for c := 0; c < channels; c++ {
				region[c] = img[c*plane+cell]
			}
			for t := 0; t < tokens; t++ {
				out[cell*tokens+t] = e.sim(region, capt[t*embed:(t+1)*embed])
			}
		}
	}

	return tensor.New(tensor.WithShape(height, width, tokens), tensor.WithBacking(out)), nil
}

// ComputeBatch maps Compute over the leading batch dimension.
//
// Arguments:
//   - imageFeatures: (N, C, H, W).
//   - captionFeatures: (N, T, C).
//
// Returns:
//   - []*tensor.Dense: one (H, W, T) grid per example.
//   - error: *IncompatibleShapeError on any dimension mismatch.
func (e *Engine) ComputeBatch(imageFeatures, captionFeatures *tensor.Dense) ([]*tensor.Dense, error) {
	is := imageFeatures.Shape()
	cs := captionFeatures.Shape()
	if len(is) != 4 {
		return nil, &IncompatibleShapeError{ImageShape: is, CaptionShape: cs,
			Reason: "batched image features must be (N, C, H, W)"}
	}
	if len(cs) != 3 {
		return nil, &IncompatibleShapeError{ImageShape: is, CaptionShape: cs,
			Reason: "batched caption features must be (N, T, C)"}
	}
	if is[0] != cs[0] {
		return nil, &IncompatibleShapeError{ImageShape: is, CaptionShape: cs,
			Reason: fmt.Sprintf("batch sizes differ: image %d, caption %d", is[0], cs[0])}
	}

	img, err := floats(imageFeatures)
	if err != nil {
		return nil, err
	}
	capt, err := floats(captionFeatures)
	if err != nil {
		return nil, err
	}

	imgStride := is[1] * is[2] * is[3]
	capStride := cs[1] * cs[2]
	grids := make([]*tensor.Dense, is[0])
	for i := 0; i < is[0]; i++ {
		imgT := tensor.New(tensor.WithShape(is[1], is[2], is[3]),
			tensor.WithBacking(img[i*imgStride:(i+1)*imgStride]))
		capT := tensor.New(tensor.WithShape(cs[1], cs[2]),
			tensor.WithBacking(capt[i*capStride:(i+1)*capStride]))
		grid, err := e.Compute(imgT, capT)
		if err != nil {
			return nil, err
		}
		grids[i] = grid
	}
	return grids, nil
}

func floats(t *tensor.Dense) ([]float32, error) {
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("float32 tensors required, got %v", t.Dtype())
	}
	return data, nil
}
