package matchmap

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func imageTensor(channels, height, width int, fill func(c, h, w int) float32) *tensor.Dense {
	backing := make([]float32, channels*height*width)
	for c := 0; c < channels; c++ {
		for h := 0; h < height; h++ {
			for w := 0; w < width; w++ {
				backing[c*height*width+h*width+w] = fill(c, h, w)
			}
		}
	}
	return tensor.New(tensor.WithShape(channels, height, width), tensor.WithBacking(backing))
}

func captionTensor(tokens, embed int, fill func(t, c int) float32) *tensor.Dense {
	backing := make([]float32, tokens*embed)
	for tk := 0; tk < tokens; tk++ {
		for c := 0; c < embed; c++ {
			backing[tk*embed+c] = fill(tk, c)
		}
	}
	return tensor.New(tensor.WithShape(tokens, embed), tensor.WithBacking(backing))
}

// TestComputeShapeInvariant verifies the output grid mirrors the image
// spatial resolution and the caption token count.
func TestComputeShapeInvariant(t *testing.T) {
	img := imageTensor(8, 3, 4, func(c, h, w int) float32 { return float32(c + h + w) })
	capt := captionTensor(6, 8, func(tk, c int) float32 { return float32(tk * c) })

	grid, err := NewEngine(nil).Compute(img, capt)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 4, 6}, grid.Shape())
}

// TestComputeDotValues checks the inner-product contract cell by cell on a
// tiny example.
func TestComputeDotValues(t *testing.T) {
	// Region vector at (h, w) is (h, w); token vector at t is (t, 1).
	img := imageTensor(2, 2, 2, func(c, h, w int) float32 {
		if c == 0 {
			return float32(h)
		}
		return float32(w)
	})
	capt := captionTensor(3, 2, func(tk, c int) float32 {
		if c == 0 {
			return float32(tk)
		}
		return 1
	})

	grid, err := NewEngine(Dot).Compute(img, capt)
	require.NoError(t, err)

	data := grid.Data().([]float32)
	for h := 0; h < 2; h++ {
		for w := 0; w < 2; w++ {
			for tk := 0; tk < 3; tk++ {
				want := float32(h*tk + w)
				got := data[(h*2+w)*3+tk]
				assert.Equal(t, want, got, "cell (%d,%d,%d)", h, w, tk)
			}
		}
	}
}

func TestComputeFiniteOutputs(t *testing.T) {
	img := imageTensor(4, 5, 5, func(c, h, w int) float32 { return float32(c)*0.25 - float32(h*w)*0.1 })
	capt := captionTensor(7, 4, func(tk, c int) float32 { return float32(tk-c) * 0.5 })

	grid, err := NewEngine(nil).Compute(img, capt)
	require.NoError(t, err)
	for _, v := range grid.Data().([]float32) {
		require.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0))
	}
}

func TestComputeEmbeddingMismatch(t *testing.T) {
	img := imageTensor(8, 3, 3, func(c, h, w int) float32 { return 1 })
	capt := captionTensor(4, 6, func(tk, c int) float32 { return 1 })

	_, err := NewEngine(nil).Compute(img, capt)
	var shapeErr *IncompatibleShapeError
	require.ErrorAs(t, err, &shapeErr)
}

func TestComputeRejectsWrongRanks(t *testing.T) {
	flat := tensor.New(tensor.WithShape(4, 4), tensor.WithBacking(make([]float32, 16)))
	capt := captionTensor(4, 4, func(tk, c int) float32 { return 1 })

	_, err := NewEngine(nil).Compute(flat, capt)
	var shapeErr *IncompatibleShapeError
	require.ErrorAs(t, err, &shapeErr)

	img := imageTensor(4, 3, 3, func(c, h, w int) float32 { return 1 })
	cube := tensor.New(tensor.WithShape(2, 2, 4), tensor.WithBacking(make([]float32, 16)))
	_, err = NewEngine(nil).Compute(img, cube)
	require.ErrorAs(t, err, &shapeErr)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{2, 0}, []float32{5, 0}), 1e-6)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 3}), 1e-6)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 1}, []float32{-2, -2}), 1e-6)
	assert.Equal(t, float32(0), Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestComputeBatch(t *testing.T) {
	batch := 3
	img := tensor.New(tensor.WithShape(batch, 2, 2, 2),
		tensor.WithBacking(make([]float32, batch*2*2*2)))
	capt := tensor.New(tensor.WithShape(batch, 4, 2),
		tensor.WithBacking(make([]float32, batch*4*2)))

	grids, err := NewEngine(nil).ComputeBatch(img, capt)
	require.NoError(t, err)
	require.Len(t, grids, batch)
	for _, grid := range grids {
		assert.Equal(t, tensor.Shape{2, 2, 4}, grid.Shape())
	}
}

func TestComputeBatchSizeMismatch(t *testing.T) {
	img := tensor.New(tensor.WithShape(2, 2, 2, 2), tensor.WithBacking(make([]float32, 16)))
	capt := tensor.New(tensor.WithShape(3, 4, 2), tensor.WithBacking(make([]float32, 24)))

	_, err := NewEngine(nil).ComputeBatch(img, capt)
	var shapeErr *IncompatibleShapeError
	require.ErrorAs(t, err, &shapeErr)
}
