package localization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

// blockMap builds a 5x5 map of zeros with a 3x3 block of 1.0 in the top-left
// corner.
func blockMap() *tensor.Dense {
	backing := make([]float32, 25)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			backing[y*5+x] = 1.0
		}
	}
	return tensor.New(tensor.WithShape(5, 5), tensor.WithBacking(backing))
}

func TestBinarizeRelativeThreshold(t *testing.T) {
	mask, err := Binarize(blockMap(), 0.5)
	require.NoError(t, err)

	// mean = 9/25, cutoff = 0.18: exactly the block survives.
	assert.Equal(t, 9, mask.Area())
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			want := uint8(0)
			if y < 3 && x < 3 {
				want = 1
			}
			assert.Equal(t, want, mask.At(x, y), "cell (%d,%d)", x, y)
		}
	}
}

func TestBinarizeRejectsNonFinite(t *testing.T) {
	zero := float32(0)
	backing := make([]float32, 4)
	backing[0] = 1
	backing[1] = 1 / zero // +Inf
	m := tensor.New(tensor.WithShape(2, 2), tensor.WithBacking(backing))

	_, err := Binarize(m, 0.5)
	require.Error(t, err)
}

// TestScoreHitOnMatchingBox covers the canonical scenario: the thresholded
// block overlaps a ground-truth box over the same region.
func TestScoreHitOnMatchingBox(t *testing.T) {
	scorer := NewScorer(0.5)
	box := &BoundingBox{X1: 0, Y1: 0, X2: 3, Y2: 3}

	hit, err := scorer.Score(blockMap(), box)
	require.NoError(t, err)
	assert.Equal(t, 1, hit)
}

// TestScoreMissOnOppositeCorner covers the companion scenario: the same map
// against a box in the bottom-right corner.
func TestScoreMissOnOppositeCorner(t *testing.T) {
	scorer := NewScorer(0.5)
	box := &BoundingBox{X1: 4, Y1: 4, X2: 5, Y2: 5}

	hit, err := scorer.Score(blockMap(), box)
	require.NoError(t, err)
	assert.Equal(t, 0, hit)
}

func TestScoreIoURule(t *testing.T) {
	scorer := &Scorer{Thresh: 0.5, Rule: RuleIoU, IoUCutoff: 0.5}

	hit, err := scorer.Score(blockMap(), &BoundingBox{X1: 0, Y1: 0, X2: 3, Y2: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, hit)

	hit, err = scorer.Score(blockMap(), &BoundingBox{X1: 2, Y1: 2, X2: 5, Y2: 5})
	require.NoError(t, err)
	assert.Equal(t, 0, hit, "one overlapping cell out of many should miss the cutoff")
}

func TestScoreUnknownRule(t *testing.T) {
	scorer := &Scorer{Thresh: 0.5, Rule: Rule("bogus")}
	_, err := scorer.Score(blockMap(), &BoundingBox{X2: 1, Y2: 1})
	require.Error(t, err)
}

func TestMaskCentroid(t *testing.T) {
	mask := &Mask{Height: 2, Width: 2, Cells: []uint8{1, 0, 0, 1}}
	x, y, ok := mask.Centroid()
	require.True(t, ok)
	assert.InDelta(t, 1.0, float64(x), 1e-6)
	assert.InDelta(t, 1.0, float64(y), 1e-6)

	empty := &Mask{Height: 2, Width: 2, Cells: []uint8{0, 0, 0, 0}}
	_, _, ok = empty.Centroid()
	assert.False(t, ok)
}

func TestBoundingBoxOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b BoundingBox
		iou  float32
	}{
		{
			name: "identical boxes",
			a:    BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100},
			b:    BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100},
			iou:  1.0,
		},
		{
			name: "quarter overlap",
			a:    BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100},
			b:    BoundingBox{X1: 50, Y1: 50, X2: 150, Y2: 150},
			iou:  2500.0 / 17500.0,
		},
		{
			name: "disjoint boxes",
			a:    BoundingBox{X1: 0, Y1: 0, X2: 10, Y2: 10},
			b:    BoundingBox{X1: 20, Y1: 20, X2: 30, Y2: 30},
			iou:  0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, float64(tt.iou), float64(tt.a.IoU(&tt.b)), 1e-5)
		})
	}
}

func TestBoundingBoxScale(t *testing.T) {
	box := BoundingBox{X1: 10, Y1: 20, X2: 30, Y2: 40}
	scaled := box.Scale(2, 0.5)
	assert.Equal(t, BoundingBox{X1: 20, Y1: 10, X2: 60, Y2: 20}, scaled)
}
