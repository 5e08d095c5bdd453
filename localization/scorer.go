package localization

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Mask is a binarized region map.
type Mask struct {
	Height, Width int
	Cells         []uint8 // row-major, 0 or 1
}

// At reports the mask value at (x, y).
func (m *Mask) At(x, y int) uint8 {
	return m.Cells[y*m.Width+x]
}

// Area counts the positive cells.
func (m *Mask) Area() int {
	n := 0
	for _, c := range m.Cells {
		n += int(c)
	}
	return n
}

// Centroid returns the mean position of positive cells, measured at cell
// centers. ok is false when the mask has no positive cells.
func (m *Mask) Centroid() (x, y float32, ok bool) {
	var sx, sy float32
	n := 0
	for cy := 0; cy < m.Height; cy++ {
		for cx := 0; cx < m.Width; cx++ {
			if m.Cells[cy*m.Width+cx] != 0 {
				sx += float32(cx) + 0.5
				sy += float32(cy) + 0.5
				n++
			}
		}
	}
	if n == 0 {
		return 0, 0, false
	}
	return sx / float32(n), sy / float32(n), true
}

// BoxIoU measures positive-cell overlap with a box: cells inside the box and
// positive, over cells that are either.
func (m *Mask) BoxIoU(box *BoundingBox) float32 {
	inter, union := 0, 0
	for cy := 0; cy < m.Height; cy++ {
		for cx := 0; cx < m.Width; cx++ {
			pos := m.Cells[cy*m.Width+cx] != 0
			in := box.Contains(float32(cx)+0.5, float32(cy)+0.5)
			if pos && in {
				inter++
			}
			if pos || in {
				union++
			}
		}
	}
	if union == 0 {
		return 0
	}
	return float32(inter) / float32(union)
}

// Binarize thresholds a region map relative to its own mean intensity: cells
// at or above thresh*mean(map) become 1, the rest 0. Scaling by the map's
// mean keeps the cutoff comparable across maps with different score scales.
func Binarize(m *tensor.Dense, thresh float32) (*Mask, error) {
	shape := m.Shape()
	if len(shape) != 2 {
		return nil, errors.Errorf("2-D region map required, got %v", shape)
	}
	data, ok := m.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("float32 region map required, got %v", m.Dtype())
	}
	if len(data) == 0 {
		return nil, errors.Errorf("empty region map %v", shape)
	}

	var sum float32
	for _, v := range data {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return nil, errors.Errorf("region map contains non-finite values")
		}
		sum += v
	}
	cutoff := thresh * sum / float32(len(data))

	cells := make([]uint8, len(data))
	for i, v := range data {
		if v >= cutoff {
			cells[i] = 1
		}
	}
	return &Mask{Height: shape[0], Width: shape[1], Cells: cells}, nil
}

// Rule selects the deterministic overlap test used for the hit decision.
type Rule string

const (
	// RuleCentroid records a hit when the centroid of the binarized mask's
	// positive cells falls inside the ground-truth box. This is the default
	// rule.
	RuleCentroid Rule = "centroid"
	// RuleIoU records a hit when the mask/box IoU reaches the scorer's
	// cutoff.
	RuleIoU Rule = "iou"
)

// DefaultIoUCutoff is the mask/box overlap required by RuleIoU.
const DefaultIoUCutoff = 0.5

// Scorer turns an aggregated region map and a ground-truth box into a binary
// hit decision.
type Scorer struct {
	// Thresh scales the map mean for binarization.
	Thresh float32
	// Rule is the overlap test; zero value selects RuleCentroid.
	Rule Rule
	// IoUCutoff applies under RuleIoU; zero value selects DefaultIoUCutoff.
	IoUCutoff float32
}

// NewScorer returns a centroid-in-box scorer with the given relative
// threshold.
func NewScorer(thresh float32) *Scorer {
	return &Scorer{Thresh: thresh, Rule: RuleCentroid}
}

// Score binarizes the region map at Thresh relative to its mean and applies
// the scorer's overlap rule against the ground-truth box.
//
// Returns:
//   - int: 1 for a hit, 0 for a miss. An all-negative mask is a miss.
//   - error: when the map is malformed or the rule unknown.
func (s *Scorer) Score(m *tensor.Dense, box *BoundingBox) (int, error) {
	mask, err := Binarize(m, s.Thresh)
	if err != nil {
		return 0, err
	}

	switch s.Rule {
	case RuleCentroid, "":
		x, y, ok := mask.Centroid()
		if !ok {
			return 0, nil
		}
		if box.Contains(x, y) {
			return 1, nil
		}
		return 0, nil
	case RuleIoU:
		cutoff := s.IoUCutoff
		if cutoff == 0 {
			cutoff = DefaultIoUCutoff
		}
		if mask.BoxIoU(box) >= cutoff {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, errors.Errorf("unknown overlap rule %q", s.Rule)
	}
}
