package dataset

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Example is one dataset entry: encoded features plus the identifier used to
// look up annotations.
type Example struct {
	// ImageFeatures is the (C, H, W) image encoder output.
	ImageFeatures *tensor.Dense
	// CaptionFeatures is the (T, C) caption feature sequence, sentinels
	// included.
	CaptionFeatures *tensor.Dense
	// Tokens is the raw caption aligned token-for-token with
	// CaptionFeatures.
	Tokens []string
	// ID is the opaque caption/image identifier.
	ID string
}

// SliceDataset is an in-memory dataset with random access by integer index.
// It satisfies both the evaluation runner's dataset contract and the
// sampler's length lister.
type SliceDataset []Example

// Len reports the total number of examples.
func (d SliceDataset) Len() int { return len(d) }

// At returns the example at index i.
func (d SliceDataset) At(i int) (*Example, error) {
	if i < 0 || i >= len(d) {
		return nil, errors.Errorf("dataset index %d out of range [0,%d)", i, len(d))
	}
	return &d[i], nil
}

// CaptionLength reports the token count of example i, sentinels included.
func (d SliceDataset) CaptionLength(i int) (int, error) {
	ex, err := d.At(i)
	if err != nil {
		return 0, err
	}
	return len(ex.Tokens), nil
}
