package alignment

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Resize maps every 2-D slice to a square target resolution using bilinear
// interpolation. Bilinear is monotonic between samples, so the relative
// ordering of high and low score regions survives; maps from different
// encoders become directly comparable and overlays line up with the source
// image.
//
// The float32 grids are interpolated directly rather than routed through an
// image resampler, which would quantize scores to 8- or 16-bit channels.
func (p *Processor) Resize(maps []*tensor.Dense, size int) ([]*tensor.Dense, error) {
	if size <= 0 {
		size = p.TargetSize
	}
	out := make([]*tensor.Dense, len(maps))
	for i, m := range maps {
		r, err := resizeBilinear(m, size, size)
		if err != nil {
			return nil, errors.Wrapf(err, "map %d", i)
		}
		out[i] = r
	}
	return out, nil
}

// ResizeClipped resizes the maps of a clipped alignment in place order,
// returning a new record with the same tokens.
func (p *Processor) ResizeClipped(clipped *Clipped, size int) (*Clipped, error) {
	maps, err := p.Resize(clipped.Maps, size)
	if err != nil {
		return nil, err
	}
	return &Clipped{Tokens: clipped.Tokens, Maps: maps}, nil
}

func resizeBilinear(m *tensor.Dense, outH, outW int) (*tensor.Dense, error) {
	shape := m.Shape()
	if len(shape) != 2 {
		return nil, errors.Errorf("2-D map required, got %v", shape)
	}
	srcH, srcW := shape[0], shape[1]
	if srcH == 0 || srcW == 0 {
		return nil, errors.Errorf("empty map %v", shape)
	}
	src, ok := m.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("float32 map required, got %v", m.Dtype())
	}

	dst := make([]float32, outH*outW)
	scaleY := float32(srcH) / float32(outH)
	scaleX := float32(srcW) / float32(outW)
	for y := 0; y < outH; y++ {
		// Sample at pixel centers so corners are not over-weighted.
		fy := (float32(y)+0.5)*scaleY - 0.5
		y0 := clampInt(int(fy), 0, srcH-1)
		y1 := clampInt(y0+1, 0, srcH-1)
		wy := fy - float32(y0)
		if wy < 0 {
			wy = 0
		}
		for x := 0; x < outW; x++ {
			fx := (float32(x)+0.5)*scaleX - 0.5
			x0 := clampInt(int(fx), 0, srcW-1)
			x1 := clampInt(x0+1, 0, srcW-1)
			wx := fx - float32(x0)
			if wx < 0 {
				wx = 0
			}

			top := src[y0*srcW+x0]*(1-wx) + src[y0*srcW+x1]*wx
			bottom := src[y1*srcW+x0]*(1-wx) + src[y1*srcW+x1]*wx
			dst[y*outW+x] = top*(1-wy) + bottom*wy
		}
	}
	return tensor.New(tensor.WithShape(outH, outW), tensor.WithBacking(dst)), nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
