// Package render - Numeric preparation of co-localization overlays. The core
// supplies maps, captions and images; everything here is array-to-image
// plumbing with a thin PNG sink, no plot styling.
package render

import (
	"image"
	"image/color"
	"strings"

	"github.com/anthonynsimon/bild/blend"
	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/groundvision/go-coloc/localization"
)

// Luma converts a color image to grayscale with the standard luma weights
// (0.2989 R, 0.5870 G, 0.1140 B).
func Luma(img image.Image) *image.Gray {
	bounds := img.Bounds()
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			v := 0.2989*float64(r>>8) + 0.5870*float64(g>>8) + 0.1140*float64(b>>8)
			if v > 255 {
				v = 255
			}
			out.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	return out
}

// Heatmap renders a 2-D score map through a blue-to-red gradient. Scores are
// min-max scaled per map; a flat map renders as all-blue.
func Heatmap(m *tensor.Dense) (*image.NRGBA, error) {
	shape := m.Shape()
	if len(shape) != 2 {
		return nil, errors.Errorf("2-D map required, got %v", shape)
	}
	data, ok := m.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("float32 map required, got %v", m.Dtype())
	}
	height, width := shape[0], shape[1]

	lo, hi := data[0], data[0]
	for _, v := range data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo

	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			t := 0.0
			if span > 0 {
				t = float64((data[y*width+x] - lo) / span)
			}
			// Hue sweep 240 (blue) down to 0 (red).
			c := colorful.Hsv(240*(1-t), 1, 1)
			r, g, b := c.RGB255()
			out.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return out, nil
}

// Overlay blends the heatmap of m over base at the given opacity, resizing
// base to the map's resolution first so the overlay lines up cell for cell.
func Overlay(base image.Image, m *tensor.Dense, opacity float64) (image.Image, error) {
	heat, err := Heatmap(m)
	if err != nil {
		return nil, err
	}
	resized := imaging.Resize(base, heat.Bounds().Dx(), heat.Bounds().Dy(), imaging.Lanczos)
	return blend.Opacity(resized, heat, opacity), nil
}

// SegOverlay masks base with the binarized map: cells below the relative
// threshold go black, the rest keep their pixels.
func SegOverlay(base image.Image, m *tensor.Dense, thresh float32) (image.Image, error) {
	mask, err := localization.Binarize(m, thresh)
	if err != nil {
		return nil, err
	}
	resized := imaging.Resize(base, mask.Width, mask.Height, imaging.Lanczos)
	out := image.NewNRGBA(image.Rect(0, 0, mask.Width, mask.Height))
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			if mask.At(x, y) != 0 {
				r, g, b, a := resized.At(x, y).RGBA()
				out.SetNRGBA(x, y, color.NRGBA{
					R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8),
				})
			} else {
				out.SetNRGBA(x, y, color.NRGBA{A: 255})
			}
		}
	}
	return out, nil
}

// JoinTokens renders a token list as a space-separated phrase.
func JoinTokens(tokens []string) string {
	return strings.Join(tokens, " ")
}

// Detokenize flattens a list of tokenized phrases into display strings.
func Detokenize(phrases [][]string) []string {
	out := make([]string, len(phrases))
	for i, phrase := range phrases {
		out[i] = JoinTokens(phrase)
	}
	return out
}
