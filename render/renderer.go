package render

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Frame is one fully-prepared visualization request: resized maps, their
// captions and the source image. The core hands these over and never draws.
type Frame struct {
	// ID names the output artifact.
	ID string
	// Maps are the resized per-token or per-phrase maps.
	Maps []*tensor.Dense
	// Captions labels Maps 1:1.
	Captions []string
	// Base is the source image the maps localize into.
	Base image.Image
	// Seg switches from heat overlay to binarized segmentation overlay.
	Seg bool
	// Thresh is the relative binarization threshold used when Seg is set.
	Thresh float32
}

// Renderer consumes prepared frames and produces visual artifacts.
type Renderer interface {
	Render(frame *Frame) error
}

// FileRenderer writes one PNG per map into a directory.
type FileRenderer struct {
	// Dir is the output directory.
	Dir string
	// Opacity is the heat overlay opacity, default 0.5.
	Opacity float64
}

// Render writes frame's overlays as <id>-<index>.png files.
func (r *FileRenderer) Render(frame *Frame) error {
	if len(frame.Maps) != len(frame.Captions) {
		return errors.Errorf("frame %q: %d maps, %d captions", frame.ID,
			len(frame.Maps), len(frame.Captions))
	}
	opacity := r.Opacity
	if opacity == 0 {
		opacity = 0.5
	}
	for i, m := range frame.Maps {
		var (
			img image.Image
			err error
		)
		if frame.Seg {
			img, err = SegOverlay(frame.Base, m, frame.Thresh)
		} else {
			img, err = Overlay(frame.Base, m, opacity)
		}
		if err != nil {
			return errors.Wrapf(err, "frame %q map %d (%s)", frame.ID, i, frame.Captions[i])
		}
		path := filepath.Join(r.Dir, fmt.Sprintf("%s-%02d.png", frame.ID, i))
		if err := imaging.Save(img, path); err != nil {
			return errors.Wrapf(err, "save %q", path)
		}
	}
	return nil
}
