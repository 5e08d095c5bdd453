// Package localization - Thresholded region masks scored against ground-truth
// bounding boxes.
package localization

import (
	"fmt"
	"image"
)

// BoundingBox is a ground-truth region with float32 corners in map
// coordinates.
type BoundingBox struct {
	X1, Y1, X2, Y2 float32
}

func (b *BoundingBox) String() string {
	return fmt.Sprintf("Box (%f, %f), (%f, %f)", b.X1, b.Y1, b.X2, b.Y2)
}

// This loses fractional pixels around the edges when converting to the
// integral rectangles of the image library, which is fine for overlap
// estimates against cell-grid masks.
func (b *BoundingBox) ToRect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2)).Canon()
}

// RectArea returns the area of b in cells, after converting to an
// image.Rectangle.
func (b *BoundingBox) RectArea() int {
	size := b.ToRect().Size()
	return size.X * size.Y
}

// Contains reports whether the point (x, y) falls inside the box.
func (b *BoundingBox) Contains(x, y float32) bool {
	return x >= b.X1 && x < b.X2 && y >= b.Y1 && y < b.Y2
}

func (b *BoundingBox) Intersection(other *BoundingBox) float32 {
	r1 := b.ToRect()
	r2 := other.ToRect()
	intersected := r1.Intersect(r2).Canon().Size()
	return float32(intersected.X * intersected.Y)
}

func (b *BoundingBox) Union(other *BoundingBox) float32 {
	intersectArea := b.Intersection(other)
	totalArea := float32(b.RectArea() + other.RectArea())
	return totalArea - intersectArea
}

// IoU measures the overlap of two boxes as intersection area over union area,
// between 0 and 1.
func (b *BoundingBox) IoU(other *BoundingBox) float32 {
	union := b.Union(other)
	if union == 0 {
		return 0
	}
	return b.Intersection(other) / union
}

// Scale maps the box from one coordinate space to another, e.g. from original
// image pixels to the canonical map resolution.
func (b *BoundingBox) Scale(sx, sy float32) BoundingBox {
	return BoundingBox{X1: b.X1 * sx, Y1: b.Y1 * sy, X2: b.X2 * sx, Y2: b.Y2 * sy}
}
