// Package geometry defines the region model: named, bounds-checked
// rectangles over a capture and the spatial predicates used to map
// detected pixels back to table features.
package geometry

import (
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"math"
)

// PlaceholderSize is the edge length of the image returned when a region
// lies entirely outside the capture.
const PlaceholderSize = 8

// BoundingBox is a named pixel rectangle with an associated recognizer
// confidence. Instances are owned by a site catalog and never mutated.
type BoundingBox struct {
	X          int     `yaml:"x" json:"x"`
	Y          int     `yaml:"y" json:"y"`
	Width      int     `yaml:"width" json:"width"`
	Height     int     `yaml:"height" json:"height"`
	Confidence float64 `yaml:"confidence,omitempty" json:"confidence,omitempty"`
	Name       string  `yaml:"name,omitempty" json:"name,omitempty"`
}

// Rect converts the box to a stdlib rectangle.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Contains reports whether the point lies inside the box.
func (b BoundingBox) Contains(x, y int) bool {
	return x >= b.X && x < b.X+b.Width && y >= b.Y && y < b.Y+b.Height
}

// Intersects reports whether two boxes overlap.
func (b BoundingBox) Intersects(other BoundingBox) bool {
	return b.Rect().Overlaps(other.Rect())
}

// Center returns the box midpoint.
func (b BoundingBox) Center() image.Point {
	return image.Pt(b.X+b.Width/2, b.Y+b.Height/2)
}

// CenterDistance returns the euclidean distance from the box center to pt.
func (b BoundingBox) CenterDistance(pt image.Point) float64 {
	c := b.Center()
	dx, dy := float64(c.X-pt.X), float64(c.Y-pt.Y)
	return math.Hypot(dx, dy)
}

// Empty reports whether the box has no area.
func (b BoundingBox) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Extract slices the region described by box out of img, clamping to the
// image bounds. A region entirely outside the capture yields a small
// placeholder image and a warning; the pipeline never halts on a
// misconfigured region.
func Extract(img image.Image, box BoundingBox) *image.RGBA {
	clamped := box.Rect().Intersect(img.Bounds())
	if clamped.Empty() {
		slog.Warn("region outside capture bounds, returning placeholder",
			"region", box.Name, "x", box.X, "y", box.Y, "w", box.Width, "h", box.Height)
		return placeholder()
	}

	out := image.NewRGBA(image.Rect(0, 0, clamped.Dx(), clamped.Dy()))
	draw.Draw(out, out.Bounds(), img, clamped.Min, draw.Src)
	return out
}

func placeholder() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, PlaceholderSize, PlaceholderSize))
	draw.Draw(out, out.Bounds(), &image.Uniform{color.Black}, image.Point{}, draw.Src)
	return out
}
