package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"
)

// Surface is a drawing target that can fill alpha-blended circles.
type Surface interface {
	Size() (width, height int)
	FillCircle(x, y, radius float64, c color.NRGBA)
}

// Background is the dark map backdrop the low-opacity gradient is tuned for.
var Background = color.NRGBA{R: 8, G: 10, B: 22, A: 255}

// kappa places cubic Bézier control points for a quarter circle.
const kappa = 0.5522847498

// RasterSurface draws anti-aliased circles onto an in-memory RGBA image.
type RasterSurface struct {
	img *image.RGBA
	z   vector.Rasterizer
}

// NewRasterSurface creates a surface of the given size filled with bg.
func NewRasterSurface(width, height int, bg color.Color) *RasterSurface {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	return &RasterSurface{img: img}
}

func (s *RasterSurface) Size() (int, int) {
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

// Image returns the underlying canvas.
func (s *RasterSurface) Image() *image.RGBA {
	return s.img
}

// FillCircle composites a circle over the canvas. Only the part of the
// circle inside the canvas is rasterized, so the cost of one fill is bounded
// by the canvas size however large the radius is. A circle that covers the
// whole visible area is filled directly without the rasterizer.
func (s *RasterSurface) FillCircle(x, y, radius float64, c color.NRGBA) {
	if radius <= 0 || c.A == 0 {
		return
	}

	box := image.Rect(
		int(math.Floor(x-radius)), int(math.Floor(y-radius)),
		int(math.Ceil(x+radius)), int(math.Ceil(y+radius)),
	)
	visible := box.Intersect(s.img.Bounds())
	if visible.Empty() {
		return
	}

	src := image.NewUniform(c)
	if covers(x, y, radius, visible) {
		draw.Draw(s.img, visible, src, image.Point{}, draw.Over)
		return
	}

	s.rasterizeCircle(x-float64(visible.Min.X), y-float64(visible.Min.Y), radius, visible.Dx(), visible.Dy())
	s.z.DrawOp = draw.Over
	s.z.Draw(s.img, visible, src, image.Point{})
}

// covers reports whether every pixel of r lies at least one pixel inside the
// circle, past the anti-aliased rim.
func covers(x, y, radius float64, r image.Rectangle) bool {
	inner := radius - 1
	if inner <= 0 {
		return false
	}
	for _, p := range [4][2]float64{
		{float64(r.Min.X), float64(r.Min.Y)},
		{float64(r.Max.X), float64(r.Min.Y)},
		{float64(r.Min.X), float64(r.Max.Y)},
		{float64(r.Max.X), float64(r.Max.Y)},
	} {
		if math.Hypot(p[0]-x, p[1]-y) > inner {
			return false
		}
	}
	return true
}

// rasterizeCircle resets the rasterizer to w×h and adds a circle path
// centered at (cx, cy) in rasterizer-local coordinates. The path may extend
// past the rasterizer bounds; coverage outside them is clipped.
func (s *RasterSurface) rasterizeCircle(cx, cy, r float64, w, h int) {
	s.z.Reset(w, h)

	k := float32(kappa * r)
	fx, fy, fr := float32(cx), float32(cy), float32(r)

	s.z.MoveTo(fx+fr, fy)
	s.z.CubeTo(fx+fr, fy+k, fx+k, fy+fr, fx, fy+fr)
	s.z.CubeTo(fx-k, fy+fr, fx-fr, fy+k, fx-fr, fy)
	s.z.CubeTo(fx-fr, fy-k, fx-k, fy-fr, fx, fy-fr)
	s.z.CubeTo(fx+k, fy-fr, fx+fr, fy-k, fx+fr, fy)
	s.z.ClosePath()
}
