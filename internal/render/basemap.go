package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"

	geojson "github.com/paulmach/go.geojson"
)

// Land is the fill color for basemap polygons.
var Land = color.NRGBA{R: 26, G: 29, B: 35, A: 255}

// Basemap holds land polygons as rings of [lon, lat] positions.
type Basemap struct {
	polygons [][][][]float64
}

// LoadBasemap reads polygon and multipolygon features from a GeoJSON feature
// collection. Other geometry types are ignored.
func LoadBasemap(r io.Reader) (*Basemap, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read basemap: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode basemap: %w", err)
	}

	b := &Basemap{}
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		switch {
		case f.Geometry.IsPolygon():
			b.polygons = append(b.polygons, f.Geometry.Polygon)
		case f.Geometry.IsMultiPolygon():
			b.polygons = append(b.polygons, f.Geometry.MultiPolygon...)
		}
	}
	return b, nil
}

// Len returns the number of polygons.
func (b *Basemap) Len() int {
	if b == nil {
		return 0
	}
	return len(b.polygons)
}

// Draw fills every polygon that projects cleanly. Rings that jump more than
// half the canvas between consecutive vertices straddle the view's wrap seam
// and are skipped.
func (b *Basemap) Draw(s *RasterSurface, view ViewTransform) {
	if b == nil {
		return
	}
	w, h := s.Size()
	maxJump := float64(max(w, h)) / 2

	for _, poly := range b.polygons {
		rings := make([][][2]float64, 0, len(poly))
		for _, ring := range poly {
			projected, ok := projectRing(ring, view, maxJump)
			if !ok {
				rings = nil
				break
			}
			rings = append(rings, projected)
		}
		if len(rings) > 0 {
			s.FillPolygon(rings, Land)
		}
	}
}

func projectRing(ring [][]float64, view ViewTransform, maxJump float64) ([][2]float64, bool) {
	out := make([][2]float64, 0, len(ring))
	for i, pos := range ring {
		if len(pos) < 2 {
			continue
		}
		x, y := view.Project(pos[1], pos[0])
		if i > 0 && len(out) > 0 && math.Abs(x-out[len(out)-1][0]) > maxJump {
			return nil, false
		}
		out = append(out, [2]float64{x, y})
	}
	return out, len(out) >= 3
}

// FillPolygon fills the rings of one polygon. Holes wound opposite to the
// outer ring stay unfilled. Rings are clipped to the canvas first.
func (s *RasterSurface) FillPolygon(rings [][][2]float64, c color.NRGBA) {
	bounds := s.img.Bounds()
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	s.z.Reset(bounds.Dx(), bounds.Dy())

	drawn := false
	for _, ring := range rings {
		ring = clipRing(ring, w, h)
		if len(ring) < 3 {
			continue
		}
		s.z.MoveTo(float32(ring[0][0]), float32(ring[0][1]))
		for _, p := range ring[1:] {
			s.z.LineTo(float32(p[0]), float32(p[1]))
		}
		s.z.ClosePath()
		drawn = true
	}
	if !drawn {
		return
	}

	s.z.DrawOp = draw.Over
	s.z.Draw(s.img, bounds, image.NewUniform(c), image.Point{})
}

// clipRing clips a closed ring to [0,w]×[0,h] (Sutherland-Hodgman).
func clipRing(ring [][2]float64, w, h float64) [][2]float64 {
	type edge struct {
		inside func(p [2]float64) bool
		cross  func(a, b [2]float64) [2]float64
	}
	lerpX := func(a, b [2]float64, x float64) [2]float64 {
		t := (x - a[0]) / (b[0] - a[0])
		return [2]float64{x, a[1] + t*(b[1]-a[1])}
	}
	lerpY := func(a, b [2]float64, y float64) [2]float64 {
		t := (y - a[1]) / (b[1] - a[1])
		return [2]float64{a[0] + t*(b[0]-a[0]), y}
	}
	edges := []edge{
		{func(p [2]float64) bool { return p[0] >= 0 }, func(a, b [2]float64) [2]float64 { return lerpX(a, b, 0) }},
		{func(p [2]float64) bool { return p[0] <= w }, func(a, b [2]float64) [2]float64 { return lerpX(a, b, w) }},
		{func(p [2]float64) bool { return p[1] >= 0 }, func(a, b [2]float64) [2]float64 { return lerpY(a, b, 0) }},
		{func(p [2]float64) bool { return p[1] <= h }, func(a, b [2]float64) [2]float64 { return lerpY(a, b, h) }},
	}

	out := ring
	for _, e := range edges {
		if len(out) == 0 {
			return nil
		}
		in := out
		out = make([][2]float64, 0, len(in)+4)
		prev := in[len(in)-1]
		for _, cur := range in {
			switch curIn, prevIn := e.inside(cur), e.inside(prev); {
			case curIn && prevIn:
				out = append(out, cur)
			case curIn:
				out = append(out, e.cross(prev, cur), cur)
			case prevIn:
				out = append(out, e.cross(prev, cur))
			}
			prev = cur
		}
	}
	return out
}
