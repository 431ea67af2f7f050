// Package render projects downsampled probability samples into screen-space
// circles. Radii are physical distances converted at the current view scale,
// so nothing here caches screen geometry between draws.
package render

import (
	"image/color"
	"math"

	"github.com/couchcryptid/aurora-field/internal/domain"
)

// DefaultMinScreenRadius is the visibility floor; smaller circles are skipped.
const DefaultMinScreenRadius = 0.5

// Circle is one projected draw command.
type Circle struct {
	X, Y   float64
	Radius float64
	Color  color.NRGBA
}

// Stats summarizes one draw pass.
type Stats struct {
	Drawn     int `json:"drawn"`
	SubPixel  int `json:"sub_pixel"`
	OffScreen int `json:"off_screen"`
}

// Renderer turns samples into circles for a view and surface.
type Renderer struct {
	// MinScreenRadius overrides DefaultMinScreenRadius when positive.
	MinScreenRadius float64
	// Boost raises the opacity of faint colors for dark interactive maps.
	Boost bool
}

func (r Renderer) minRadius() float64 {
	if r.MinScreenRadius > 0 {
		return r.MinScreenRadius
	}
	return DefaultMinScreenRadius
}

// ScreenRadius converts a sample's physical radius to pixels using the
// scale at the sample's own latitude. It returns 0 when the scale is not
// usable.
func ScreenRadius(s domain.Sample, view ViewTransform) float64 {
	mpp := view.MetersPerPixel(s.Lat)
	if mpp <= 0 || math.IsNaN(mpp) || math.IsInf(mpp, 0) {
		return 0
	}
	return domain.PhysicalRadius(s.Probability) / mpp
}

// Circles projects samples into draw commands. Sub-pixel circles and
// circles entirely outside the width×height viewport are dropped.
func (r Renderer) Circles(samples []domain.Sample, view ViewTransform, width, height int) ([]Circle, Stats) {
	var stats Stats
	floor := r.minRadius()
	w, h := float64(width), float64(height)

	circles := make([]Circle, 0, len(samples))
	for _, s := range samples {
		radius := ScreenRadius(s, view)
		if radius < floor {
			stats.SubPixel++
			continue
		}

		x, y := view.Project(s.Lat, s.Lon)
		if x+radius < 0 || y+radius < 0 || x-radius > w || y-radius > h {
			stats.OffScreen++
			continue
		}

		circles = append(circles, Circle{
			X:      x,
			Y:      y,
			Radius: radius,
			Color:  domain.ColorFor(s.Probability, r.Boost).NRGBA(),
		})
	}
	stats.Drawn = len(circles)
	return circles, stats
}

// Draw issues one FillCircle per visible sample. It must be called again
// whenever the view changes.
func (r Renderer) Draw(samples []domain.Sample, view ViewTransform, surface Surface) Stats {
	width, height := surface.Size()
	circles, stats := r.Circles(samples, view, width, height)
	for _, c := range circles {
		surface.FillCircle(c.X, c.Y, c.Radius, c.Color)
	}
	return stats
}

// DrawField draws one hemisphere of a published field.
func (r Renderer) DrawField(field *domain.DownsampledField, h domain.Hemisphere, view ViewTransform, surface Surface) Stats {
	return r.Draw(field.Samples(h), view, surface)
}
