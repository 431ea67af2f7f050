package render

import (
	"fmt"
	"math"
	"strconv"

	"github.com/couchcryptid/aurora-field/internal/domain"
)

// Projection names accepted by ViewSpec.
const (
	ProjectionMercator  = "mercator"
	ProjectionMollweide = "mollweide"
)

// Image size and zoom limits for requested renders. A single circle fill
// costs at most one canvas worth of pixels, so MaxImageSize bounds the work
// of a render.
const (
	MinImageSize = 16
	MaxImageSize = 2048
	MaxZoom      = 12.0
)

// ViewSpec is a serializable description of a view, as received from a
// query string or command line.
type ViewSpec struct {
	Projection string
	Width      int
	Height     int
	Zoom       float64
	CenterLat  float64
	CenterLon  float64
}

// DefaultViewSpec frames a hemisphere with CameraFor.
func DefaultViewSpec(h domain.Hemisphere, width, height int) ViewSpec {
	cam := CameraFor(h, width, height)
	return ViewSpec{
		Projection: ProjectionMercator,
		Width:      width,
		Height:     height,
		Zoom:       cam.Zoom,
		CenterLat:  cam.CenterLat,
		CenterLon:  cam.CenterLon,
	}
}

// Validate checks sizes, zoom and center.
func (s ViewSpec) Validate() error {
	if s.Width < MinImageSize || s.Width > MaxImageSize {
		return fmt.Errorf("width must be between %d and %d", MinImageSize, MaxImageSize)
	}
	if s.Height < MinImageSize || s.Height > MaxImageSize {
		return fmt.Errorf("height must be between %d and %d", MinImageSize, MaxImageSize)
	}
	if math.IsNaN(s.Zoom) || s.Zoom < 0 || s.Zoom > MaxZoom {
		return fmt.Errorf("zoom must be between 0 and %g", MaxZoom)
	}
	if math.IsNaN(s.CenterLat) || s.CenterLat < -maxMercatorLat || s.CenterLat > maxMercatorLat {
		return fmt.Errorf("lat must be between %g and %g", -maxMercatorLat, maxMercatorLat)
	}
	if math.IsNaN(s.CenterLon) || s.CenterLon < -180 || s.CenterLon > 360 {
		return fmt.Errorf("lon must be between -180 and 360")
	}
	switch s.Projection {
	case ProjectionMercator, ProjectionMollweide:
	default:
		return fmt.Errorf("unknown projection %q", s.Projection)
	}
	return nil
}

// View builds the transform. Mollweide ignores the center and fits the
// whole world to the image at zoom 0.
func (s ViewSpec) View() (ViewTransform, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.Projection == ProjectionMollweide {
		fit := math.Min(float64(s.Width)/(4*math.Sqrt2), float64(s.Height)/(2*math.Sqrt2))
		return MollweideView{
			Width:  s.Width,
			Height: s.Height,
			Scale:  fit * math.Exp2(s.Zoom),
		}, nil
	}
	return MercatorView{
		CenterLat: s.CenterLat,
		CenterLon: domain.NormalizeLongitude(s.CenterLon),
		Zoom:      s.Zoom,
		Width:     s.Width,
		Height:    s.Height,
	}, nil
}

// Key identifies the rendered pixels of this view.
func (s ViewSpec) Key() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	if s.Projection == ProjectionMollweide {
		return fmt.Sprintf("%s:%dx%d:z%s", s.Projection, s.Width, s.Height, f(s.Zoom))
	}
	return fmt.Sprintf("%s:%dx%d:z%s:%s,%s", s.Projection, s.Width, s.Height,
		f(s.Zoom), f(s.CenterLat), f(domain.NormalizeLongitude(s.CenterLon)))
}
