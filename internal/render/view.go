package render

import (
	"math"

	"github.com/golang/geo/s2"

	"github.com/couchcryptid/aurora-field/internal/domain"
)

// EarthRadiusMeters is the WGS-84 equatorial radius.
const EarthRadiusMeters = 6378137.0

// ViewTransform is the host view's geographic-to-pixel mapping. It is
// recomputed by the host on every pan or zoom and must be consulted per
// sample on every draw.
type ViewTransform interface {
	// Project maps a geographic position to screen pixels.
	Project(lat, lon float64) (x, y float64)
	// MetersPerPixel reports the ground distance covered by one pixel at
	// the given latitude.
	MetersPerPixel(lat float64) float64
}

// Web-Mercator tiles are 256 px at zoom 0.
const tileSize = 256.0

// maxMercatorLat is where Web-Mercator's square world ends.
const maxMercatorLat = 85.05112878

// MercatorView is a Web-Mercator viewport centered on a geographic point.
type MercatorView struct {
	CenterLat, CenterLon float64
	Zoom                 float64
	Width, Height        int
}

func (v MercatorView) worldSize() float64 {
	return tileSize * math.Exp2(v.Zoom)
}

// worldPixel projects onto the unwrapped world plane at the view's zoom.
func (v MercatorView) worldPixel(lat, lon float64) (float64, float64) {
	world := v.worldSize()
	lat = math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
	sinLat := math.Sin(lat * math.Pi / 180)

	x := (lon + 180) / 360 * world
	y := (0.5 - math.Log((1+sinLat)/(1-sinLat))/(4*math.Pi)) * world
	return x, y
}

// Project maps a position to viewport pixels. Longitudes are wrapped to the
// copy of the world nearest the view center so fields straddling the
// antimeridian stay contiguous.
func (v MercatorView) Project(lat, lon float64) (x, y float64) {
	world := v.worldSize()
	px, py := v.worldPixel(lat, lon)
	cx, cy := v.worldPixel(v.CenterLat, v.CenterLon)

	dx := px - cx
	if dx > world/2 {
		dx -= world
	} else if dx < -world/2 {
		dx += world
	}
	return float64(v.Width)/2 + dx, float64(v.Height)/2 + (py - cy)
}

// MetersPerPixel is the Web-Mercator ground resolution at lat.
func (v MercatorView) MetersPerPixel(lat float64) float64 {
	lat = math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
	return math.Cos(lat*math.Pi/180) * 2 * math.Pi * EarthRadiusMeters / v.worldSize()
}

// MollweideView is an equal-area whole-world view. Scale is the projection
// radius in pixels.
type MollweideView struct {
	Width, Height int
	Scale         float64
}

// maxMollweideLat keeps the Newton iteration away from the poles.
const maxMollweideLat = 89.5

func clampMollweideLat(lat float64) float64 {
	return math.Max(-maxMollweideLat, math.Min(maxMollweideLat, lat))
}

// Project solves 2θ + sin 2θ = π sin φ by Newton iteration.
func (v MollweideView) Project(lat, lon float64) (x, y float64) {
	lat = clampMollweideLat(lat)
	latRad, lonRad := lat*math.Pi/180, lon*math.Pi/180

	theta := latRad
	for range 10 {
		denom := 2 + 2*math.Cos(2*theta)
		if math.Abs(denom) < 1e-9 {
			break
		}
		delta := (2*theta + math.Sin(2*theta) - math.Pi*math.Sin(latRad)) / denom
		theta -= delta
		if math.Abs(delta) < 1e-7 {
			break
		}
	}

	r := v.Scale
	x = float64(v.Width)/2 + r*(2*math.Sqrt2/math.Pi)*lonRad*math.Cos(theta)
	y = float64(v.Height)/2 - r*math.Sqrt2*math.Sin(theta)
	return x, y
}

// scaleProbeDegrees is the step used to measure local scale.
const scaleProbeDegrees = 0.05

// MetersPerPixel measures the local scale geodesically. Mollweide stretches
// east-west and north-south by different factors, so the geometric mean of
// the two is returned; a circle drawn at that radius covers the correct
// ground area.
func (v MollweideView) MetersPerPixel(lat float64) float64 {
	lat = clampMollweideLat(lat)
	lat0 := lat - scaleProbeDegrees/2
	lat1 := lat + scaleProbeDegrees/2
	origin := s2.LatLngFromDegrees(lat, 0)

	east := s2.LatLngFromDegrees(lat, scaleProbeDegrees)
	x0, y0 := v.Project(lat, 0)
	x1, y1 := v.Project(lat, scaleProbeDegrees)
	ewMeters := origin.Distance(east).Radians() * EarthRadiusMeters
	ewPixels := math.Hypot(x1-x0, y1-y0)

	south, north := s2.LatLngFromDegrees(lat0, 0), s2.LatLngFromDegrees(lat1, 0)
	sx, sy := v.Project(lat0, 0)
	nx, ny := v.Project(lat1, 0)
	nsMeters := south.Distance(north).Radians() * EarthRadiusMeters
	nsPixels := math.Hypot(nx-sx, ny-sy)

	if ewPixels == 0 || nsPixels == 0 {
		return math.Inf(1)
	}
	return math.Sqrt((ewMeters / ewPixels) * (nsMeters / nsPixels))
}

// Default hemisphere framing for the interactive map.
const (
	defaultCameraLat  = 62.0
	defaultCameraZoom = 2.0
	northCameraLon    = -100.0
	southCameraLon    = 140.0
)

// CameraFor returns the default Mercator framing for a hemisphere: centered
// on the auroral oval over North America for the north and over
// Australia/New Zealand for the south.
func CameraFor(h domain.Hemisphere, width, height int) MercatorView {
	v := MercatorView{
		CenterLat: defaultCameraLat,
		CenterLon: northCameraLon,
		Zoom:      defaultCameraZoom,
		Width:     width,
		Height:    height,
	}
	if h == domain.South {
		v.CenterLat = -defaultCameraLat
		v.CenterLon = southCameraLon
	}
	return v
}
