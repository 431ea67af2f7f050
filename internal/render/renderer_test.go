package render

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/aurora-field/internal/domain"
)

// --- test doubles ---

// flatView places samples on a plain lon/lat grid with a scale supplied
// per latitude.
type flatView struct {
	pxPerDegree float64
	mpp         func(lat float64) float64
	calls       []float64
}

func (v *flatView) Project(lat, lon float64) (float64, float64) {
	return lon * v.pxPerDegree, -lat * v.pxPerDegree
}

func (v *flatView) MetersPerPixel(lat float64) float64 {
	v.calls = append(v.calls, lat)
	return v.mpp(lat)
}

func constantScale(mpp float64) func(float64) float64 {
	return func(float64) float64 { return mpp }
}

type recordedCircle struct {
	x, y, r float64
	c       color.NRGBA
}

type recordingSurface struct {
	width, height int
	circles       []recordedCircle
}

func (s *recordingSurface) Size() (int, int) { return s.width, s.height }

func (s *recordingSurface) FillCircle(x, y, r float64, c color.NRGBA) {
	s.circles = append(s.circles, recordedCircle{x, y, r, c})
}

// --- tests ---

func TestScreenRadius(t *testing.T) {
	view := &flatView{pxPerDegree: 1, mpp: constantScale(1000)}

	assert.InDelta(t, 60.0, ScreenRadius(domain.Sample{Probability: 0}, view), 1e-9)
	assert.InDelta(t, 110.0, ScreenRadius(domain.Sample{Probability: 100}, view), 1e-9)
	assert.InDelta(t, 85.0, ScreenRadius(domain.Sample{Probability: 50}, view), 1e-9)
}

func TestScreenRadius_UnusableScale(t *testing.T) {
	for _, mpp := range []float64{0, -5} {
		view := &flatView{mpp: constantScale(mpp)}
		assert.Zero(t, ScreenRadius(domain.Sample{Probability: 50}, view))
	}
}

func TestRenderer_UsesScaleAtSampleLatitude(t *testing.T) {
	view := &flatView{
		pxPerDegree: 1,
		mpp: func(lat float64) float64 {
			// Twice the ground distance per pixel poleward of 60°.
			if math.Abs(lat) >= 60 {
				return 2000
			}
			return 1000
		},
	}
	surface := &recordingSurface{width: 1000, height: 1000}
	samples := []domain.Sample{
		{Lon: 100, Lat: -50, Probability: 100},
		{Lon: 200, Lat: -60, Probability: 100},
		{Lon: 300, Lat: -70, Probability: 100},
	}

	stats := Renderer{}.Draw(samples, view, surface)

	assert.Equal(t, []float64{-50, -60, -70}, view.calls)
	assert.Equal(t, Stats{Drawn: 3}, stats)
	require.Len(t, surface.circles, 3)
	assert.InDelta(t, 110.0, surface.circles[0].r, 1e-9)
	assert.InDelta(t, 55.0, surface.circles[1].r, 1e-9)
	assert.InDelta(t, 55.0, surface.circles[2].r, 1e-9)
}

func TestRenderer_SkipsSubPixelCircles(t *testing.T) {
	view := &flatView{pxPerDegree: 1, mpp: constantScale(500_000)}
	surface := &recordingSurface{width: 100, height: 100}

	// 60 km / 500 km per px = 0.12 px, 110 km => 0.22 px.
	samples := []domain.Sample{
		{Lon: 10, Lat: -10, Probability: 5},
		{Lon: 20, Lat: -20, Probability: 100},
	}
	stats := Renderer{}.Draw(samples, view, surface)

	assert.Empty(t, surface.circles)
	assert.Equal(t, Stats{SubPixel: 2}, stats)
}

func TestRenderer_MinScreenRadiusBoundary(t *testing.T) {
	// Exactly 0.5 px is drawn.
	view := &flatView{pxPerDegree: 1, mpp: constantScale(120_000)}
	surface := &recordingSurface{width: 100, height: 100}

	stats := Renderer{}.Draw([]domain.Sample{{Lon: 10, Lat: -10, Probability: 0}}, view, surface)

	assert.Equal(t, 1, stats.Drawn)
}

func TestRenderer_CullsOffScreen(t *testing.T) {
	view := &flatView{pxPerDegree: 1, mpp: constantScale(10_000)}
	surface := &recordingSurface{width: 100, height: 100}

	samples := []domain.Sample{
		{Lon: 50, Lat: -50, Probability: 50},  // inside
		{Lon: -20, Lat: -50, Probability: 50}, // overlaps left edge (r=8.5)
		{Lon: 500, Lat: -50, Probability: 50}, // far right
		{Lon: 50, Lat: 40, Probability: 50},   // above the top
	}
	stats := Renderer{}.Draw(samples, view, surface)

	assert.Equal(t, Stats{Drawn: 1, OffScreen: 3}, stats)

	samples[1].Lon = -5
	stats = Renderer{}.Draw(samples, view, &recordingSurface{width: 100, height: 100})
	assert.Equal(t, 2, stats.Drawn)
}

func TestRenderer_RedrawsOnViewChange(t *testing.T) {
	samples := []domain.Sample{{Lon: 10, Lat: -10, Probability: 100}}
	surface := &recordingSurface{width: 100, height: 100}

	Renderer{}.Draw(samples, &flatView{pxPerDegree: 1, mpp: constantScale(10_000)}, surface)
	Renderer{}.Draw(samples, &flatView{pxPerDegree: 2, mpp: constantScale(5_000)}, surface)

	require.Len(t, surface.circles, 2)
	assert.InDelta(t, 11.0, surface.circles[0].r, 1e-9)
	assert.InDelta(t, 22.0, surface.circles[1].r, 1e-9)
	assert.InDelta(t, 20.0, surface.circles[1].x, 1e-9)
}

func TestRenderer_ColorsFromMapper(t *testing.T) {
	view := &flatView{pxPerDegree: 1, mpp: constantScale(10_000)}
	samples := []domain.Sample{{Lon: 10, Lat: -10, Probability: 10}}

	plain, _ := Renderer{}.Circles(samples, view, 100, 100)
	boosted, _ := Renderer{Boost: true}.Circles(samples, view, 100, 100)

	require.Len(t, plain, 1)
	require.Len(t, boosted, 1)
	assert.Equal(t, domain.ColorFor(10, false).NRGBA(), plain[0].Color)
	assert.Equal(t, domain.ColorFor(10, true).NRGBA(), boosted[0].Color)
	assert.Greater(t, boosted[0].Color.A, plain[0].Color.A)
}

func TestRenderer_DrawField(t *testing.T) {
	field := &domain.DownsampledField{
		Northern: []domain.Sample{{Lon: 10, Lat: 60, Probability: 50}},
		Southern: []domain.Sample{{Lon: 10, Lat: -60, Probability: 50}, {Lon: 20, Lat: -61, Probability: 50}},
	}
	view := MercatorView{CenterLat: -60, CenterLon: 15, Zoom: 3, Width: 400, Height: 400}
	surface := &recordingSurface{width: 400, height: 400}

	stats := Renderer{}.DrawField(field, domain.South, view, surface)

	assert.Equal(t, 2, stats.Drawn)
	assert.Len(t, surface.circles, 2)
}

func TestRasterSurface_FillCircle(t *testing.T) {
	s := NewRasterSurface(100, 100, Background)
	s.FillCircle(50, 50, 10, color.NRGBA{R: 255, A: 128})

	img := s.Image()
	center := img.RGBAAt(50, 50)
	corner := img.RGBAAt(0, 0)

	assert.Greater(t, center.R, corner.R)
	assert.Equal(t, color.RGBA{R: Background.R, G: Background.G, B: Background.B, A: 255}, corner)
	assert.Equal(t, corner, img.RGBAAt(50, 70))
}

func TestRasterSurface_FillCircleAcrossEdge(t *testing.T) {
	s := NewRasterSurface(50, 50, Background)

	assert.NotPanics(t, func() {
		s.FillCircle(0, 0, 10, color.NRGBA{G: 255, A: 200})
		s.FillCircle(49, 49, 10, color.NRGBA{G: 255, A: 200})
		s.FillCircle(-100, -100, 10, color.NRGBA{G: 255, A: 200})
	})

	img := s.Image()
	assert.Greater(t, img.RGBAAt(1, 1).G, Background.G)
	assert.Greater(t, img.RGBAAt(48, 48).G, Background.G)
	assert.Equal(t, Background.G, img.RGBAAt(25, 25).G)
}

func TestRasterSurface_CircleCoveringCanvas(t *testing.T) {
	fill := color.NRGBA{R: 200, G: 40, B: 90, A: 77}

	s := NewRasterSurface(64, 48, Background)
	s.FillCircle(32, 24, 1e6, fill)

	want := image.NewRGBA(image.Rect(0, 0, 64, 48))
	draw.Draw(want, want.Bounds(), image.NewUniform(Background), image.Point{}, draw.Src)
	draw.Draw(want, want.Bounds(), image.NewUniform(fill), image.Point{}, draw.Over)

	assert.Equal(t, want.Pix, s.Image().Pix)
}

// allocatedBytes reports the bytes allocated while fn runs.
func allocatedBytes(fn func()) uint64 {
	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	fn()
	runtime.ReadMemStats(&after)
	return after.TotalAlloc - before.TotalAlloc
}

func TestRasterSurface_HugeCircleCostBoundedByCanvas(t *testing.T) {
	const size = 256
	fill := color.NRGBA{G: 255, A: 200}

	canvasSized := NewRasterSurface(size, size, Background)
	baseline := allocatedBytes(func() {
		canvasSized.FillCircle(size/2, size/2, size/2, fill)
	})

	// The rim crosses the canvas at x=100, so the rasterizer has to run.
	huge := NewRasterSurface(size, size, Background)
	const radius = 50_000.0
	cost := allocatedBytes(func() {
		huge.FillCircle(100-radius, size/2, radius, fill)
	})

	assert.LessOrEqual(t, cost, 4*baseline+64<<10, "huge circle allocated %d bytes, canvas-sized %d", cost, baseline)

	img := huge.Image()
	assert.Greater(t, img.RGBAAt(50, size/2).G, Background.G)
	assert.Equal(t, Background.G, img.RGBAAt(150, size/2).G)
}

func TestRenderer_MaxZoomRenderIsBounded(t *testing.T) {
	samples := make([]domain.Sample, 20)
	for i := range samples {
		samples[i] = domain.Sample{Lon: -100, Lat: 65, Probability: 90}
	}
	view := MercatorView{CenterLat: 65, CenterLon: -100, Zoom: MaxZoom, Width: 1024, Height: 1024}
	require.Greater(t, ScreenRadius(samples[0], view), 1000.0)

	surface := NewRasterSurface(1024, 1024, Background)
	var stats Stats
	cost := allocatedBytes(func() {
		stats = Renderer{}.Draw(samples, view, surface)
	})

	assert.Equal(t, 20, stats.Drawn)
	assert.Less(t, cost, uint64(16<<20), "allocated %d bytes", cost)
	assert.Greater(t, surface.Image().RGBAAt(512, 512).R, Background.R)
}

func TestRenderPNG(t *testing.T) {
	field := &domain.DownsampledField{
		Northern: []domain.Sample{{Lon: -100, Lat: 62, Probability: 90}},
	}
	opts := Options{Width: 320, Height: 240, View: CameraFor(domain.North, 320, 240), Boost: true}

	data, stats, err := RenderPNGBytes(field, domain.North, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Drawn)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 240, img.Bounds().Dy())

	r, _, _, _ := img.At(160, 120).RGBA()
	bgR, _, _, _ := Background.RGBA()
	assert.Greater(t, r, bgR)
}
