package domain

import (
	"fmt"
	"image/color"
	"math"
)

// Color is an interpolated fill with channels in [0, 255] and alpha in [0, 1].
type Color struct {
	R, G, B float64
	Alpha   float64
}

// NRGBA converts the color to an 8-bit non-premultiplied color.
func (c Color) NRGBA() color.NRGBA {
	return color.NRGBA{
		R: channel(c.R),
		G: channel(c.G),
		B: channel(c.B),
		A: channel(c.Alpha * 255),
	}
}

// Hex renders the opaque color as #rrggbb.
func (c Color) Hex() string {
	n := c.NRGBA()
	return fmt.Sprintf("#%02x%02x%02x", n.R, n.G, n.B)
}

func channel(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(255, v))))
}

type rgb struct{ r, g, b float64 }

// colorStops are the gradient anchors at probability 0, 10, ..., 100: a dim
// green base rising through yellow and orange into red and magenta.
var colorStops = [11]rgb{
	{0, 40, 20},
	{0, 90, 40},
	{0, 150, 60},
	{40, 200, 70},
	{120, 230, 60},
	{200, 240, 50},
	{250, 220, 40},
	{255, 170, 30},
	{255, 110, 30},
	{240, 50, 60},
	{220, 30, 140},
}

// Opacity bounds of the unboosted gradient.
const (
	baseOpacity   = 0.12
	opacityRange  = 0.18
	boostCeiling  = 0.25
	boostFactor   = 4.0
	maxOpacityCap = 1.0
)

// ColorFor maps a probability in [0, 100] to a fill color. Inputs outside the
// range are clamped. With boost set, faint colors (base opacity below 0.25)
// have their opacity multiplied by four, capped at 1. Legends and any output
// that must be reproducible use boost=false.
func ColorFor(probability float64, boost bool) Color {
	if math.IsNaN(probability) {
		probability = 0
	}
	probability = math.Max(0, math.Min(100, probability))
	p := probability / 100

	exact := p * 10
	idx := int(math.Floor(exact))
	frac := exact - float64(idx)
	idx = min(max(idx, 0), len(colorStops)-1)
	next := min(idx+1, len(colorStops)-1)

	lo, hi := colorStops[idx], colorStops[next]
	c := Color{
		R:     lerp(lo.r, hi.r, frac),
		G:     lerp(lo.g, hi.g, frac),
		B:     lerp(lo.b, hi.b, frac),
		Alpha: baseOpacity + p*opacityRange,
	}

	if boost && c.Alpha < boostCeiling {
		c.Alpha = math.Min(c.Alpha*boostFactor, maxOpacityCap)
	}
	return c
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// LegendEntry is one color stop as shown in a legend.
type LegendEntry struct {
	Probability float64 `json:"probability"`
	Hex         string  `json:"hex"`
	Opacity     float64 `json:"opacity"`
}

// Legend returns the unboosted color at each of the 11 stops.
func Legend() []LegendEntry {
	entries := make([]LegendEntry, len(colorStops))
	for i := range colorStops {
		prob := float64(i * 10)
		c := ColorFor(prob, false)
		entries[i] = LegendEntry{Probability: prob, Hex: c.Hex(), Opacity: c.Alpha}
	}
	return entries
}

// Physical footprint of a rendered sample, in meters.
const (
	MinRadiusMeters  = 60_000.0
	RadiusSpanMeters = 50_000.0
)

// PhysicalRadius returns the ground radius of a sample's circle: 60 km at
// probability 0 growing linearly to 110 km at probability 100.
func PhysicalRadius(probability float64) float64 {
	return MinRadiusMeters + (probability/100)*RadiusSpanMeters
}
