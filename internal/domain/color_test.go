package domain

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColorFor_Stops(t *testing.T) {
	tests := []struct {
		name     string
		prob     float64
		expected color.NRGBA
	}{
		{"zero", 0, color.NRGBA{R: 0, G: 40, B: 20, A: 31}},
		{"fifty", 50, color.NRGBA{R: 200, G: 240, B: 50, A: 54}},
		{"hundred", 100, color.NRGBA{R: 220, G: 30, B: 140, A: 77}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ColorFor(tt.prob, false).NRGBA())
		})
	}
}

func TestColorFor_Interpolates(t *testing.T) {
	c := ColorFor(45, false)
	// Halfway between the 40 and 50 stops.
	assert.InDelta(t, 160, c.R, 1e-9)
	assert.InDelta(t, 235, c.G, 1e-9)
	assert.InDelta(t, 55, c.B, 1e-9)
	assert.InDelta(t, 0.12+0.45*0.18, c.Alpha, 1e-9)
}

func TestColorFor_Clamps(t *testing.T) {
	assert.Equal(t, ColorFor(0, false), ColorFor(-25, false))
	assert.Equal(t, ColorFor(100, false), ColorFor(250, false))
}

func TestColorFor_OpacityRange(t *testing.T) {
	assert.InDelta(t, 0.12, ColorFor(0, false).Alpha, 1e-12)
	assert.InDelta(t, 0.30, ColorFor(100, false).Alpha, 1e-12)
}

func TestColorFor_OpacityMonotonic(t *testing.T) {
	prev := ColorFor(0, false).Alpha
	for p := 0.25; p <= 100; p += 0.25 {
		cur := ColorFor(p, false).Alpha
		assert.GreaterOrEqual(t, cur, prev, "p=%v", p)
		prev = cur
	}
}

func TestColorFor_Boost(t *testing.T) {
	t.Run("faint colors boosted", func(t *testing.T) {
		c := ColorFor(0, true)
		assert.InDelta(t, 0.48, c.Alpha, 1e-12)
	})

	t.Run("boost capped at one", func(t *testing.T) {
		for p := 0.0; p <= 100; p += 5 {
			assert.LessOrEqual(t, ColorFor(p, true).Alpha, 1.0)
		}
	})

	t.Run("strong colors unchanged", func(t *testing.T) {
		// Base opacity reaches 0.25 at p = 0.7222...
		assert.Equal(t, ColorFor(80, false), ColorFor(80, true))
	})

	t.Run("rgb unaffected by boost", func(t *testing.T) {
		a, b := ColorFor(20, false), ColorFor(20, true)
		assert.Equal(t, a.R, b.R)
		assert.Equal(t, a.G, b.G)
		assert.Equal(t, a.B, b.B)
	})
}

func TestColor_Hex(t *testing.T) {
	assert.Equal(t, "#00281e", Color{R: 0, G: 40, B: 30}.Hex())
	assert.Equal(t, "#dc1e8c", ColorFor(100, false).Hex())
}

func TestLegend(t *testing.T) {
	legend := Legend()
	assert.Len(t, legend, 11)
	assert.Equal(t, 0.0, legend[0].Probability)
	assert.Equal(t, 100.0, legend[10].Probability)
	assert.Equal(t, "#005a28", legend[1].Hex)
	for i := 1; i < len(legend); i++ {
		assert.Greater(t, legend[i].Opacity, legend[i-1].Opacity)
	}
}

func TestPhysicalRadius(t *testing.T) {
	assert.Equal(t, 60_000.0, PhysicalRadius(0))
	assert.Equal(t, 110_000.0, PhysicalRadius(100))
	assert.Equal(t, 85_000.0, PhysicalRadius(50))

	prev := PhysicalRadius(0)
	for p := 0.5; p <= 100; p += 0.5 {
		cur := PhysicalRadius(p)
		assert.Greater(t, cur, prev, "p=%v", p)
		prev = cur
	}
}
