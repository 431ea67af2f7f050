package render

import (
	"bytes"
	"fmt"
	"image/png"
	"io"

	"github.com/couchcryptid/aurora-field/internal/domain"
)

// Options describes one rendered image.
type Options struct {
	Width, Height int
	View          ViewTransform
	Boost         bool
	// Basemap, when set, is filled under the field.
	Basemap *Basemap
}

// RenderPNG draws one hemisphere of a field and writes it as PNG.
func RenderPNG(w io.Writer, field *domain.DownsampledField, h domain.Hemisphere, opts Options) (Stats, error) {
	surface := NewRasterSurface(opts.Width, opts.Height, Background)
	opts.Basemap.Draw(surface, opts.View)
	stats := Renderer{Boost: opts.Boost}.DrawField(field, h, opts.View, surface)

	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(w, surface.Image()); err != nil {
		return stats, fmt.Errorf("encode png: %w", err)
	}
	return stats, nil
}

// RenderPNGBytes is RenderPNG into a byte slice.
func RenderPNGBytes(field *domain.DownsampledField, h domain.Hemisphere, opts Options) ([]byte, Stats, error) {
	var buf bytes.Buffer
	stats, err := RenderPNG(&buf, field, h, opts)
	if err != nil {
		return nil, stats, err
	}
	return buf.Bytes(), stats, nil
}
