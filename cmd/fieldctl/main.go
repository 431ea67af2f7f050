// Command fieldctl downsamples an OVATION document offline and renders,
// exports or summarizes the result.
//
// Usage:
//
//	fieldctl render --in ovation.json --hemisphere north --out north.png
//	fieldctl render --url https://services.swpc.noaa.gov/json/ovation_aurora_latest.json --projection mollweide
//	fieldctl geojson --in ovation.json --hemisphere all --out field.geojson
//	fieldctl stats --in ovation.json --target 2000
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/couchcryptid/aurora-field/internal/adapter/ovation"
	"github.com/couchcryptid/aurora-field/internal/config"
	"github.com/couchcryptid/aurora-field/internal/domain"
	"github.com/couchcryptid/aurora-field/internal/export"
	"github.com/couchcryptid/aurora-field/internal/observability"
	"github.com/couchcryptid/aurora-field/internal/render"
)

type globals struct {
	logger *slog.Logger
}

type cli struct {
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"warn" env:"LOG_LEVEL"`

	Render  renderCmd  `cmd:"" help:"Render one hemisphere to a PNG."`
	GeoJSON geojsonCmd `cmd:"" name:"geojson" help:"Export the downsampled field as GeoJSON."`
	Stats   statsCmd   `cmd:"" help:"Summarize ingestion and downsampling of a field."`
}

// fieldInput selects and downsamples the raw field.
type fieldInput struct {
	In             string        `short:"i" help:"OVATION JSON file; - reads stdin." xor:"source"`
	URL            string        `help:"Fetch the field from this URL instead of a file." xor:"source"`
	Timeout        time.Duration `help:"Fetch timeout for --url." default:"15s"`
	Target         int           `short:"n" help:"Target sample count." default:"5000"`
	MinProbability float64       `name:"min-prob" help:"Minimum probability kept when thinning." default:"3"`
}

func (in *fieldInput) load(ctx context.Context, logger *slog.Logger) (domain.FieldSnapshot, error) {
	switch {
	case in.URL != "":
		metrics := observability.NewMetricsWithRegistry(prometheus.NewRegistry())
		return ovation.NewClient(in.URL, in.Timeout, logger, metrics).FetchField(ctx)
	case in.In == "" || in.In == "-":
		return ovation.Decode(os.Stdin)
	default:
		f, err := os.Open(in.In)
		if err != nil {
			return domain.FieldSnapshot{}, fmt.Errorf("open field: %w", err)
		}
		defer f.Close()
		return ovation.Decode(f)
	}
}

func (in *fieldInput) build(ctx context.Context, logger *slog.Logger) (*domain.DownsampledField, domain.IngestStats, error) {
	if in.Target < 1 || in.Target > config.MaxTargetCount {
		return nil, domain.IngestStats{}, fmt.Errorf("--target must be between 1 and %d", config.MaxTargetCount)
	}
	snap, err := in.load(ctx, logger)
	if err != nil {
		return nil, domain.IngestStats{}, err
	}

	start := time.Now()
	field, stats, err := domain.BuildField(ctx, snap.Entries, in.Target, in.MinProbability)
	if err != nil {
		return nil, stats, err
	}
	field.TargetCount = in.Target
	field.MinProbability = in.MinProbability
	field.ObservedAt = snap.ObservedAt
	field.ForecastAt = snap.ForecastAt
	field.ComputedAt = time.Now().UTC()

	logger.Info("field downsampled",
		"entries", stats.Total,
		"kept", stats.Kept,
		"northern", len(field.Northern),
		"southern", len(field.Southern),
		"axes", stats.Axes.Order.String(),
		"duration", time.Since(start),
	)
	return &field, stats, nil
}

type renderCmd struct {
	fieldInput `embed:""`

	Hemisphere string    `short:"H" help:"Hemisphere to draw." enum:"north,south" default:"north"`
	Out        string    `short:"o" help:"Output PNG; - writes stdout." default:"aurora.png"`
	Projection string    `help:"Map projection." enum:"mercator,mollweide" default:"mercator"`
	Width      int       `help:"Image width in pixels." default:"1024"`
	Height     int       `help:"Image height in pixels." default:"768"`
	Zoom       float64   `help:"Zoom level; negative uses the hemisphere default." default:"-1"`
	Center     []float64 `help:"Map center as lat,lon; defaults to the hemisphere camera." sep:","`
	Boost      bool      `help:"Brighten faint samples."`
	Basemap    string    `help:"GeoJSON land polygons drawn under the field." type:"existingfile"`
}

func (c *renderCmd) Run(g *globals) error {
	h, _ := domain.ParseHemisphere(c.Hemisphere)

	spec := render.DefaultViewSpec(h, c.Width, c.Height)
	spec.Projection = c.Projection
	if c.Projection == render.ProjectionMollweide {
		spec.Zoom = 0
	}
	if c.Zoom >= 0 {
		spec.Zoom = c.Zoom
	}
	if len(c.Center) > 0 {
		if len(c.Center) != 2 {
			return fmt.Errorf("--center wants lat,lon")
		}
		spec.CenterLat, spec.CenterLon = c.Center[0], c.Center[1]
	}
	view, err := spec.View()
	if err != nil {
		return err
	}

	opts := render.Options{Width: spec.Width, Height: spec.Height, View: view, Boost: c.Boost}
	if c.Basemap != "" {
		f, err := os.Open(c.Basemap)
		if err != nil {
			return fmt.Errorf("open basemap: %w", err)
		}
		basemap, err := render.LoadBasemap(f)
		f.Close()
		if err != nil {
			return err
		}
		opts.Basemap = basemap
	}

	ctx := context.Background()
	field, _, err := c.build(ctx, g.logger)
	if err != nil {
		return err
	}

	var stats render.Stats
	err = writeOutput(c.Out, func(w io.Writer) error {
		var err error
		stats, err = render.RenderPNG(w, field, h, opts)
		return err
	})
	if err != nil {
		return err
	}
	g.logger.Info("rendered",
		"out", c.Out,
		"view", spec.Key(),
		"drawn", stats.Drawn,
		"sub_pixel", stats.SubPixel,
		"off_screen", stats.OffScreen,
	)
	return nil
}

type geojsonCmd struct {
	fieldInput `embed:""`

	Hemisphere string `short:"H" help:"Hemisphere to export." enum:"north,south,all" default:"all"`
	Out        string `short:"o" help:"Output file; - writes stdout." default:"-"`
}

func (c *geojsonCmd) Run(g *globals) error {
	field, _, err := c.build(context.Background(), g.logger)
	if err != nil {
		return err
	}

	all := c.Hemisphere == "all"
	h, _ := domain.ParseHemisphere(c.Hemisphere)
	data, err := export.MarshalGeoJSON(field, h, all)
	if err != nil {
		return err
	}
	return writeOutput(c.Out, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

type statsCmd struct {
	fieldInput `embed:""`
}

func (c *statsCmd) Run(g *globals) error {
	field, stats, err := c.build(context.Background(), g.logger)
	if err != nil {
		return err
	}

	inferred := "default"
	if stats.Axes.Inferred {
		inferred = "inferred"
	}
	fmt.Printf("entries:          %d\n", stats.Total)
	fmt.Printf("kept:             %d\n", stats.Kept)
	fmt.Printf("malformed:        %d\n", stats.Malformed)
	fmt.Printf("zero probability: %d\n", stats.ZeroProbability)
	fmt.Printf("axis order:       %s (%s)\n", stats.Axes.Order, inferred)
	fmt.Printf("observed at:      %s\n", formatTime(field.ObservedAt))
	fmt.Printf("forecast at:      %s\n", formatTime(field.ForecastAt))
	fmt.Printf("target count:     %d\n", field.TargetCount)
	for _, h := range []domain.Hemisphere{domain.North, domain.South} {
		samples := field.Samples(h)
		var peak float64
		for _, s := range samples {
			peak = max(peak, s.Probability)
		}
		fmt.Printf("%-8s          %d samples, peak %.0f%%\n", h.String()+":", len(samples), peak)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func writeOutput(path string, write func(io.Writer) error) error {
	if path == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("fieldctl"),
		kong.Description("Offline tools for the aurora probability field."),
		kong.UsageOnError(),
	)
	logger := observability.NewLoggerTo(os.Stderr, c.LogLevel, "text")
	err := kctx.Run(&globals{logger: logger})
	kctx.FatalIfErrorf(err)
}
