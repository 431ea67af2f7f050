package domain

import (
	"cmp"
	"context"
	"math"
	"slices"
)

// Grid cell dimensions, in degrees.
const (
	CellLatDegrees = 2.5
	CellLonDegrees = 6.0
)

// cellKey identifies one grid cell by row (latitude) and column (longitude).
type cellKey struct {
	row, col int
}

func cellFor(s Sample) cellKey {
	return cellKey{
		row: int(math.Floor(s.Lat / CellLatDegrees)),
		col: int(math.Floor(s.Lon / CellLonDegrees)),
	}
}

// Downsample bounds each hemisphere of samples to targetCount entries.
// It is the synchronous form of [DownsampleContext] and never fails.
func Downsample(samples []Sample, targetCount int, minProbability float64) DownsampledField {
	field, _ := DownsampleContext(context.Background(), samples, targetCount, minProbability)
	return field
}

// DownsampleContext partitions samples by hemisphere and reduces each half
// independently. The context is polled between phases; a cancelled context
// returns ctx.Err() and an empty field.
func DownsampleContext(ctx context.Context, samples []Sample, targetCount int, minProbability float64) (DownsampledField, error) {
	var north, south []Sample
	for _, s := range samples {
		h, ok := s.Hemisphere()
		if !ok {
			continue
		}
		if h == North {
			north = append(north, s)
		} else {
			south = append(south, s)
		}
	}

	northern, err := downsampleHemisphere(ctx, north, targetCount, minProbability)
	if err != nil {
		return DownsampledField{}, err
	}
	southern, err := downsampleHemisphere(ctx, south, targetCount, minProbability)
	if err != nil {
		return DownsampledField{}, err
	}

	return DownsampledField{
		Northern:       northern,
		Southern:       southern,
		TargetCount:    targetCount,
		MinProbability: minProbability,
	}, nil
}

// BuildField runs ingestion and downsampling as one unit of work.
func BuildField(ctx context.Context, entries []RawFieldEntry, targetCount int, minProbability float64) (DownsampledField, IngestStats, error) {
	samples, stats := IngestWithStats(entries)
	if err := ctx.Err(); err != nil {
		return DownsampledField{}, stats, err
	}
	field, err := DownsampleContext(ctx, samples, targetCount, minProbability)
	return field, stats, err
}

func downsampleHemisphere(ctx context.Context, samples []Sample, targetCount int, minProbability float64) ([]Sample, error) {
	if targetCount <= 0 {
		return []Sample{}, nil
	}

	visible := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if s.Probability >= minProbability {
			visible = append(visible, s)
		}
	}
	if len(visible) <= targetCount {
		return visible, nil
	}

	// Cells are kept in first-appearance order so the concatenation below is
	// deterministic for a given input sequence.
	var order []cellKey
	cells := make(map[cellKey][]Sample)
	for _, s := range visible {
		k := cellFor(s)
		if _, ok := cells[k]; !ok {
			order = append(order, k)
		}
		cells[k] = append(cells[k], s)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	perCell := max(1, targetCount/len(order))
	kept := make([]Sample, 0, min(len(visible), perCell*len(order)))
	for _, k := range order {
		cell := cells[k]
		sortByProbabilityDesc(cell)
		if len(cell) > perCell {
			cell = cell[:perCell]
		}
		kept = append(kept, cell...)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(kept) > targetCount {
		sortByProbabilityDesc(kept)
		kept = kept[:targetCount]
	}
	return kept, nil
}

func sortByProbabilityDesc(samples []Sample) {
	slices.SortStableFunc(samples, func(a, b Sample) int {
		return cmp.Compare(b.Probability, a.Probability)
	})
}
