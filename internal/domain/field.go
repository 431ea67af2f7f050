package domain

import (
	"context"
	"errors"
	"time"
)

// DefaultMinProbability is the visibility threshold applied before any budget
// accounting. Samples below it are indistinguishable from the background.
const DefaultMinProbability = 3.0

// Sample is one resolved point of the probability field. It is a plain value:
// two samples describing the same physical point compare equal with ==.
type Sample struct {
	Lon         float64 `json:"lon"`
	Lat         float64 `json:"lat"`
	Probability float64 `json:"probability"`
}

// Hemisphere reports which hemisphere the sample belongs to. Samples on the
// equator report ok=false.
func (s Sample) Hemisphere() (h Hemisphere, ok bool) {
	switch {
	case s.Lat > 0:
		return North, true
	case s.Lat < 0:
		return South, true
	default:
		return 0, false
	}
}

// RawFieldEntry is an untyped tuple from the upstream feed. Its axis order is
// unknown until resolved by [Ingest].
type RawFieldEntry []float64

// Hemisphere partitions the field at the equator.
type Hemisphere int

const (
	North Hemisphere = iota + 1
	South
)

func (h Hemisphere) String() string {
	switch h {
	case North:
		return "north"
	case South:
		return "south"
	default:
		return "unknown"
	}
}

// ParseHemisphere accepts "north"/"south" and the short forms "n"/"s".
func ParseHemisphere(s string) (Hemisphere, bool) {
	switch s {
	case "north", "n", "northern":
		return North, true
	case "south", "s", "southern":
		return South, true
	default:
		return 0, false
	}
}

// DownsampledField is the budget-bounded, hemisphere-partitioned point set
// produced from one raw field and one target count. A published field is
// never mutated; the next computation supersedes it.
type DownsampledField struct {
	Northern []Sample `json:"northern"`
	Southern []Sample `json:"southern"`

	// Metadata stamped by the scheduler on publication.
	Version        uint64    `json:"version"`
	TargetCount    int       `json:"target_count"`
	MinProbability float64   `json:"min_probability"`
	ComputedAt     time.Time `json:"computed_at"`
	ObservedAt     time.Time `json:"observed_at,omitempty"`
	ForecastAt     time.Time `json:"forecast_at,omitempty"`
}

// Samples returns the samples retained for the given hemisphere.
func (f *DownsampledField) Samples(h Hemisphere) []Sample {
	if f == nil {
		return nil
	}
	switch h {
	case North:
		return f.Northern
	case South:
		return f.Southern
	default:
		return nil
	}
}

// Len returns the total number of retained samples.
func (f *DownsampledField) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Northern) + len(f.Southern)
}

// FieldSnapshot is one fetch of the raw field together with the feed's
// own timestamps.
type FieldSnapshot struct {
	Entries    []RawFieldEntry
	ObservedAt time.Time
	ForecastAt time.Time
}

// ErrFieldUnchanged is returned by a FieldSource when the upstream field has
// not changed since the previous successful fetch.
var ErrFieldUnchanged = errors.New("field unchanged since last fetch")

// FieldSource supplies raw field snapshots. Implementations own fetching,
// decoding and retries; the domain never performs I/O.
type FieldSource interface {
	FetchField(ctx context.Context) (FieldSnapshot, error)
}
