package domain

import "math"

// AxisOrder describes which raw field index holds latitude.
type AxisOrder int

const (
	// LonLat is the documented feed order: [lon, lat, prob].
	LonLat AxisOrder = iota
	// LatLon is the swapped order: [lat, lon, prob].
	LatLon
)

func (o AxisOrder) String() string {
	if o == LatLon {
		return "lat,lon"
	}
	return "lon,lat"
}

// AxisResolution records how the axis order was decided.
type AxisResolution struct {
	Order AxisOrder
	// Inferred is false when both or neither index qualified as latitude and
	// the documented default was used instead.
	Inferred bool
}

// IngestStats counts what happened to each raw entry.
type IngestStats struct {
	Total           int
	Kept            int
	Malformed       int
	ZeroProbability int
	Axes            AxisResolution
}

// valueRange tracks the observed minimum and maximum of one field index.
type valueRange struct {
	min, max float64
	seen     bool
}

func (r *valueRange) observe(v float64) {
	if !r.seen {
		r.min, r.max, r.seen = v, v, true
		return
	}
	r.min = math.Min(r.min, v)
	r.max = math.Max(r.max, v)
}

// latitudeCandidate reports whether every observed value fits in [-90, 90].
func (r valueRange) latitudeCandidate() bool {
	return r.seen && r.min >= -90 && r.max <= 90
}

// Ingest resolves the axis order of a raw field and converts it to typed
// samples. Malformed entries and entries with probability <= 0 are dropped.
// An empty input yields an empty result.
func Ingest(entries []RawFieldEntry) []Sample {
	samples, _ := IngestWithStats(entries)
	return samples
}

// IngestWithStats is [Ingest] plus a breakdown of dropped entries.
func IngestWithStats(entries []RawFieldEntry) ([]Sample, IngestStats) {
	stats := IngestStats{Total: len(entries)}
	axes := ResolveAxes(entries)
	stats.Axes = axes

	samples := make([]Sample, 0, len(entries))
	for _, e := range entries {
		if !wellFormed(e) {
			stats.Malformed++
			continue
		}

		lon, lat := e[0], e[1]
		if axes.Order == LatLon {
			lon, lat = e[1], e[0]
		}
		if lat < -90 || lat > 90 {
			stats.Malformed++
			continue
		}

		prob := e[2]
		if prob <= 0 {
			stats.ZeroProbability++
			continue
		}
		if prob > 100 {
			prob = 100
		}

		samples = append(samples, Sample{
			Lon:         NormalizeLongitude(lon),
			Lat:         lat,
			Probability: prob,
		})
	}

	stats.Kept = len(samples)
	return samples, stats
}

// ResolveAxes infers which of the first two indices holds latitude. Only
// well-formed entries contribute to the observed ranges.
func ResolveAxes(entries []RawFieldEntry) AxisResolution {
	var first, second valueRange
	for _, e := range entries {
		if !wellFormed(e) {
			continue
		}
		first.observe(e[0])
		second.observe(e[1])
	}

	firstLat, secondLat := first.latitudeCandidate(), second.latitudeCandidate()
	switch {
	case firstLat && !secondLat:
		return AxisResolution{Order: LatLon, Inferred: true}
	case secondLat && !firstLat:
		return AxisResolution{Order: LonLat, Inferred: true}
	default:
		return AxisResolution{Order: LonLat, Inferred: false}
	}
}

// NormalizeLongitude maps a longitude in [0, 360] onto [-180, 180]. Values
// already in [-180, 180] are returned unchanged.
func NormalizeLongitude(v float64) float64 {
	if v > 180 {
		return v - 360
	}
	return v
}

// wellFormed reports whether an entry has at least three finite fields.
func wellFormed(e RawFieldEntry) bool {
	if len(e) < 3 {
		return false
	}
	for _, v := range e[:3] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
