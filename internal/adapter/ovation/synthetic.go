package ovation

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/golang/geo/s2"

	"github.com/couchcryptid/aurora-field/internal/domain"
)

// Geomagnetic poles used to place the synthetic ovals.
var (
	northPole = s2.LatLngFromDegrees(80.7, -72.7)
	southPole = s2.LatLngFromDegrees(-80.7, 107.3)
)

// SyntheticOptions shapes a generated field.
type SyntheticOptions struct {
	Seed uint64
	// Kp is the planetary activity index, 0 to 9. Higher values widen the
	// ovals, push them equatorward and raise the peak probability.
	Kp         float64
	ObservedAt time.Time
	// LatLon emits entries as [lat, lon, prob] instead of the documented
	// [lon, lat, prob], for exercising axis inference.
	LatLon bool
}

// Synthetic builds a full 360x181 OVATION-style grid with one auroral oval
// per hemisphere. The same options always produce the same field.
func Synthetic(opts SyntheticOptions) domain.FieldSnapshot {
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	kp := math.Max(0, math.Min(9, opts.Kp))

	ovalColat := 17 + 1.6*kp
	width := 2.5 + 0.45*kp
	peak := math.Min(100, 25+8.5*kp)

	observed := opts.ObservedAt.UTC()
	hour := float64(observed.Hour()) + float64(observed.Minute())/60
	midnightLon := 180 - 15*hour

	entries := make([]domain.RawFieldEntry, 0, 360*181)
	for lon := 0; lon < 360; lon++ {
		night := 0.55 + 0.45*math.Cos((float64(lon)-midnightLon)*math.Pi/180)
		for lat := -90; lat <= 90; lat++ {
			pole := northPole
			if lat < 0 {
				pole = southPole
			}
			colat := s2.LatLngFromDegrees(float64(lat), float64(lon)).Distance(pole).Degrees()

			d := (colat - ovalColat) / width
			p := peak * math.Exp(-d*d/2) * night
			p += rng.NormFloat64() * 1.5
			p = math.Round(math.Max(0, math.Min(100, p)))
			if p < 1 {
				p = 0
			}

			if opts.LatLon {
				entries = append(entries, domain.RawFieldEntry{float64(lat), float64(lon), p})
			} else {
				entries = append(entries, domain.RawFieldEntry{float64(lon), float64(lat), p})
			}
		}
	}

	return domain.FieldSnapshot{
		Entries:    entries,
		ObservedAt: observed,
		ForecastAt: observed.Add(30 * time.Minute),
	}
}
