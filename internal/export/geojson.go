// Package export converts published fields into interchange formats.
package export

import (
	"fmt"

	geojson "github.com/paulmach/go.geojson"

	"github.com/couchcryptid/aurora-field/internal/domain"
)

// Feature property keys.
const (
	PropProbability  = "probability"
	PropHemisphere   = "hemisphere"
	PropColor        = "color"
	PropOpacity      = "opacity"
	PropRadiusMeters = "radius_m"
)

// GeoJSON returns one Point feature per sample of the hemisphere, styled
// with the unboosted gradient. Coordinates are [lon, lat].
func GeoJSON(field *domain.DownsampledField, h domain.Hemisphere) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	appendSamples(fc, field.Samples(h), h)
	return fc
}

// GeoJSONAll returns both hemispheres in one collection, northern first.
func GeoJSONAll(field *domain.DownsampledField) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	appendSamples(fc, field.Samples(domain.North), domain.North)
	appendSamples(fc, field.Samples(domain.South), domain.South)
	return fc
}

func appendSamples(fc *geojson.FeatureCollection, samples []domain.Sample, h domain.Hemisphere) {
	for _, s := range samples {
		c := domain.ColorFor(s.Probability, false)
		f := geojson.NewPointFeature([]float64{s.Lon, s.Lat})
		f.SetProperty(PropProbability, s.Probability)
		f.SetProperty(PropHemisphere, h.String())
		f.SetProperty(PropColor, c.Hex())
		f.SetProperty(PropOpacity, c.Alpha)
		f.SetProperty(PropRadiusMeters, domain.PhysicalRadius(s.Probability))
		fc.AddFeature(f)
	}
}

// MarshalGeoJSON encodes one hemisphere, or both when all is true.
func MarshalGeoJSON(field *domain.DownsampledField, h domain.Hemisphere, all bool) ([]byte, error) {
	fc := GeoJSON(field, h)
	if all {
		fc = GeoJSONAll(field)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal geojson: %w", err)
	}
	return data, nil
}
