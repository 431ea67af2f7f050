// Package domain models the aurora probability field published by the NOAA
// Space Weather Prediction Center (SWPC) and the pure transforms applied to it.
//
// # Data Source
//
// The OVATION Prime model publishes a short-term aurora forecast at
// https://services.swpc.noaa.gov/json/ovation_aurora_latest.json. The payload
// carries an "Observation Time", a "Forecast Time" and a "coordinates" array
// of numeric triples, roughly 65,000 of them on a 1° grid.
//
// # Field Conventions
//
// Axis order:
//
//	The documented order is [longitude, latitude, aurora], but mirrors and
//	older archives have shipped [latitude, longitude, aurora]. The order is
//	never declared in the payload, so [ResolveAxes] infers it from the
//	observed value ranges: an index whose values all lie in [-90, 90] is a
//	latitude candidate. When both or neither index qualify, the documented
//	order wins. This is a guess, not a verified convention.
//
// Longitude:
//
//	OVATION emits longitudes in [0, 360). Values above 180 are shifted by
//	-360 into [-180, 180]; values already in range pass through unchanged.
//	See [NormalizeLongitude].
//
// Probability:
//
//	Aurora probability in percent, 0 to 100. Zero or negative values carry no
//	visual information and are dropped during ingestion. Values above 100
//	are clamped.
//
// Hemispheres:
//
//	Latitude > 0 is northern, latitude < 0 is southern. Grid rows on the
//	equator belong to neither hemisphere and are never rendered.
//
// # Downsampling
//
// A raw field is far denser than an interactive map can draw. [Downsample]
// bounds each hemisphere to a target count by binning samples into
// 2.5° × 6.0° cells (elongated in longitude because meridians converge near
// the poles, where the field is densest), keeping the strongest samples of
// each cell and finally trimming globally by probability. Sorting is stable
// throughout so identical input always produces identical output.
//
// # Rendering Contract
//
// Every retained sample becomes a circle whose physical radius grows from
// 60 km at probability 0 to 110 km at probability 100 ([PhysicalRadius]).
// Fill color comes from an 11-stop gradient ([ColorFor]); opacity is kept low
// so overlapping circles accumulate into a smooth field.
package domain
