package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/aurora-field/internal/config"
	"github.com/couchcryptid/aurora-field/internal/domain"
	"github.com/couchcryptid/aurora-field/internal/export"
	"github.com/couchcryptid/aurora-field/internal/render"
)

// HeaderFieldVersion carries the version of the field a response was built from.
const HeaderFieldVersion = "X-Field-Version"

const (
	defaultRenderWidth  = 1024
	defaultRenderHeight = 768
	maxBudgetBody       = 1 << 10
)

var errNoField = errors.New("no field published yet")

// HemisphereResponse is the body of GET /api/field/{hemisphere}.
type HemisphereResponse struct {
	Version        uint64          `json:"version"`
	Hemisphere     string          `json:"hemisphere"`
	TargetCount    int             `json:"target_count"`
	MinProbability float64         `json:"min_probability"`
	ComputedAt     time.Time       `json:"computed_at"`
	ObservedAt     time.Time       `json:"observed_at,omitempty"`
	ForecastAt     time.Time       `json:"forecast_at,omitempty"`
	Count          int             `json:"count"`
	Samples        []domain.Sample `json:"samples"`
}

// LegendResponse is the body of GET /api/legend.
type LegendResponse struct {
	Stops        []domain.LegendEntry `json:"stops"`
	MinRadiusM   float64              `json:"min_radius_m"`
	MaxRadiusM   float64              `json:"max_radius_m"`
	MinScreenPx  float64              `json:"min_screen_px"`
	Background   string               `json:"background"`
	CellLatDeg   float64              `json:"cell_lat_deg"`
	CellLonDeg   float64              `json:"cell_lon_deg"`
	TargetCount  int                  `json:"target_count"`
	MaxBudget    int                  `json:"max_target_count"`
	FieldVersion uint64               `json:"field_version,omitempty"`
}

// BudgetRequest is the body of PUT /api/budget.
type BudgetRequest struct {
	TargetCount int `json:"target_count"`
}

// BudgetResponse reports the stored budget and whether a recomputation was
// scheduled for it.
type BudgetResponse struct {
	TargetCount int  `json:"target_count"`
	Scheduled   bool `json:"scheduled"`
}

// latestField writes a 503 and returns nil before the first publication.
func (s *Server) latestField(w http.ResponseWriter) *domain.DownsampledField {
	f := s.fields.Latest()
	if f == nil {
		writeError(w, http.StatusServiceUnavailable, errNoField.Error())
		return nil
	}
	w.Header().Set(HeaderFieldVersion, strconv.FormatUint(f.Version, 10))
	return f
}

func parseHemisphere(w http.ResponseWriter, r *http.Request) (domain.Hemisphere, bool) {
	h, ok := domain.ParseHemisphere(r.PathValue("hemisphere"))
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown hemisphere %q", r.PathValue("hemisphere")))
	}
	return h, ok
}

func (s *Server) handleField(w http.ResponseWriter, _ *http.Request) {
	f := s.latestField(w)
	if f == nil {
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleHemisphere(w http.ResponseWriter, r *http.Request) {
	h, ok := parseHemisphere(w, r)
	if !ok {
		return
	}
	f := s.latestField(w)
	if f == nil {
		return
	}

	writeJSON(w, http.StatusOK, hemisphereResponse(f, h))
}

func hemisphereResponse(f *domain.DownsampledField, h domain.Hemisphere) HemisphereResponse {
	samples := f.Samples(h)
	if samples == nil {
		samples = []domain.Sample{}
	}
	return HemisphereResponse{
		Version:        f.Version,
		Hemisphere:     h.String(),
		TargetCount:    f.TargetCount,
		MinProbability: f.MinProbability,
		ComputedAt:     f.ComputedAt,
		ObservedAt:     f.ObservedAt,
		ForecastAt:     f.ForecastAt,
		Count:          len(samples),
		Samples:        samples,
	}
}

func (s *Server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	h, ok := parseHemisphere(w, r)
	if !ok {
		return
	}
	f := s.latestField(w)
	if f == nil {
		return
	}

	data, err := export.MarshalGeoJSON(f, h, false)
	if err != nil {
		s.logger.Error("geojson export failed", "error", err, "version", f.Version)
		writeError(w, http.StatusInternalServerError, "geojson export failed")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	h, ok := parseHemisphere(w, r)
	if !ok {
		return
	}
	spec, boost, err := parseRenderQuery(r, h)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	view, err := spec.View()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f := s.latestField(w)
	if f == nil {
		return
	}

	key := fmt.Sprintf("v%d:%s:%s:boost=%t", f.Version, h, spec.Key(), boost)
	cacheStatus := "hit"
	img, hit := s.cache.get(key)
	if !hit {
		cacheStatus = "miss"
		start := time.Now()
		data, stats, err := render.RenderPNGBytes(f, h, render.Options{
			Width:   spec.Width,
			Height:  spec.Height,
			View:    view,
			Boost:   boost,
			Basemap: s.basemap,
		})
		if err != nil {
			s.logger.Error("render failed", "error", err, "version", f.Version, "hemisphere", h.String())
			writeError(w, http.StatusInternalServerError, "render failed")
			return
		}
		s.metrics.RenderDuration.Observe(time.Since(start).Seconds())
		img = renderedImage{png: data, stats: stats}
		s.cache.put(key, img)
	}
	s.metrics.RenderRequests.WithLabelValues(cacheStatus).Inc()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Render-Drawn", strconv.Itoa(img.stats.Drawn))
	w.Header().Set("X-Render-Skipped", strconv.Itoa(img.stats.SubPixel+img.stats.OffScreen))
	w.Header().Set("X-Cache", cacheStatus)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.png)
}

// parseRenderQuery overlays query parameters on the hemisphere's default view.
func parseRenderQuery(r *http.Request, h domain.Hemisphere) (render.ViewSpec, bool, error) {
	q := r.URL.Query()
	width, height := defaultRenderWidth, defaultRenderHeight
	ints := []struct {
		name string
		dst  *int
	}{
		{"width", &width},
		{"height", &height},
	}
	for _, p := range ints {
		if v := q.Get(p.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return render.ViewSpec{}, false, fmt.Errorf("invalid %s %q", p.name, v)
			}
			*p.dst = n
		}
	}
	spec := render.DefaultViewSpec(h, width, height)

	floats := []struct {
		name string
		dst  *float64
	}{
		{"zoom", &spec.Zoom},
		{"lat", &spec.CenterLat},
		{"lon", &spec.CenterLon},
	}
	for _, p := range floats {
		if v := q.Get(p.name); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return spec, false, fmt.Errorf("invalid %s %q", p.name, v)
			}
			*p.dst = f
		}
	}

	if v := q.Get("projection"); v != "" {
		spec.Projection = v
		if v == render.ProjectionMollweide && q.Get("zoom") == "" {
			spec.Zoom = 0
		}
	}

	boost := false
	if v := q.Get("boost"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return spec, false, fmt.Errorf("invalid boost %q", v)
		}
		boost = b
	}
	return spec, boost, nil
}

func (s *Server) handleLegend(w http.ResponseWriter, _ *http.Request) {
	resp := LegendResponse{
		Stops:       domain.Legend(),
		MinRadiusM:  domain.PhysicalRadius(0),
		MaxRadiusM:  domain.PhysicalRadius(100),
		MinScreenPx: render.DefaultMinScreenRadius,
		Background:  fmt.Sprintf("#%02x%02x%02x", render.Background.R, render.Background.G, render.Background.B),
		CellLatDeg:  domain.CellLatDegrees,
		CellLonDeg:  domain.CellLonDegrees,
		TargetCount: s.fields.Budget(),
		MaxBudget:   config.MaxTargetCount,
	}
	if f := s.fields.Latest(); f != nil {
		resp.FieldVersion = f.Version
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetBudget(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, BudgetResponse{TargetCount: s.fields.Budget()})
}

func (s *Server) handlePutBudget(w http.ResponseWriter, r *http.Request) {
	var req BudgetRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBudgetBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid budget request: "+err.Error())
		return
	}
	if req.TargetCount < 1 || req.TargetCount > config.MaxTargetCount {
		writeError(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("target_count must be between 1 and %d", config.MaxTargetCount))
		return
	}

	scheduled := s.fields.UpdateBudget(req.TargetCount)
	s.logger.Info("budget updated", "target_count", req.TargetCount, "scheduled", scheduled)
	writeJSON(w, http.StatusAccepted, BudgetResponse{TargetCount: req.TargetCount, Scheduled: scheduled})
}
