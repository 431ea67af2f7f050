package ovation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/couchcryptid/aurora-field/internal/domain"
)

// DataFormat is the axis description SWPC publishes alongside the grid.
const DataFormat = "[Longitude, Latitude, Aurora]"

// timeLayouts are the stamp formats seen in OVATION documents.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// Document is the OVATION aurora JSON document.
type Document struct {
	ObservationTime string            `json:"Observation Time"`
	ForecastTime    string            `json:"Forecast Time"`
	DataFormat      string            `json:"Data Format,omitempty"`
	Coordinates     []json.RawMessage `json:"coordinates"`
	Type            string            `json:"type,omitempty"`
}

// Decode reads one OVATION document. Grid entries that are not numeric
// arrays are kept as empty entries so ingestion counts them as malformed;
// only a document that is not valid JSON is an error.
func Decode(r io.Reader) (domain.FieldSnapshot, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return domain.FieldSnapshot{}, fmt.Errorf("decode ovation document: %w", err)
	}
	return doc.Snapshot(), nil
}

// DecodeBytes is Decode over an in-memory document.
func DecodeBytes(data []byte) (domain.FieldSnapshot, error) {
	return Decode(bytes.NewReader(data))
}

// Snapshot converts the document into raw field entries.
func (d Document) Snapshot() domain.FieldSnapshot {
	entries := make([]domain.RawFieldEntry, len(d.Coordinates))
	for i, raw := range d.Coordinates {
		var values []float64
		if err := json.Unmarshal(raw, &values); err != nil {
			entries[i] = domain.RawFieldEntry{}
			continue
		}
		entries[i] = values
	}
	return domain.FieldSnapshot{
		Entries:    entries,
		ObservedAt: parseTime(d.ObservationTime),
		ForecastAt: parseTime(d.ForecastTime),
	}
}

// NewDocument builds a document from a snapshot, the inverse of Snapshot.
func NewDocument(s domain.FieldSnapshot) Document {
	coords := make([]json.RawMessage, 0, len(s.Entries))
	for _, e := range s.Entries {
		b, err := json.Marshal([]float64(e))
		if err != nil {
			continue
		}
		coords = append(coords, b)
	}
	return Document{
		ObservationTime: formatTime(s.ObservedAt),
		ForecastTime:    formatTime(s.ForecastAt),
		DataFormat:      DataFormat,
		Coordinates:     coords,
		Type:            "MultiPoint",
	}
}

// Encode writes a snapshot as an OVATION document.
func Encode(w io.Writer, s domain.FieldSnapshot) error {
	if err := json.NewEncoder(w).Encode(NewDocument(s)); err != nil {
		return fmt.Errorf("encode ovation document: %w", err)
	}
	return nil
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
