package kafka

import (
	"encoding/json"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/aurora-field/internal/domain"
)

func TestSnapshotFromMessage(t *testing.T) {
	msg := kafkago.Message{
		Topic:     "raw-aurora-field",
		Partition: 0,
		Offset:    7,
		Value:     []byte(`{"Observation Time":"2026-03-20T04:21:00Z","coordinates":[[355,65,22]]}`),
		Time:      time.Date(2026, 3, 20, 4, 25, 0, 0, time.UTC),
	}

	snap, err := snapshotFromMessage(msg)
	require.NoError(t, err)

	assert.Equal(t, []domain.RawFieldEntry{{355, 65, 22}}, snap.Entries)
	assert.Equal(t, time.Date(2026, 3, 20, 4, 21, 0, 0, time.UTC), snap.ObservedAt)
	assert.True(t, snap.ForecastAt.IsZero())
}

func TestSnapshotFromMessage_FallsBackToMessageTime(t *testing.T) {
	msgTime := time.Date(2026, 3, 20, 4, 25, 0, 0, time.UTC)
	snap, err := snapshotFromMessage(kafkago.Message{
		Value: []byte(`{"coordinates":[]}`),
		Time:  msgTime,
	})
	require.NoError(t, err)
	assert.Equal(t, msgTime, snap.ObservedAt)
	assert.Empty(t, snap.Entries)
}

func TestSnapshotFromMessage_InvalidJSON(t *testing.T) {
	_, err := snapshotFromMessage(kafkago.Message{Value: []byte("not-json{{{")})
	require.Error(t, err)
}

func TestSerializeHemisphere(t *testing.T) {
	computed := time.Date(2026, 3, 20, 4, 30, 0, 0, time.UTC)
	field := &domain.DownsampledField{
		Northern:       []domain.Sample{{Lon: -100, Lat: 62, Probability: 40}},
		Version:        12,
		TargetCount:    5000,
		MinProbability: 3,
		ComputedAt:     computed,
	}

	msg, err := serializeHemisphere(field, domain.North)
	require.NoError(t, err)

	assert.Equal(t, []byte("north"), msg.Key)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, HeaderVersion, msg.Headers[0].Key)
	assert.Equal(t, []byte("12"), msg.Headers[0].Value)
	assert.Equal(t, HeaderHemisphere, msg.Headers[1].Key)
	assert.Equal(t, []byte("north"), msg.Headers[1].Value)
	assert.Equal(t, HeaderComputedAt, msg.Headers[2].Key)
	assert.Equal(t, []byte(computed.Format(time.RFC3339)), msg.Headers[2].Value)

	var value HemisphereMessage
	require.NoError(t, json.Unmarshal(msg.Value, &value))
	assert.Equal(t, uint64(12), value.Version)
	assert.Equal(t, "north", value.Hemisphere)
	assert.Equal(t, 5000, value.TargetCount)
	assert.Equal(t, field.Northern, value.Samples)
}

func TestSerializeHemisphere_EmptyIsArray(t *testing.T) {
	msg, err := serializeHemisphere(&domain.DownsampledField{Version: 1}, domain.South)
	require.NoError(t, err)
	assert.Contains(t, string(msg.Value), `"samples":[]`)
	assert.Equal(t, []byte("south"), msg.Key)
}

func TestSerializeHemisphere_ObservedHeader(t *testing.T) {
	observed := time.Date(2026, 3, 20, 4, 21, 0, 0, time.UTC)
	field := &domain.DownsampledField{Version: 3, ObservedAt: observed}

	msg, err := serializeHemisphere(field, domain.South)
	require.NoError(t, err)

	require.Len(t, msg.Headers, 4)
	assert.Equal(t, HeaderObservedAt, msg.Headers[3].Key)
	assert.Equal(t, []byte("2026-03-20T04:21:00Z"), msg.Headers[3].Value)
}
