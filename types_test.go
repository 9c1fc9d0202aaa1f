package coqui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	ts, err := parseTimestamp("2022-06-14T20:15:33.016Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, 6, 14, 20, 15, 33, 16_000_000, time.UTC), ts.UTC())

	_, err = parseTimestamp("June 14th")
	assert.Error(t, err)
}

func TestVoicePayloadRequiresID(t *testing.T) {
	_, err := voicePayload{Name: "x", CreatedAt: "2022-06-14T20:15:33.016Z"}.toVoice("ClonedVoices")
	var parseErr *ResponseParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "ClonedVoices", parseErr.Op)
}

func TestVoicePayloadBadTimestamp(t *testing.T) {
	_, err := voicePayload{ID: "v1", CreatedAt: "yesterday"}.toVoice("ClonedVoices")
	var parseErr *ResponseParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestSamplePayloadNullAudioURL(t *testing.T) {
	s, err := samplePayload{ID: "s1", Name: "hi", CreatedAt: "2022-06-14T20:15:33.016Z"}.toSample("Synthesize")
	require.NoError(t, err)
	assert.Empty(t, s.AudioURL)
}

func TestLevelForQuality(t *testing.T) {
	tests := []struct {
		raw   float64
		level QualityLevel
	}{
		{3.0, QualityHigh},
		{2.5, QualityHigh},
		{2.49, QualityAverage},
		{1.5, QualityAverage},
		{1.49, QualityPoor},
		{0.0, QualityPoor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.level, levelForQuality(tt.raw), "raw=%v", tt.raw)
	}
}
