package coqui

import (
	"errors"
	"fmt"
	"time"
)

// ClonedVoice is a voice cloned for the account. Snapshots returned by the
// API are never mutated locally.
type ClonedVoice struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SamplesCount int       `json:"samples_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Sample is a synthesized speech sample. AudioURL is a signed, time-limited
// link controlled by the service; it is empty while synthesis is still
// pending.
type Sample struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	AudioURL  string    `json:"audio_url"`
}

// QualityLevel buckets the raw quality estimate of an audio sample.
type QualityLevel string

const (
	QualityHigh    QualityLevel = "high"
	QualityAverage QualityLevel = "average"
	QualityPoor    QualityLevel = "poor"
)

// QualityEstimate is the result of estimating how well an audio file would
// work as a cloning reference.
type QualityEstimate struct {
	Level QualityLevel
	Raw   float64
}

func levelForQuality(raw float64) QualityLevel {
	switch {
	case raw >= 2.5:
		return QualityHigh
	case raw >= 1.5:
		return QualityAverage
	default:
		return QualityPoor
	}
}

// Timestamps arrive as UTC RFC 3339 strings with a trailing Z.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

// voicePayload is the wire shape of a voice before timestamp conversion.
type voicePayload struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	SamplesCount int    `json:"samples_count"`
	CreatedAt    string `json:"created_at"`
}

func (p voicePayload) toVoice(op string) (ClonedVoice, error) {
	if p.ID == "" {
		return ClonedVoice{}, &ResponseParseError{Op: op, Err: errors.New("voice payload missing id")}
	}
	created, err := parseTimestamp(p.CreatedAt)
	if err != nil {
		return ClonedVoice{}, &ResponseParseError{Op: op, Err: err}
	}
	return ClonedVoice{
		ID:           p.ID,
		Name:         p.Name,
		SamplesCount: p.SamplesCount,
		CreatedAt:    created,
	}, nil
}

// samplePayload is the wire shape of a sample. audio_url is null until the
// synthesized audio has been uploaded.
type samplePayload struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Text      string  `json:"text"`
	CreatedAt string  `json:"created_at"`
	AudioURL  *string `json:"audio_url"`
}

func (p samplePayload) toSample(op string) (Sample, error) {
	if p.ID == "" {
		return Sample{}, &ResponseParseError{Op: op, Err: errors.New("sample payload missing id")}
	}
	created, err := parseTimestamp(p.CreatedAt)
	if err != nil {
		return Sample{}, &ResponseParseError{Op: op, Err: err}
	}
	s := Sample{
		ID:        p.ID,
		Name:      p.Name,
		Text:      p.Text,
		CreatedAt: created,
	}
	if p.AudioURL != nil {
		s.AudioURL = *p.AudioURL
	}
	return s, nil
}
