// Package player plays synthesized WAV samples through the default speaker.
package player

import (
	"fmt"
	"io"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// Play decodes WAV audio from r and blocks until playback finishes.
func Play(r io.Reader) error {
	streamer, format, err := wav.Decode(r)
	if err != nil {
		return fmt.Errorf("failed to decode wav: %w", err)
	}
	defer streamer.Close()

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("failed to init speaker: %w", err)
	}

	done := make(chan bool)
	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		done <- true
	})))
	<-done
	return nil
}
