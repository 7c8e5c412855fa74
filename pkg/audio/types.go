// Package audio holds the PCM helpers used around the lyric pipeline: WAV
// decoding and encoding, channel down-mixing, and linear resampling to the
// 16 kHz mono format expected by speech-to-text backends.
package audio

import "time"

// SpeechSampleRate is the sample rate Whisper-family models are trained on.
const SpeechSampleRate = 16000

// Clip is an in-memory block of interleaved PCM audio normalised to [-1, 1].
type Clip struct {
	// Samples is interleaved when Channels > 1.
	Samples []float32

	// SampleRate in Hz (e.g. 44100 for a music file, 16000 for STT input).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int
}

// Frames returns the number of sample frames (samples per channel).
func (c *Clip) Frames() int {
	if c == nil || c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the playback length of c.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(c.Frames()) / float64(c.SampleRate) * float64(time.Second))
}

// Seconds returns the playback length of c in seconds.
func (c *Clip) Seconds() float64 { return c.Duration().Seconds() }
