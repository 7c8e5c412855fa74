package audio

import (
	"fmt"
	"log/slog"
)

// Mono down-mixes c to a single channel by averaging each frame. A clip that
// is already mono is returned unchanged.
func Mono(c *Clip) *Clip {
	if c == nil || c.Channels <= 1 {
		return c
	}
	frames := c.Frames()
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		base := i * c.Channels
		for ch := range c.Channels {
			sum += c.Samples[base+ch]
		}
		out[i] = clamp(sum / float32(c.Channels))
	}
	return &Clip{Samples: out, SampleRate: c.SampleRate, Channels: 1}
}

// Resample converts c to dstRate using linear interpolation per channel. If
// the rates already match, c is returned unchanged.
func Resample(c *Clip, dstRate int) *Clip {
	if c == nil || c.SampleRate <= 0 || dstRate <= 0 || c.SampleRate == dstRate {
		return c
	}
	srcFrames := c.Frames()
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(c.SampleRate))
	out := make([]float32, dstFrames*c.Channels)
	ratio := float64(c.SampleRate) / float64(dstRate)

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))
		next := srcIdx + 1
		if next >= srcFrames {
			next = srcFrames - 1
		}
		for ch := range c.Channels {
			s0 := c.Samples[srcIdx*c.Channels+ch]
			s1 := c.Samples[next*c.Channels+ch]
			out[i*c.Channels+ch] = s0 + (s1-s0)*frac
		}
	}
	return &Clip{Samples: out, SampleRate: dstRate, Channels: c.Channels}
}

// ForSpeech returns c as 16 kHz mono, the input format of Whisper models.
// Conversion order: down-mix first, then resample, so only one channel is
// interpolated.
func ForSpeech(c *Clip) *Clip {
	if c == nil {
		return nil
	}
	if c.SampleRate != SpeechSampleRate || c.Channels != 1 {
		slog.Debug("audio: converting for speech",
			"from", formatString(c.SampleRate, c.Channels),
			"to", formatString(SpeechSampleRate, 1),
		)
	}
	return Resample(Mono(c), SpeechSampleRate)
}

// CompressForSpeech decodes a WAV file, converts it with [ForSpeech] and
// re-encodes it as 16-bit PCM. Upload-limited transcription APIs accept the
// result where the original 44.1 kHz stereo file would be too large.
func CompressForSpeech(data []byte) ([]byte, error) {
	clip, err := DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("audio: compress: %w", err)
	}
	return EncodeWAV(ForSpeech(clip), 16)
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
