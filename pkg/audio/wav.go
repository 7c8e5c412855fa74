package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNotWAV is returned by [DecodeWAV] when the input is not a RIFF/WAVE file.
var ErrNotWAV = errors.New("audio: not a wav file")

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// DecodeWAV decodes a PCM WAV file into a [Clip] with samples normalised to
// [-1, 1]. Any bit depth supported by go-audio is accepted.
func DecodeWAV(data []byte) (*Clip, error) {
	if !IsWAV(data) {
		return nil, ErrNotWAV
	}
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, ErrNotWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("audio: decode wav: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, errors.New("audio: decode wav: empty buffer")
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = clamp(float32(v) / scale)
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	rate := buf.Format.SampleRate
	if rate <= 0 {
		rate = int(dec.SampleRate)
	}
	return &Clip{Samples: samples, SampleRate: rate, Channels: channels}, nil
}

// EncodeWAV encodes c as a PCM WAV file at the given bit depth (8, 16, 24 or
// 32).
func EncodeWAV(c *Clip, bitDepth int) ([]byte, error) {
	if c == nil || c.SampleRate <= 0 || c.Channels <= 0 {
		return nil, errors.New("audio: encode wav: invalid clip")
	}
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("audio: encode wav: unsupported bit depth %d", bitDepth)
	}

	scale := float32(int64(1)<<(bitDepth-1) - 1)
	data := make([]int, len(c.Samples))
	for i, s := range c.Samples {
		data[i] = int(clamp(s) * scale)
	}

	ws := &seekBuffer{}
	enc := wav.NewEncoder(ws, c.SampleRate, bitDepth, c.Channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: c.Channels, SampleRate: c.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	return ws.Bytes(), nil
}

// Info summarises an uploaded audio file.
type Info struct {
	// Format is "wav" or "unknown".
	Format     string
	SampleRate int
	Channels   int

	// Seconds is the playback length, or 0 when it cannot be determined
	// without a full decoder for the container.
	Seconds float64
}

// Probe inspects data and returns what can be learned without decoding the
// full payload. Non-WAV containers are reported as "unknown" with no error.
func Probe(data []byte) (Info, error) {
	if !IsWAV(data) {
		return Info{Format: "unknown"}, nil
	}
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Info{}, ErrNotWAV
	}
	d, err := dec.Duration()
	if err != nil {
		return Info{}, fmt.Errorf("audio: probe: %w", err)
	}
	return Info{
		Format:     "wav",
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		Seconds:    d.Seconds(),
	}, nil
}

// seekBuffer is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch chunk sizes on Close.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + len(p)
	if end > len(s.buf) {
		grown := make([]byte, end)
		copy(grown, s.buf)
		s.buf = grown
	}
	copy(s.buf[s.pos:], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(s.pos) + offset
	case io.SeekEnd:
		abs = int64(len(s.buf)) + offset
	default:
		return 0, fmt.Errorf("audio: seek: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errors.New("audio: seek: negative position")
	}
	s.pos = int(abs)
	return abs, nil
}

func (s *seekBuffer) Bytes() []byte { return s.buf }
