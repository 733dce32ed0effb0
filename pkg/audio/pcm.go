// Package audio holds the PCM plumbing shared by narration playback and
// speech capture: decoding synthesised payloads, WAV framing, and the Sink
// and Source abstractions over local audio devices.
//
// All PCM handled here is 16-bit signed little-endian. Decoded samples are
// float32 values normalised by 32768, so a full-scale negative sample maps to
// exactly -1.0.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

const bytesPerSample = 2

// Format describes the layout of a raw PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

var (
	// NarrationFormat is what speech synthesis returns: 24 kHz mono.
	NarrationFormat = Format{SampleRate: 24000, Channels: 1}

	// CaptureFormat is what speech recognition expects: 16 kHz mono.
	CaptureFormat = Format{SampleRate: 16000, Channels: 1}
)

// BytesPerSecond returns the PCM byte rate for f.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * bytesPerSample
}

// Duration returns how long n bytes of PCM in format f play for.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// String implements fmt.Stringer.
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch", f.SampleRate, f.Channels)
}

var (
	// ErrEmptyPayload is returned when there is no audio to decode.
	ErrEmptyPayload = errors.New("audio: empty payload")

	// ErrOddLength is returned when a PCM buffer is not sample aligned.
	ErrOddLength = errors.New("audio: pcm length is not a multiple of 2")
)

// Buffer is decoded, ready-to-play audio.
type Buffer struct {
	Format  Format
	Samples []float32
}

// Len returns the number of samples across all channels.
func (b *Buffer) Len() int { return len(b.Samples) }

// Duration returns the playback length of b.
func (b *Buffer) Duration() time.Duration {
	return b.Format.Duration(len(b.Samples) * bytesPerSample)
}

// PCM16 re-encodes the samples in [from, to) as 16-bit little-endian PCM
// with gain applied. Out-of-range values are clamped.
func (b *Buffer) PCM16(from, to int, gain float32) []byte {
	from = max(from, 0)
	to = min(to, len(b.Samples))
	if from >= to {
		return nil
	}
	out := make([]byte, (to-from)*bytesPerSample)
	for i, s := range b.Samples[from:to] {
		v := math.Round(float64(s * gain * 32768))
		v = math.Max(math.MinInt16, math.Min(math.MaxInt16, v))
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(int16(v)))
	}
	return out
}

// DecodePCM16 converts raw 16-bit little-endian PCM into a Buffer.
func DecodePCM16(pcm []byte, f Format) (*Buffer, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(pcm)%bytesPerSample != 0 {
		return nil, ErrOddLength
	}
	samples := make([]float32, len(pcm)/bytesPerSample)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:]))
		samples[i] = float32(s) / 32768
	}
	return &Buffer{Format: f, Samples: samples}, nil
}

// DecodeBase64PCM decodes a base64 payload of headerless 16-bit PCM.
func DecodeBase64PCM(payload string, f Format) (*Buffer, error) {
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("audio: decode base64: %w", err)
	}
	return DecodePCM16(raw, f)
}

// Gain is a volume level that can be changed while audio is playing.
// The zero value is silent; use NewGain for a non-zero start level.
type Gain struct {
	bits atomic.Uint32
}

// NewGain returns a Gain initialised to v, clamped to [0, 1].
func NewGain(v float32) *Gain {
	g := &Gain{}
	g.Store(v)
	return g
}

// Load returns the current level.
func (g *Gain) Load() float32 {
	return math.Float32frombits(g.bits.Load())
}

// Store sets the level, clamped to [0, 1].
func (g *Gain) Store(v float32) {
	v = max(0, min(1, v))
	g.bits.Store(math.Float32bits(v))
}
