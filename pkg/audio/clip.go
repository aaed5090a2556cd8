// Package audio defines the PCM clip type and the capture/playback boundaries
// used by Ioanna.
//
// All audio is 16-bit signed little-endian PCM. A [Clip] owns its sample bytes
// together with their [Format]; slicing a clip by milliseconds always lands on
// a sample-frame boundary so the result is valid PCM.
//
// The two device boundaries are:
//
//   - [Source] produces fixed-size PCM chunks (microphone side).
//   - [Player] plays a clip and blocks until playback has finished.
//
// Device drivers are deliberately out of scope; the shipped implementations
// delegate to external commands (arecord/aplay, sox, ffmpeg) or plain files.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// BytesPerSample is fixed at 2 for 16-bit PCM.
const BytesPerSample = 2

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is 16 kHz mono, the rate expected by speech models.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1}

// Valid reports whether f describes a usable PCM layout.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// BlockAlign returns the number of bytes in one sample frame (all channels).
func (f Format) BlockAlign() int {
	return f.Channels * BytesPerSample
}

// BytesPerSecond returns the PCM byte rate for f.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.BlockAlign()
}

// ChunkBytes returns the size in bytes of a chunk holding samples frames.
func (f Format) ChunkBytes(samples int) int {
	return samples * f.BlockAlign()
}

// String returns a human-readable form such as "16000Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// Clip is a contiguous buffer of PCM audio in a known format.
type Clip struct {
	PCM    []byte
	Format Format
}

// Duration returns the playback length of the clip. Returns 0 when the
// format is invalid.
func (c Clip) Duration() time.Duration {
	bps := c.Format.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(len(c.PCM)) * int64(time.Second) / int64(bps))
}

// DurationMs returns the playback length in (fractional) milliseconds.
func (c Clip) DurationMs() float64 {
	bps := c.Format.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return float64(len(c.PCM)) * 1000 / float64(bps)
}

// Empty reports whether the clip holds no samples.
func (c Clip) Empty() bool {
	return len(c.PCM) < c.Format.BlockAlign() || !c.Format.Valid()
}

// Slice returns the part of the clip between startMs and endMs. Offsets are
// rounded down to a sample-frame boundary and clamped to the clip, so the
// result may be empty but never invalid. The returned clip owns a copy of
// the bytes.
func (c Clip) Slice(startMs, endMs float64) Clip {
	out := Clip{Format: c.Format}
	if !c.Format.Valid() || endMs <= startMs {
		return out
	}
	from := c.offset(startMs)
	to := c.offset(endMs)
	if to <= from {
		return out
	}
	out.PCM = make([]byte, to-from)
	copy(out.PCM, c.PCM[from:to])
	return out
}

// offset converts a millisecond position into a frame-aligned byte offset
// clamped to [0, len(c.PCM)].
func (c Clip) offset(ms float64) int {
	if ms <= 0 {
		return 0
	}
	align := c.Format.BlockAlign()
	frames := int(math.Floor(ms * float64(c.Format.SampleRate) / 1000))
	off := frames * align
	if max := len(c.PCM) - len(c.PCM)%align; off > max {
		return max
	}
	return off
}

// Concat joins chunks into one clip of format f.
func Concat(f Format, chunks [][]byte) Clip {
	n := 0
	for _, ch := range chunks {
		n += len(ch)
	}
	pcm := make([]byte, 0, n)
	for _, ch := range chunks {
		pcm = append(pcm, ch...)
	}
	return Clip{PCM: pcm, Format: f}
}

// ChunkDuration returns the playback length of a single PCM chunk in f.
func ChunkDuration(chunk []byte, f Format) time.Duration {
	return Clip{PCM: chunk, Format: f}.Duration()
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

// MonoFloat32 returns the clip's samples as float32 in [-1, 1], averaging
// all channels of each frame. A trailing partial frame is dropped.
func (c Clip) MonoFloat32() []float32 {
	ch := max(c.Format.Channels, 1)
	frames := len(c.PCM) / (BytesPerSample * ch)
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for j := range ch {
			off := (i*ch + j) * BytesPerSample
			sum += float32(int16(binary.LittleEndian.Uint16(c.PCM[off:]))) / 32768
		}
		out[i] = sum / float32(ch)
	}
	return out
}
