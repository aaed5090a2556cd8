package audio

import (
	"encoding/binary"
	"log/slog"
	"sync"
)

// Converter brings clips into a target format. It logs once on the first
// mismatch so a misconfigured device is visible without flooding the log.
// Safe for concurrent use.
type Converter struct {
	Target Format
	warned sync.Once
}

// Convert returns c in the converter's target format. Clips that already
// match are returned unchanged. Resampling happens before channel mixing so
// a stereo source headed for mono is only resampled once per channel pair.
func (cv *Converter) Convert(c Clip) Clip {
	if c.Format == cv.Target || !c.Format.Valid() || !cv.Target.Valid() {
		return c
	}
	cv.warned.Do(func() {
		slog.Warn("audio: converting clip format", "from", c.Format, "to", cv.Target)
	})
	return Convert(c, cv.Target)
}

// Convert resamples and remixes c into target. Only mono and stereo layouts
// are remixed; other channel counts keep their layout.
func Convert(c Clip, target Format) Clip {
	pcm := c.PCM[:len(c.PCM)-len(c.PCM)%c.Format.BlockAlign()]
	channels := c.Format.Channels

	if c.Format.SampleRate != target.SampleRate {
		pcm = resample(pcm, channels, c.Format.SampleRate, target.SampleRate)
	}

	switch {
	case channels == 1 && target.Channels == 2:
		pcm = MonoToStereo(pcm)
		channels = 2
	case channels == 2 && target.Channels == 1:
		pcm = StereoToMono(pcm)
		channels = 1
	}
	return Clip{PCM: pcm, Format: Format{SampleRate: target.SampleRate, Channels: channels}}
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n*4)
	for i := range n {
		copy(out[i*4:i*4+2], pcm[i*2:i*2+2])
		copy(out[i*4+2:i*4+4], pcm[i*2:i*2+2])
	}
	return out
}

// StereoToMono averages each L+R pair into one mono sample.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(sampleAt(pcm, i*2))
		r := int32(sampleAt(pcm, i*2+1))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(clamp16((l+r)/2)))
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. Returns the input unchanged if the rates match or
// either rate is not positive.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	return resample(pcm, 1, srcRate, dstRate)
}

// ResampleStereo16 is [ResampleMono16] for interleaved stereo PCM.
func ResampleStereo16(pcm []byte, srcRate, dstRate int) []byte {
	return resample(pcm, 2, srcRate, dstRate)
}

// resample linearly interpolates every channel of interleaved 16-bit PCM.
func resample(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || channels <= 0 || srcRate == dstRate {
		return pcm
	}
	srcFrames := len(pcm) / (2 * channels)
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*2*channels)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for ch := range channels {
			s0 := float64(sampleAt(pcm, idx*channels+ch))
			s1 := float64(sampleAt(pcm, next*channels+ch))
			v := int16(s0*(1-frac) + s1*frac)
			binary.LittleEndian.PutUint16(out[(i*channels+ch)*2:], uint16(v))
		}
	}
	return out
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*2:]))
}

func clamp16(v int32) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	}
	return int16(v)
}
