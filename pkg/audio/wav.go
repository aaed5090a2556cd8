package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
)

// ErrNotWAV is returned by [DecodeWAV] when the input is not a PCM RIFF/WAVE file.
var ErrNotWAV = errors.New("audio: not a 16-bit PCM wav file")

// EncodeWAV wraps the clip's PCM data in a standard RIFF/WAV container. The
// returned byte slice is suitable for direct inclusion in a multipart upload.
func EncodeWAV(c Clip) []byte {
	bps := BytesPerSample * 8
	byteRate := c.Format.BytesPerSecond()
	blockAlign := c.Format.BlockAlign()
	dataSize := len(c.PCM)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(c.Format.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(c.Format.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], c.PCM)

	return buf
}

// DecodeWAV parses a 16-bit PCM RIFF/WAV file. Unknown sub-chunks (LIST,
// fact, ...) between fmt and data are skipped.
func DecodeWAV(data []byte) (Clip, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Clip{}, ErrNotWAV
	}

	var (
		f       Format
		haveFmt bool
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return Clip{}, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			if binary.LittleEndian.Uint16(data[body:body+2]) != 1 {
				return Clip{}, fmt.Errorf("%w: non-PCM encoding", ErrNotWAV)
			}
			f.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			if bits := binary.LittleEndian.Uint16(data[body+14 : body+16]); bits != 16 {
				return Clip{}, fmt.Errorf("%w: %d bits per sample", ErrNotWAV, bits)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return Clip{}, fmt.Errorf("%w: data before fmt", ErrNotWAV)
			}
			end := min(body+size, len(data))
			pcm := make([]byte, end-body)
			copy(pcm, data[body:end])
			return Clip{PCM: pcm, Format: f}, nil
		}
		// Chunks are word-aligned.
		pos = body + size + size%2
	}
	return Clip{}, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
}

// WriteWAVFile writes the clip to path as a WAV file.
func WriteWAVFile(path string, c Clip) error {
	if err := os.WriteFile(path, EncodeWAV(c), 0o644); err != nil {
		return fmt.Errorf("audio: write wav %q: %w", path, err)
	}
	return nil
}

// RMS returns the root-mean-square energy of a 16-bit signed little-endian
// PCM buffer. Returns 0 for buffers shorter than one sample. The result is
// expressed in the same units as PCM sample values (0–32 767).
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
