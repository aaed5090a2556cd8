package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/MrWong99/ioanna/pkg/audio"
	"github.com/MrWong99/ioanna/pkg/provider/vad"
)

var (
	// ErrRecordingInProgress is returned by [Recorder.Record] when another
	// recording has not finished yet.
	ErrRecordingInProgress = errors.New("capture: recording already in progress")

	// ErrDeviceUnavailable wraps audio source failures other than end of
	// stream and cancellation.
	ErrDeviceUnavailable = errors.New("capture: audio device unavailable")
)

// Default recorder limits.
const (
	DefaultChunkSamples = 480
	DefaultSilenceLimit = 2 * time.Second
	DefaultMaxDuration  = 30 * time.Second
)

// StopReason tells why a recording ended.
type StopReason int

const (
	// StopSilence means the trailing silence reached the silence limit.
	StopSilence StopReason = iota + 1

	// StopMaxDuration means the recording reached its length cap.
	StopMaxDuration

	// StopCancelled means the context was cancelled.
	StopCancelled

	// StopEndOfStream means the audio source ran dry.
	StopEndOfStream
)

// String returns the reason name.
func (r StopReason) String() string {
	switch r {
	case StopSilence:
		return "silence"
	case StopMaxDuration:
		return "max_duration"
	case StopCancelled:
		return "cancelled"
	case StopEndOfStream:
		return "end_of_stream"
	default:
		return "unknown"
	}
}

// Recording is the result of one [Recorder.Record] call.
type Recording struct {
	// Clip holds every captured chunk, trailing silence included.
	Clip audio.Clip

	// Duration is the length of Clip.
	Duration time.Duration

	// TrailingSilence is the amount of non-speech audio at the end of Clip.
	TrailingSilence time.Duration

	// StopReason tells why recording stopped.
	StopReason StopReason

	// Path is the WAV file the clip was written to, if any.
	Path string
}

// RecorderConfig holds the recorder limits. Zero fields take the defaults.
type RecorderConfig struct {
	// ChunkSamples is the number of sample frames read per chunk.
	ChunkSamples int

	// SilenceLimit stops the recording once this much consecutive
	// non-speech has been captured.
	SilenceLimit time.Duration

	// MaxDuration caps the length of a recording.
	MaxDuration time.Duration

	// OutputPath, when set, receives the recording as a WAV file.
	OutputPath string

	// SpeechThreshold and SilenceThreshold are passed to the VAD session.
	SpeechThreshold  float64
	SilenceThreshold float64
}

func (c *RecorderConfig) applyDefaults() {
	if c.ChunkSamples <= 0 {
		c.ChunkSamples = DefaultChunkSamples
	}
	if c.SilenceLimit <= 0 {
		c.SilenceLimit = DefaultSilenceLimit
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = DefaultMaxDuration
	}
	if c.SpeechThreshold <= 0 {
		c.SpeechThreshold = 0.5
	}
	if c.SilenceThreshold <= 0 || c.SilenceThreshold > c.SpeechThreshold {
		c.SilenceThreshold = c.SpeechThreshold * 0.7
	}
}

// Recorder captures one spoken answer at a time from an audio source, using
// voice activity detection to decide when the speaker has finished.
type Recorder struct {
	src    audio.Source
	engine vad.Engine
	cfg    RecorderConfig

	inProgress atomic.Bool
}

// NewRecorder returns a recorder reading from src and classifying chunks with
// sessions from engine.
func NewRecorder(src audio.Source, engine vad.Engine, cfg RecorderConfig) *Recorder {
	cfg.applyDefaults()
	return &Recorder{src: src, engine: engine, cfg: cfg}
}

// InProgress reports whether a recording is currently running.
func (r *Recorder) InProgress() bool {
	return r.inProgress.Load()
}

// Record captures audio until the speaker has been silent for the silence
// limit, the maximum duration is reached, the source ends or ctx is done.
//
// A concurrent call fails fast with [ErrRecordingInProgress]. On
// cancellation the partial recording is returned together with the context
// error.
func (r *Recorder) Record(ctx context.Context) (Recording, error) {
	if !r.inProgress.CompareAndSwap(false, true) {
		return Recording{}, ErrRecordingInProgress
	}
	defer r.inProgress.Store(false)

	f := r.src.Format()
	sess, err := r.engine.NewSession(vad.Config{
		SampleRate:       f.SampleRate,
		FrameSizeMs:      max(r.cfg.ChunkSamples*1000/f.SampleRate, 1),
		SpeechThreshold:  r.cfg.SpeechThreshold,
		SilenceThreshold: r.cfg.SilenceThreshold,
	})
	if err != nil {
		return Recording{}, fmt.Errorf("capture: open vad session: %w", err)
	}
	defer sess.Close()

	var (
		chunks  [][]byte
		total   time.Duration
		silence time.Duration
		reason  StopReason
		readErr error
		vadErrs int
	)
	for reason == 0 {
		chunk, err := r.src.ReadChunk(ctx, r.cfg.ChunkSamples)
		if len(chunk) > 0 {
			chunks = append(chunks, chunk)
			d := audio.ChunkDuration(chunk, f)
			total += d

			ev, verr := sess.ProcessFrame(chunk)
			switch {
			case verr != nil:
				if vadErrs == 0 {
					slog.Warn("capture: vad error, treating chunk as silence", "err", verr)
				}
				vadErrs++
				silence += d
			case ev.IsSpeech():
				silence = 0
			default:
				silence += d
			}
		}

		switch {
		case err != nil && ctx.Err() != nil:
			reason, readErr = StopCancelled, fmt.Errorf("capture: record: %w", ctx.Err())
		case errors.Is(err, io.EOF):
			reason = StopEndOfStream
		case err != nil:
			reason, readErr = StopEndOfStream, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
		case total >= r.cfg.MaxDuration:
			reason = StopMaxDuration
		case silence >= r.cfg.SilenceLimit:
			reason = StopSilence
		}
	}

	rec := Recording{
		Clip:            audio.Concat(f, chunks),
		TrailingSilence: min(silence, total),
		StopReason:      reason,
	}
	rec.Duration = rec.Clip.Duration()
	slog.Debug("capture: recording finished",
		"duration", rec.Duration, "silence", rec.TrailingSilence, "reason", reason)

	if readErr != nil {
		return rec, readErr
	}
	if r.cfg.OutputPath != "" && !rec.Clip.Empty() {
		if err := audio.WriteWAVFile(r.cfg.OutputPath, rec.Clip); err != nil {
			slog.Warn("capture: could not write recording", "err", err)
		} else {
			rec.Path = r.cfg.OutputPath
		}
	}
	return rec, nil
}

// Remove deletes the recording's WAV file, if one was written. A missing file
// is not an error.
func (rec Recording) Remove() error {
	if rec.Path == "" {
		return nil
	}
	if err := os.Remove(rec.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("capture: remove recording: %w", err)
	}
	return nil
}
