package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// ErrSourceClosed is returned by [Source.ReadChunk] after [Source.Close].
var ErrSourceClosed = errors.New("audio: source closed")

// Source produces fixed-size chunks of PCM audio from a capture device.
//
// Implementations must be safe for one reader and a concurrent Close.
type Source interface {
	// Format returns the PCM layout of every chunk this source produces.
	Format() Format

	// ReadChunk blocks until samples frames are available and returns them.
	// A short final chunk is returned together with io.EOF when the
	// underlying stream ends.
	ReadChunk(ctx context.Context, samples int) ([]byte, error)

	// Close releases the device. It is safe to call more than once.
	Close() error
}

// ReaderSource adapts an [io.Reader] of raw PCM (a file, a pipe, a test
// buffer) to [Source].
type ReaderSource struct {
	r      io.Reader
	format Format

	mu     sync.Mutex
	closed bool
}

var _ Source = (*ReaderSource)(nil)

// NewReaderSource returns a Source reading raw PCM in format f from r. If r
// implements [io.Closer] it is closed by [ReaderSource.Close].
func NewReaderSource(r io.Reader, f Format) *ReaderSource {
	return &ReaderSource{r: r, format: f}
}

// Format implements [Source].
func (s *ReaderSource) Format() Format { return s.format }

// ReadChunk implements [Source].
func (s *ReaderSource) ReadChunk(ctx context.Context, samples int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrSourceClosed
	}
	buf := make([]byte, s.format.ChunkBytes(samples))
	n, err := io.ReadFull(s.r, buf)
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		return buf[:n-n%s.format.BlockAlign()], io.EOF
	case err != nil:
		return nil, err
	}
	return buf, nil
}

// Close implements [Source].
func (s *ReaderSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// CommandSource captures audio by running an external recorder (arecord,
// sox, ffmpeg) that writes raw 16-bit PCM to stdout. The process is started
// lazily on the first read and killed on Close.
type CommandSource struct {
	name   string
	args   []string
	format Format

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
	closed bool
}

var _ Source = (*CommandSource)(nil)

// NewCommandSource returns a Source backed by the given command. The command
// must emit raw little-endian 16-bit PCM in format f on stdout.
func NewCommandSource(f Format, name string, args ...string) *CommandSource {
	return &CommandSource{name: name, args: args, format: f}
}

// NewArecordSource returns a CommandSource that captures from the default
// ALSA device using arecord.
func NewArecordSource(f Format, device string) *CommandSource {
	args := []string{"-q", "-t", "raw", "-f", "S16_LE",
		"-r", fmt.Sprint(f.SampleRate), "-c", fmt.Sprint(f.Channels)}
	if device != "" {
		args = append(args, "-D", device)
	}
	return NewCommandSource(f, "arecord", args...)
}

// Format implements [Source].
func (s *CommandSource) Format() Format { return s.format }

func (s *CommandSource) start() (io.Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSourceClosed
	}
	if s.stdout != nil {
		return s.stdout, nil
	}
	cmd := exec.Command(s.name, s.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("audio: %s: stdout pipe: %w", s.name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("audio: start %s: %w", s.name, err)
	}
	s.cmd = cmd
	s.stdout = stdout
	return stdout, nil
}

// ReadChunk implements [Source].
func (s *CommandSource) ReadChunk(ctx context.Context, samples int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := s.start()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, s.format.ChunkBytes(samples))
	n, err := io.ReadFull(r, buf)
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		return buf[:n-n%s.format.BlockAlign()], io.EOF
	case err != nil:
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil, ErrSourceClosed
		}
		return nil, fmt.Errorf("audio: read %s: %w", s.name, err)
	}
	return buf, nil
}

// Close implements [Source]. It kills the recorder process.
func (s *CommandSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cmd == nil {
		return nil
	}
	_ = s.cmd.Process.Kill()
	_ = s.cmd.Wait()
	return nil
}
