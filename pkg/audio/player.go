package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Player plays a clip on an output device. Play blocks until playback has
// finished or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, c Clip) error
}

// CommandPlayer pipes a WAV-encoded clip into an external player such as
// "aplay -q -" or "paplay". The command is started once per clip.
type CommandPlayer struct {
	Name string
	Args []string
}

var _ Player = (*CommandPlayer)(nil)

// NewAplayPlayer returns a CommandPlayer that plays through ALSA's aplay.
func NewAplayPlayer() *CommandPlayer {
	return &CommandPlayer{Name: "aplay", Args: []string{"-q", "-"}}
}

// Play implements [Player].
func (p *CommandPlayer) Play(ctx context.Context, c Clip) error {
	if c.Empty() {
		return nil
	}
	cmd := exec.CommandContext(ctx, p.Name, p.Args...)
	cmd.Stdin = bytes.NewReader(EncodeWAV(c))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("audio: play via %s: %w: %s", p.Name, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

// WAVFilePlayer "plays" a clip by writing it to a WAV file. It is used in
// headless deployments where another process picks the file up, and keeps
// the last utterance available for inspection.
type WAVFilePlayer struct {
	Path string
}

var _ Player = (*WAVFilePlayer)(nil)

// Play implements [Player].
func (p *WAVFilePlayer) Play(ctx context.Context, c Clip) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return WriteWAVFile(p.Path, c)
}
