package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrNoDevice is returned when no usable player or recorder binary exists.
var ErrNoDevice = errors.New("audio: no audio device command available")

// Sink renders decoded audio.
//
// Play blocks until b has finished playing or ctx is cancelled. gain is
// consulted before every chunk is written so level changes apply to audio
// that is still playing. Cancellation is not an error.
type Sink interface {
	Play(ctx context.Context, b *Buffer, gain *Gain) error
}

// Source captures live PCM from a microphone.
//
// The returned stream yields 16-bit PCM in format f until it is closed or
// ctx is cancelled.
type Source interface {
	Open(ctx context.Context, f Format) (io.ReadCloser, error)
}

// Command is an external program invocation. Args may contain the
// placeholders {rate} and {channels}, expanded per stream.
type Command struct {
	Path string
	Args []string
}

// Available reports whether the command binary can be resolved.
func (c Command) Available() bool {
	if c.Path == "" {
		return false
	}
	_, err := exec.LookPath(c.Path)
	return err == nil
}

func (c Command) expand(f Format) []string {
	r := strings.NewReplacer(
		"{rate}", strconv.Itoa(f.SampleRate),
		"{channels}", strconv.Itoa(f.Channels),
	)
	out := make([]string, len(c.Args))
	for i, a := range c.Args {
		out[i] = r.Replace(a)
	}
	return out
}

// Known players that read raw s16le PCM from stdin, in preference order.
var players = []Command{
	{Path: "pacat", Args: []string{"--raw", "--format=s16le", "--rate={rate}", "--channels={channels}"}},
	{Path: "aplay", Args: []string{"-q", "-t", "raw", "-f", "S16_LE", "-r", "{rate}", "-c", "{channels}", "-"}},
	{Path: "ffplay", Args: []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-f", "s16le", "-ar", "{rate}", "-ac", "{channels}", "-i", "-"}},
}

// Known recorders that write raw s16le PCM to stdout.
var recorders = []Command{
	{Path: "parec", Args: []string{"--raw", "--format=s16le", "--rate={rate}", "--channels={channels}"}},
	{Path: "arecord", Args: []string{"-q", "-t", "raw", "-f", "S16_LE", "-r", "{rate}", "-c", "{channels}"}},
	{Path: "sox", Args: []string{"-q", "-d", "-t", "raw", "-b", "16", "-e", "signed-integer", "-r", "{rate}", "-c", "{channels}", "-"}},
}

// DetectPlayer returns the first known player found on PATH.
func DetectPlayer() (Command, error) { return detect(players) }

// DetectRecorder returns the first known recorder found on PATH.
func DetectRecorder() (Command, error) { return detect(recorders) }

func detect(cands []Command) (Command, error) {
	for _, c := range cands {
		if c.Available() {
			return c, nil
		}
	}
	return Command{}, ErrNoDevice
}

// ─── ExecSink ────────────────────────────────────────────────────────────────

// chunkDuration is how much audio ExecSink writes per gain sample.
const chunkDuration = 100 * time.Millisecond

// ExecSink plays audio by piping PCM into an external player process.
type ExecSink struct {
	Cmd Command
}

var _ Sink = (*ExecSink)(nil)

// Play implements Sink.
func (s *ExecSink) Play(ctx context.Context, b *Buffer, gain *Gain) error {
	if b == nil || b.Len() == 0 {
		return ErrEmptyPayload
	}
	cmd := exec.CommandContext(ctx, s.Cmd.Path, s.Cmd.expand(b.Format)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("audio: player stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("audio: start %s: %w", s.Cmd.Path, err)
	}

	step := b.Format.SampleRate * b.Format.Channels * int(chunkDuration) / int(time.Second)
	step = max(step, 1)
	var writeErr error
	for off := 0; off < b.Len() && ctx.Err() == nil; off += step {
		if _, writeErr = stdin.Write(b.PCM16(off, off+step, gain.Load())); writeErr != nil {
			break
		}
	}
	_ = stdin.Close()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil
	}
	if writeErr != nil {
		return fmt.Errorf("audio: write to %s: %w", s.Cmd.Path, writeErr)
	}
	if waitErr != nil {
		return fmt.Errorf("audio: %s exited: %w", s.Cmd.Path, waitErr)
	}
	return nil
}

// ─── ExecSource ──────────────────────────────────────────────────────────────

// ExecSource records audio by reading PCM from an external recorder process.
type ExecSource struct {
	Cmd Command
}

var _ Source = (*ExecSource)(nil)

// Open implements Source. Closing the returned stream stops the recorder.
func (s *ExecSource) Open(ctx context.Context, f Format) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, s.Cmd.Path, s.Cmd.expand(f)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("audio: recorder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("audio: start %s: %w", s.Cmd.Path, err)
	}
	return &procReader{ReadCloser: stdout, cmd: cmd, cancel: cancel}, nil
}

type procReader struct {
	io.ReadCloser
	cmd    *exec.Cmd
	cancel context.CancelFunc
}

func (p *procReader) Close() error {
	p.cancel()
	_ = p.ReadCloser.Close()
	if err := p.cmd.Wait(); err != nil {
		slog.Debug("audio: recorder exited", "cmd", p.cmd.Path, "err", err)
	}
	return nil
}
