package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// ExecPlayer plays clips through an external command such as
// ["aplay", "-q"] or ["afplay"]; the WAV path is appended as the last argument.
type ExecPlayer struct {
	Command []string
}

// Start writes the clip to a temp file and launches the command on it.
func (p *ExecPlayer) Start(_ context.Context, clip *Clip) (Playback, error) {
	if len(p.Command) == 0 {
		return nil, errors.New("no audio player command configured")
	}
	f, err := os.CreateTemp("", "review-clip-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp clip: %w", err)
	}
	if _, err := f.Write(clip.WAV); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to write temp clip: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to close temp clip: %w", err)
	}

	args := append(append([]string{}, p.Command[1:]...), f.Name())
	cmd := exec.Command(p.Command[0], args...)
	if err := cmd.Start(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to start %s: %w", p.Command[0], err)
	}

	pb := &processPlayback{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		os.Remove(f.Name())
		pb.finish(err)
	}()
	return pb, nil
}

type processPlayback struct {
	cmd      *exec.Cmd
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	err     error
	stopped bool
}

func (p *processPlayback) finish(err error) {
	p.mu.Lock()
	if !p.stopped {
		p.err = err
	}
	p.mu.Unlock()
	close(p.done)
}

func (p *processPlayback) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		_ = p.cmd.Process.Kill()
	})
	<-p.done
}

func (p *processPlayback) Done() <-chan struct{} { return p.done }

func (p *processPlayback) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// completed is a Playback that has already finished.
type completed struct{ done chan struct{} }

func newCompleted() *completed {
	c := &completed{done: make(chan struct{})}
	close(c.done)
	return c
}

func (c *completed) Stop()                 {}
func (c *completed) Done() <-chan struct{} { return c.done }
func (c *completed) Err() error            { return nil }

// FilePlayer writes each clip to Dir instead of playing it, for headless runs.
type FilePlayer struct {
	Dir string

	mu   sync.Mutex
	last string
}

// Start writes the clip and reports playback as finished immediately.
func (p *FilePlayer) Start(_ context.Context, clip *Clip) (Playback, error) {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio output dir: %w", err)
	}
	path := filepath.Join(p.Dir, fmt.Sprintf("speech-%s.wav", time.Now().UTC().Format("20060102T150405.000000000")))
	if err := os.WriteFile(path, clip.WAV, 0o644); err != nil {
		return nil, fmt.Errorf("write clip: %w", err)
	}
	p.mu.Lock()
	p.last = path
	p.mu.Unlock()
	return newCompleted(), nil
}

// LastPath returns the most recently written clip.
func (p *FilePlayer) LastPath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// MemoryPlayer keeps the last clip in memory so it can be served over HTTP.
type MemoryPlayer struct {
	mu   sync.Mutex
	last *Clip
}

func (p *MemoryPlayer) Start(_ context.Context, clip *Clip) (Playback, error) {
	p.mu.Lock()
	p.last = clip
	p.mu.Unlock()
	return newCompleted(), nil
}

// Last returns the most recent clip or nil.
func (p *MemoryPlayer) Last() *Clip {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}
