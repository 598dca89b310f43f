package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Player starts audible playback of a clip.
type Player interface {
	Start(ctx context.Context, clip *Clip) (Playback, error)
}

// Playback is one running clip. Stop must not return until the clip is
// silent and its resources are released. Done is closed exactly once when
// playback ends for any reason; Err is valid after Done.
type Playback interface {
	Stop()
	Done() <-chan struct{}
	Err() error
}

// Ended is delivered once per clip when its playback finishes or is stopped.
type Ended struct {
	ClipID uint64
	Err    error
}

// Renderer holds at most one active Playback.
type Renderer struct {
	player  Player
	onEnded func(Ended)
	logger  *slog.Logger

	mu      sync.Mutex
	current *handle
	playing bool
	nextID  uint64
	watches sync.WaitGroup
}

type handle struct {
	id uint64
	pb Playback
}

// NewRenderer creates a Renderer. onEnded may be nil.
func NewRenderer(player Player, onEnded func(Ended)) *Renderer {
	return &Renderer{
		player:  player,
		onEnded: onEnded,
		logger:  slog.With("component", "audio"),
	}
}

// Play decodes base64 PCM and starts it, stopping any clip already playing
// first. A payload that does not decode leaves the current clip alone; a
// failed start leaves nothing playing.
func (r *Renderer) Play(ctx context.Context, data, mimeType string) (uint64, error) {
	clip, err := Decode(data, mimeType)
	if err != nil {
		r.logger.Error("Failed to decode audio payload", "error", err)
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked()
	pb, err := r.player.Start(ctx, clip)
	if err != nil {
		r.playing = false
		r.logger.Error("Failed to start playback", "error", err)
		return 0, fmt.Errorf("start playback: %w", err)
	}

	r.nextID++
	h := &handle{id: r.nextID, pb: pb}
	r.current = h
	r.playing = true
	r.watches.Add(1)
	go r.watch(h)

	r.logger.Info("Playback started.", "clipId", h.id, "sampleRate", clip.SampleRate, "samples", clip.Samples)
	return h.id, nil
}

// Stop silences the current clip, if any.
func (r *Renderer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

// Playing reports whether a clip is currently audible.
func (r *Renderer) Playing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing
}

// Close stops playback and waits for every ended notification to be delivered.
func (r *Renderer) Close() {
	r.Stop()
	r.watches.Wait()
}

func (r *Renderer) stopLocked() {
	if r.current == nil {
		return
	}
	r.current.pb.Stop()
	r.current = nil
	r.playing = false
}

func (r *Renderer) watch(h *handle) {
	defer r.watches.Done()
	<-h.pb.Done()

	r.mu.Lock()
	if r.current == h {
		r.current = nil
		r.playing = false
	}
	r.mu.Unlock()

	if err := h.pb.Err(); err != nil {
		r.logger.Warn("Playback ended with error.", "clipId", h.id, "error", err)
	}
	if r.onEnded != nil {
		r.onEnded(Ended{ClipID: h.id, Err: h.pb.Err()})
	}
}
