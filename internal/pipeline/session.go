package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/documentreviewflow/internal/archive"
	"github.com/Lllllllleong/documentreviewflow/internal/gateway"
	"github.com/Lllllllleong/documentreviewflow/internal/models"
	"github.com/Lllllllleong/documentreviewflow/internal/notify"
)

// Generator is the subset of the AI gateway the stages call.
type Generator interface {
	Extract(ctx context.Context, text string) (*models.ExtractedDocument, error)
	Generate(ctx context.Context, prompt string) (string, error)
	Populate(ctx context.Context, text string) (*models.ReferenceDraft, error)
	Synthesize(ctx context.Context, text string) (*gateway.Speech, error)
}

// Speaker plays synthesized speech.
type Speaker interface {
	Play(ctx context.Context, data, mimeType string) (uint64, error)
	Playing() bool
}

// Options wires a Session to its collaborators. Generator, Library and
// Archive are required.
type Options struct {
	ID        string
	Generator Generator
	Library   *Library
	Archive   archive.Archive
	Mirrors   *archive.Replicator
	Speaker   Speaker
	Messenger notify.Messenger
	Now       func() time.Time
	NewID     func() string
}

// Session is one review workflow. All methods are safe for concurrent use;
// different stages may run at the same time.
type Session struct {
	id        string
	gen       Generator
	library   *Library
	archive   archive.Archive
	mirrors   *archive.Replicator
	speaker   Speaker
	messenger notify.Messenger
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger

	mu       sync.Mutex
	state    WorkflowState
	statuses map[Stage]StageStatus
	// extractRev and outputRev change whenever the extraction or the
	// generated output is replaced or cleared.
	extractRev uint64
	outputRev  uint64
}

// NewSession creates a session with every stage Idle.
func NewSession(opts Options) (*Session, error) {
	if opts.Generator == nil || opts.Library == nil || opts.Archive == nil {
		return nil, errors.New("NewSession: generator, library and archive are required")
	}
	s := &Session{
		id:        opts.ID,
		gen:       opts.Generator,
		library:   opts.Library,
		archive:   opts.Archive,
		mirrors:   opts.Mirrors,
		speaker:   opts.Speaker,
		messenger: opts.Messenger,
		now:       opts.Now,
		newID:     opts.NewID,
		statuses:  make(map[Stage]StageStatus, len(Stages)),
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.id == "" {
		s.id = s.newID()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.messenger == nil {
		s.messenger = notify.NewLogger(nil)
	}
	for _, st := range Stages {
		s.statuses[st] = StatusIdle
	}
	s.logger = slog.With("sessionId", s.id)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Library returns the shared reference library.
func (s *Session) Library() *Library { return s.library }

// Archive returns the archive saved documents are appended to.
func (s *Session) Archive() archive.Archive { return s.archive }

// Snapshot returns a consistent copy of the state and stage statuses.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	state := s.state
	if state.Reference != nil {
		ref := *state.Reference
		state.Reference = &ref
	}
	statuses := make(map[Stage]StageStatus, len(s.statuses))
	for k, v := range s.statuses {
		statuses[k] = v
	}
	s.mu.Unlock()

	snap := Snapshot{ID: s.id, State: state, Statuses: statuses}
	if s.speaker != nil {
		snap.Playing = s.speaker.Playing()
	}
	return snap
}

// Status returns the current status of one stage.
func (s *Session) Status(stage Stage) StageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[stage]
}

// ticket records what a running stage started from.
type ticket struct {
	stage      Stage
	state      WorkflowState
	extractRev uint64
	outputRev  uint64
}

// begin atomically checks that stage is not running, evaluates the
// precondition, applies prepare and marks the stage Running. check returns a
// user-facing message when the precondition is not met.
func (s *Session) begin(ctx context.Context, stage Stage, check func(*WorkflowState) string, prepare func()) (ticket, error) {
	s.mu.Lock()
	if s.statuses[stage] == StatusRunning {
		s.mu.Unlock()
		s.emit(ctx, stage, notify.IntentFailure, fmt.Sprintf("The %s stage is already running.", stage))
		return ticket{}, fmt.Errorf("%s: %w", stage, ErrStageBusy)
	}
	if check != nil {
		if msg := check(&s.state); msg != "" {
			s.mu.Unlock()
			s.emit(ctx, stage, notify.IntentFailure, msg)
			return ticket{}, fmt.Errorf("%s: %s: %w", stage, msg, ErrPrecondition)
		}
	}
	if prepare != nil {
		prepare()
	}
	s.statuses[stage] = StatusRunning
	t := ticket{stage: stage, state: s.state, extractRev: s.extractRev, outputRev: s.outputRev}
	s.mu.Unlock()

	s.logger.Info("Stage started.", "stage", stage)
	return t, nil
}

// commit applies tr unless valid reports the ticket's inputs were replaced,
// in which case the stage fails with ErrStale.
func (s *Session) commit(ctx context.Context, t ticket, tr Transition, valid func() bool) error {
	s.mu.Lock()
	if valid != nil && !valid() {
		s.statuses[t.stage] = StatusFailed
		s.mu.Unlock()
		s.logger.Warn("Discarding stale stage result.", "stage", t.stage)
		s.emit(ctx, t.stage, notify.IntentFailure, fmt.Sprintf("The %s result was discarded because its input changed.", t.stage))
		return fmt.Errorf("%s: %w", t.stage, ErrStale)
	}
	if tr.Apply != nil {
		tr.Apply(&s.state)
	}
	s.statuses[t.stage] = tr.Status
	s.mu.Unlock()

	s.logger.Info("Stage finished.", "stage", t.stage, "status", tr.Status)
	if tr.Message != "" {
		s.emit(ctx, t.stage, tr.Intent, tr.Message)
	}
	return nil
}

// fail marks the stage Failed without touching state. Empty results and
// transport failures get different messages.
func (s *Session) fail(ctx context.Context, t ticket, err error, emptyMsg, failMsg string) error {
	msg := failMsg
	if errors.Is(err, gateway.ErrEmptyResult) {
		msg = emptyMsg
	}
	s.logger.Error("Stage failed.", "stage", t.stage, "error", err)
	_ = s.commit(ctx, t, Transition{Stage: t.stage, Status: StatusFailed, Intent: notify.IntentFailure, Message: msg}, nil)
	return fmt.Errorf("%s: %w", t.stage, err)
}

func (s *Session) emit(ctx context.Context, stage Stage, intent notify.Intent, text string) {
	s.messenger.Notify(ctx, notify.Message{
		SessionID: s.id,
		Stage:     string(stage),
		Intent:    intent,
		Text:      text,
		At:        s.now(),
	})
}

// invalidateExtraction must be called with s.mu held.
func (s *Session) invalidateExtraction() {
	s.extractRev++
	s.state.Extracted = nil
	s.state.Summary = ""
	s.invalidateOutput()
}

// invalidateOutput must be called with s.mu held.
func (s *Session) invalidateOutput() {
	s.outputRev++
	s.state.clearOutput()
}
