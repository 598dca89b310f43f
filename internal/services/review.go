package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/Lllllllleong/documentreviewflow/internal/archive"
	"github.com/Lllllllleong/documentreviewflow/internal/audio"
	"github.com/Lllllllleong/documentreviewflow/internal/config"
	"github.com/Lllllllleong/documentreviewflow/internal/gateway"
	"github.com/Lllllllleong/documentreviewflow/internal/gcp"
	"github.com/Lllllllleong/documentreviewflow/internal/ingest"
	"github.com/Lllllllleong/documentreviewflow/internal/models"
	"github.com/Lllllllleong/documentreviewflow/internal/notify"
	"github.com/Lllllllleong/documentreviewflow/internal/pipeline"
)

const (
	reportsPrefix  = "reviews"
	messageHistory = 500
)

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// Dependencies are the collaborators a ReviewService is assembled from.
// Transport is required; everything else is optional.
type Dependencies struct {
	Transport     gateway.Transport
	Player        audio.Player
	Mirrors       []archive.Mirror
	Messengers    []notify.Messenger
	StorageClient *storage.Client
	RemoteArchive *archive.FirestoreMirror
	Closers       []func() error
}

// ReviewService owns the shared library, archive and gateway and hands out
// review sessions.
type ReviewService struct {
	config   config.Config
	gateway  *gateway.Gateway
	library  *pipeline.Library
	archive  *archive.Memory
	mirrors  *archive.Replicator
	remote   *archive.FirestoreMirror
	loader   *ingest.Loader
	renderer *audio.Renderer
	recorder *notify.Recorder
	notifier notify.Messenger
	closers  []func() error
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	session  *pipeline.Session
	lastUsed time.Time
}

// NewReview loads configuration from configPath and the environment and
// connects every configured backend.
func NewReview(ctx context.Context, configPath string) (*ReviewService, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	deps, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(cfg, deps)
}

// Connect creates the clients selected by cfg.
func Connect(ctx context.Context, cfg config.Config) (Dependencies, error) {
	var deps Dependencies

	transport, closer, err := newTransport(ctx, cfg)
	if err != nil {
		return deps, err
	}
	deps.Transport = transport
	if closer != nil {
		deps.Closers = append(deps.Closers, closer)
	}

	switch {
	case len(cfg.PlayerCommand()) > 0:
		deps.Player = &audio.ExecPlayer{Command: cfg.PlayerCommand()}
	case cfg.AudioDir != "":
		deps.Player = &audio.FilePlayer{Dir: cfg.AudioDir}
	}

	if cfg.ProjectID != "" {
		storageClient, err := gcp.NewStorageClient(ctx)
		if err != nil {
			slog.Warn("Cloud Storage unavailable; gs:// sources and report export disabled.", "error", err)
		} else {
			deps.StorageClient = storageClient
			deps.Closers = append(deps.Closers, storageClient.Close)
		}
	}

	if cfg.Collection != "" {
		firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			return deps, err
		}
		deps.Closers = append(deps.Closers, firestoreClient.Close)
		deps.RemoteArchive = archive.NewFirestoreMirror(firestoreClient, cfg.Collection)
		deps.Mirrors = append(deps.Mirrors, deps.RemoteArchive)
	}
	if cfg.ReportBucket != "" {
		if deps.StorageClient == nil {
			return deps, fmt.Errorf("REPORTS_BUCKET is set but Cloud Storage is unavailable")
		}
		deps.Mirrors = append(deps.Mirrors, archive.NewGCSMirror(deps.StorageClient, cfg.ReportBucket, reportsPrefix))
	}
	if cfg.WorkflowID != "" {
		executionsClient, err := gcp.NewExecutionsClient(ctx)
		if err != nil {
			return deps, err
		}
		deps.Closers = append(deps.Closers, executionsClient.Close)
		deps.Mirrors = append(deps.Mirrors, archive.NewWorkflowMirror(executionsClient, cfg.ProjectID, cfg.WorkflowLoc, cfg.WorkflowID))
	}

	if cfg.EventsTarget != "" {
		publisher, err := notify.NewEventPublisher(cfg.EventsTarget, cfg.EventsSource)
		if err != nil {
			return deps, err
		}
		deps.Messengers = append(deps.Messengers, publisher)
	}
	return deps, nil
}

func newTransport(ctx context.Context, cfg config.Config) (gateway.Transport, func() error, error) {
	switch cfg.Backend {
	case config.BackendGenAI:
		genCfg := gateway.GenAIConfig{APIKey: cfg.APIKey, Location: cfg.Region}
		if cfg.APIKey == "" {
			genCfg.ProjectID = cfg.ProjectID
		}
		t, err := gateway.NewGenAITransport(ctx, genCfg)
		return t, nil, err
	case config.BackendVertex:
		c, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.Region)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	default:
		client := &http.Client{Timeout: cfg.HTTPTimeout}
		return gateway.NewRESTTransport(cfg.APIKey, cfg.BaseURL, client), nil, nil
	}
}

// New assembles a ReviewService from already-created dependencies.
func New(cfg config.Config, deps Dependencies) (*ReviewService, error) {
	if deps.Transport == nil {
		return nil, errors.New("services.New: a gateway transport is required")
	}
	player := deps.Player
	if player == nil {
		player = &audio.MemoryPlayer{}
	}

	recorder := notify.NewRecorder(messageHistory)
	messengers := notify.Multi{notify.NewLogger(nil), recorder}
	messengers = append(messengers, deps.Messengers...)

	s := &ReviewService{
		config:   cfg,
		gateway:  gateway.New(deps.Transport, cfg.GatewayConfig()),
		library:  pipeline.NewLibrary(),
		archive:  archive.NewMemory(),
		mirrors:  archive.NewReplicator(deps.Mirrors...),
		remote:   deps.RemoteArchive,
		loader:   ingest.NewLoader(deps.StorageClient),
		recorder: recorder,
		notifier: messengers,
		closers:  deps.Closers,
		now:      time.Now,
		sessions: make(map[string]*sessionEntry),
	}
	s.renderer = audio.NewRenderer(player, s.onPlaybackEnded)

	slog.Info("Review service ready.", "backend", cfg.Backend, "mirrors", s.mirrors.Len())
	return s, nil
}

func (s *ReviewService) onPlaybackEnded(e audio.Ended) {
	if e.Err != nil {
		slog.Warn("Playback ended with error.", "clipId", e.ClipID, "error", e.Err)
		return
	}
	slog.Info("Playback ended.", "clipId", e.ClipID)
}

// CreateSession starts a new, empty review. Sessions idle for longer than
// the configured TTL are evicted first.
func (s *ReviewService) CreateSession() (*pipeline.Session, error) {
	session, err := pipeline.NewSession(pipeline.Options{
		ID:        uuid.NewString(),
		Generator: s.gateway,
		Library:   s.library,
		Archive:   s.archive,
		Mirrors:   s.mirrors,
		Speaker:   s.renderer,
		Messenger: s.notifier,
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	now := s.now()
	s.evictIdleLocked(now)
	s.sessions[session.ID()] = &sessionEntry{session: session, lastUsed: now}
	s.mu.Unlock()
	slog.Info("Session created.", "sessionId", session.ID())
	return session, nil
}

// Session returns the session with id and marks it as used.
func (s *ReviewService) Session(id string) (*pipeline.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	entry.lastUsed = s.now()
	return entry.session, nil
}

// DeleteSession forgets a session. Calls already in flight finish on their own.
func (s *ReviewService) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	delete(s.sessions, id)
	slog.Info("Session deleted.", "sessionId", id)
	return nil
}

// SessionCount returns the number of registered sessions.
func (s *ReviewService) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// evictIdleLocked drops sessions unused for longer than the TTL. Sessions
// with a stage still running are kept.
func (s *ReviewService) evictIdleLocked(now time.Time) {
	ttl := s.config.SessionTTL
	if ttl <= 0 {
		return
	}
	for id, entry := range s.sessions {
		if now.Sub(entry.lastUsed) <= ttl || running(entry.session) {
			continue
		}
		delete(s.sessions, id)
		slog.Info("Evicted idle session.", "sessionId", id, "idle", now.Sub(entry.lastUsed).String())
	}
}

func running(session *pipeline.Session) bool {
	for _, status := range session.Snapshot().Statuses {
		if status == pipeline.StatusRunning {
			return true
		}
	}
	return false
}

// Load reads a source document for extraction.
func (s *ReviewService) Load(ctx context.Context, uri string) (string, error) {
	return s.loader.Load(ctx, uri)
}

// Messages returns the recent messages emitted by one session.
func (s *ReviewService) Messages(sessionID string) []notify.Message {
	var out []notify.Message
	for _, m := range s.recorder.Messages() {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out
}

// LastMessage returns the most recent message one stage of a session emitted.
func (s *ReviewService) LastMessage(sessionID, stage string) (notify.Message, bool) {
	msgs := s.recorder.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].SessionID == sessionID && msgs[i].Stage == stage {
			return msgs[i], true
		}
	}
	return notify.Message{}, false
}

// Library returns the shared reference library.
func (s *ReviewService) Library() *pipeline.Library { return s.library }

// Archive returns the authoritative archive.
func (s *ReviewService) Archive() archive.Archive { return s.archive }

// Renderer returns the audio renderer shared by all sessions.
func (s *ReviewService) Renderer() *audio.Renderer { return s.renderer }

// RemoteArchive lists snapshots mirrored to Firestore.
func (s *ReviewService) RemoteArchive(ctx context.Context) ([]models.SavedDocument, error) {
	if s.remote == nil {
		return nil, errors.New("no remote archive configured")
	}
	return s.remote.Load(ctx)
}

// Close stops playback and releases every client.
func (s *ReviewService) Close() error {
	s.renderer.Close()
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
