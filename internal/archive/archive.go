// Package archive stores saved review snapshots. The in-memory Archive is the
// authoritative store; Mirrors copy each snapshot to external systems.
package archive

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/documentreviewflow/internal/models"
)

// ErrNotFound is returned when a snapshot ID is unknown.
var ErrNotFound = errors.New("saved document not found")

// Archive is an append-only collection of SavedDocument snapshots.
type Archive interface {
	Append(ctx context.Context, doc models.SavedDocument) error
	List(ctx context.Context) ([]models.SavedDocument, error)
	Get(ctx context.Context, id string) (models.SavedDocument, error)
}

// Mirror receives a copy of every appended snapshot.
type Mirror interface {
	Name() string
	Mirror(ctx context.Context, doc models.SavedDocument) error
}

// Memory is an in-process Archive.
type Memory struct {
	mu   sync.RWMutex
	docs []models.SavedDocument
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(_ context.Context, doc models.SavedDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, doc)
	return nil
}

func (m *Memory) List(_ context.Context) ([]models.SavedDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.SavedDocument(nil), m.docs...), nil
}

func (m *Memory) Get(_ context.Context, id string) (models.SavedDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.docs {
		if d.ID == id {
			return d, nil
		}
	}
	return models.SavedDocument{}, ErrNotFound
}

// Len returns the number of snapshots.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Replicator copies snapshots to every mirror concurrently.
type Replicator struct {
	mirrors []Mirror
}

func NewReplicator(mirrors ...Mirror) *Replicator {
	var ms []Mirror
	for _, m := range mirrors {
		if m != nil {
			ms = append(ms, m)
		}
	}
	return &Replicator{mirrors: ms}
}

// Len returns the number of configured mirrors.
func (r *Replicator) Len() int {
	if r == nil {
		return 0
	}
	return len(r.mirrors)
}

// Replicate runs every mirror and returns the joined failures. One failing
// mirror does not stop the others.
func (r *Replicator) Replicate(ctx context.Context, doc models.SavedDocument) error {
	if r.Len() == 0 {
		return nil
	}
	logCtx := slog.With("savedDocumentId", doc.ID)

	var (
		eg   errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	eg.SetLimit(4)
	for _, m := range r.mirrors {
		eg.Go(func() error {
			if err := m.Mirror(ctx, doc); err != nil {
				logCtx.Error("Mirror failed", "mirror", m.Name(), "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			logCtx.Info("Mirrored saved document.", "mirror", m.Name())
			return nil
		})
	}
	_ = eg.Wait()
	return errors.Join(errs...)
}
