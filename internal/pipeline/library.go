package pipeline

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/Lllllllleong/documentreviewflow/internal/models"
)

// Library holds the reference documents shared by every session. Documents
// are never mutated after creation.
type Library struct {
	mu    sync.RWMutex
	docs  map[string]models.ReferenceDocument
	now   func() time.Time
	newID func() string
}

func NewLibrary() *Library {
	return &Library{
		docs:  make(map[string]models.ReferenceDocument),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Create builds a reference from a draft. Title and summary are required;
// tests are split on commas, trimmed and empty entries dropped.
func (l *Library) Create(draft models.ReferenceDraft) (models.ReferenceDocument, error) {
	if strings.TrimSpace(draft.Title) == "" || strings.TrimSpace(draft.Summary) == "" {
		return models.ReferenceDocument{}, fmt.Errorf("title and summary are required: %w", ErrPrecondition)
	}
	ref := models.ReferenceDocument{
		Title:   draft.Title,
		Number:  draft.Number,
		Summary: draft.Summary,
		Tests:   SplitTests(draft.Tests),
	}
	return l.Put(ref), nil
}

// Put stores ref, assigning an ID and creation time when missing.
func (l *Library) Put(ref models.ReferenceDocument) models.ReferenceDocument {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ref.ID == "" {
		ref.ID = l.newID()
	}
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = l.now()
	}
	ref.Tests = append([]string(nil), ref.Tests...)
	l.docs[ref.ID] = ref
	return ref
}

// Get returns the reference with id.
func (l *Library) Get(id string) (models.ReferenceDocument, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ref, ok := l.docs[id]
	if !ok {
		return models.ReferenceDocument{}, fmt.Errorf("%s: %w", id, ErrReferenceNotFound)
	}
	return ref, nil
}

// List returns every reference, newest first.
func (l *Library) List() []models.ReferenceDocument {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.ReferenceDocument, 0, len(l.docs))
	for _, ref := range l.docs {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Delete removes the reference with id.
func (l *Library) Delete(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.docs[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrReferenceNotFound)
	}
	delete(l.docs, id)
	return nil
}

// LoadFile reads one reference document from a YAML file into the library.
func (l *Library) LoadFile(path string) (models.ReferenceDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.ReferenceDocument{}, fmt.Errorf("failed to read reference file: %w", err)
	}
	var ref models.ReferenceDocument
	if err := yaml.Unmarshal(data, &ref); err != nil {
		return models.ReferenceDocument{}, fmt.Errorf("failed to parse reference file %s: %w", path, err)
	}
	if strings.TrimSpace(ref.Title) == "" {
		return models.ReferenceDocument{}, fmt.Errorf("reference file %s has no title: %w", path, ErrPrecondition)
	}
	return l.Put(ref), nil
}

// SplitTests turns the comma-joined draft field into test names.
func SplitTests(s string) []string {
	var tests []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tests = append(tests, t)
		}
	}
	return tests
}
