package pipeline

import (
	"context"
	"errors"

	"github.com/Lllllllleong/documentreviewflow/internal/models"
	"github.com/Lllllllleong/documentreviewflow/internal/notify"
)

const referenceStage = "references"

// SetDraft replaces the reference-authoring form.
func (s *Session) SetDraft(draft models.ReferenceDraft) {
	s.mu.Lock()
	s.state.Draft = draft
	s.mu.Unlock()
}

// Draft returns the reference-authoring form.
func (s *Session) Draft() models.ReferenceDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Draft
}

// AddReference turns the draft into a library reference and resets the draft.
func (s *Session) AddReference(ctx context.Context) (models.ReferenceDocument, error) {
	s.mu.Lock()
	draft := s.state.Draft
	s.mu.Unlock()

	ref, err := s.library.Create(draft)
	if err != nil {
		msg := "Error adding document. See logs for details."
		if errors.Is(err, ErrPrecondition) {
			msg = "Title and Summary are required."
		}
		s.emit(ctx, referenceStage, notify.IntentFailure, msg)
		return models.ReferenceDocument{}, err
	}

	s.mu.Lock()
	if s.state.Draft == draft {
		s.state.Draft = models.ReferenceDraft{}
	}
	s.mu.Unlock()

	s.logger.Info("Reference document added.", "referenceId", ref.ID, "tests", len(ref.Tests))
	s.emit(ctx, referenceStage, notify.IntentSuccess, "Reference document added successfully!")
	return ref, nil
}

// SelectReference makes the library reference with id the comparison target.
// An existing report is kept; it is regenerated only on request.
func (s *Session) SelectReference(ctx context.Context, id string) (models.ReferenceDocument, error) {
	ref, err := s.library.Get(id)
	if err != nil {
		s.emit(ctx, referenceStage, notify.IntentFailure, "Reference document not found.")
		return models.ReferenceDocument{}, err
	}
	s.mu.Lock()
	s.state.Reference = &ref
	s.mu.Unlock()

	s.emit(ctx, referenceStage, notify.IntentInfo, "Selected reference "+ref.Title+".")
	return ref, nil
}

// DeleteReference removes a reference from the library and deselects it.
func (s *Session) DeleteReference(ctx context.Context, id string) error {
	if err := s.library.Delete(id); err != nil {
		s.emit(ctx, referenceStage, notify.IntentFailure, "Reference document not found.")
		return err
	}
	s.mu.Lock()
	if s.state.Reference != nil && s.state.Reference.ID == id {
		s.state.Reference = nil
	}
	s.mu.Unlock()

	s.emit(ctx, referenceStage, notify.IntentSuccess, "Reference document deleted.")
	return nil
}
