package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/documentreviewflow/internal/pipeline"
)

// GCSEvent is the payload of a Cloud Storage object-finalized event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// URI returns the gs:// address of the object.
func (e GCSEvent) URI() string {
	return fmt.Sprintf("gs://%s/%s", e.Bucket, e.Name)
}

// ProcessUpload opens a new session for an uploaded document and runs the
// extraction stage on it. The session stays registered so the review can be
// continued over HTTP.
func (s *ReviewService) ProcessUpload(ctx context.Context, e GCSEvent) (*pipeline.Session, error) {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if e.Bucket == "" || e.Name == "" {
		return nil, fmt.Errorf("invalid storage event: bucket and name are required")
	}
	if strings.HasSuffix(e.Name, "/") {
		logCtx.Info("Ignoring folder placeholder object.")
		return nil, nil
	}
	logCtx.Info("Processing uploaded document.")

	text, err := s.Load(ctx, e.URI())
	if err != nil {
		return nil, fmt.Errorf("failed to load uploaded document: %w", err)
	}
	session, err := s.CreateSession()
	if err != nil {
		return nil, err
	}
	if _, err := session.Extract(ctx, text); err != nil {
		logCtx.Error("Extraction of uploaded document failed", "sessionId", session.ID(), "error", err)
		return session, err
	}
	logCtx.Info("Uploaded document extracted.", "sessionId", session.ID())
	return session, nil
}
