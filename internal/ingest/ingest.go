// Package ingest loads the raw text of a source document.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"unicode/utf8"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/documentreviewflow/internal/gcp"
)

var (
	// ErrUnsupportedSource is returned for URI schemes the loader cannot read.
	ErrUnsupportedSource = errors.New("unsupported document source")
	// ErrEmptyDocument is returned when the source has no text.
	ErrEmptyDocument = errors.New("document is empty")
)

// Loader reads documents from the local filesystem or Cloud Storage.
type Loader struct {
	storageClient *storage.Client
}

// NewLoader creates a Loader. storageClient may be nil, in which case gs://
// sources are rejected.
func NewLoader(storageClient *storage.Client) *Loader {
	return &Loader{storageClient: storageClient}
}

// Load returns the UTF-8 text behind uri. Accepted forms are bare paths,
// file:// URLs and gs://bucket/object.
func (l *Loader) Load(ctx context.Context, uri string) (string, error) {
	logCtx := slog.With("source", uri)

	data, err := l.read(ctx, uri)
	if err != nil {
		logCtx.Error("Failed to load document", "error", err)
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s: %w: not UTF-8 text", uri, ErrUnsupportedSource)
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: %w", uri, ErrEmptyDocument)
	}
	logCtx.Info("Loaded document.", "bytes", len(data))
	return text, nil
}

func (l *Loader) read(ctx context.Context, uri string) ([]byte, error) {
	if !strings.Contains(uri, "://") {
		return readFile(uri)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid source %q: %w", uri, err)
	}
	switch u.Scheme {
	case "file":
		return readFile(u.Path)
	case "gs":
		if l.storageClient == nil {
			return nil, fmt.Errorf("%s: %w: no storage client configured", uri, ErrUnsupportedSource)
		}
		object := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || object == "" {
			return nil, fmt.Errorf("invalid GCS source %q", uri)
		}
		return gcp.ReadGCSObject(ctx, l.storageClient, u.Host, object)
	}
	return nil, fmt.Errorf("%s: %w", uri, ErrUnsupportedSource)
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
