package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"google.golang.org/api/iterator"

	"github.com/Lllllllleong/documentreviewflow/internal/gcp"
	"github.com/Lllllllleong/documentreviewflow/internal/models"
)

// FirestoreMirror stores snapshots as documents in a collection.
type FirestoreMirror struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreMirror(client *firestore.Client, collection string) *FirestoreMirror {
	return &FirestoreMirror{client: client, collection: collection}
}

func (m *FirestoreMirror) Name() string { return "firestore" }

func (m *FirestoreMirror) Mirror(ctx context.Context, doc models.SavedDocument) error {
	_, err := m.client.Collection(m.collection).Doc(doc.ID).Create(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to create Firestore document %s: %w", doc.ID, err)
	}
	return nil
}

// Load reads every mirrored snapshot, newest first.
func (m *FirestoreMirror) Load(ctx context.Context) ([]models.SavedDocument, error) {
	iter := m.client.Collection(m.collection).OrderBy("createdAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var docs []models.SavedDocument
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list saved documents: %w", err)
		}
		var doc models.SavedDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode saved document %s: %w", snap.Ref.ID, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// GCSMirror writes the report and a JSON snapshot to a bucket.
type GCSMirror struct {
	bucket *storage.BucketHandle
	prefix string
}

func NewGCSMirror(client *storage.Client, bucket, prefix string) *GCSMirror {
	return &GCSMirror{bucket: client.Bucket(bucket), prefix: prefix}
}

func (m *GCSMirror) Name() string { return "gcs" }

func (m *GCSMirror) Mirror(ctx context.Context, doc models.SavedDocument) error {
	objects, err := ReportObjects(m.prefix, doc)
	if err != nil {
		return err
	}
	for _, obj := range objects {
		if err := gcp.SaveToGCSAtomically(ctx, m.bucket, obj.Name, obj.ContentType, obj.Content); err != nil {
			return err
		}
	}
	return nil
}

// Object is one file written for a snapshot.
type Object struct {
	Name        string
	ContentType string
	Content     []byte
}

// ReportObjects returns the markdown report and JSON snapshot for doc.
func ReportObjects(prefix string, doc models.SavedDocument) ([]Object, error) {
	snapshot, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot %s: %w", doc.ID, err)
	}
	return []Object{
		{
			Name:        path.Join(prefix, doc.ID, "report.md"),
			ContentType: "text/markdown; charset=utf-8",
			Content:     []byte(doc.GeneratedOutput),
		},
		{
			Name:        path.Join(prefix, doc.ID, "snapshot.json"),
			ContentType: "application/json",
			Content:     snapshot,
		},
	}, nil
}

// WorkflowMirror starts a workflow execution for each snapshot.
type WorkflowMirror struct {
	client *executions.Client
	parent string
}

func NewWorkflowMirror(client *executions.Client, projectID, location, workflowID string) *WorkflowMirror {
	return &WorkflowMirror{client: client, parent: gcp.WorkflowPath(projectID, location, workflowID)}
}

func (m *WorkflowMirror) Name() string { return "workflow" }

func (m *WorkflowMirror) Mirror(ctx context.Context, doc models.SavedDocument) error {
	argument, err := WorkflowArgument(doc)
	if err != nil {
		return err
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: m.parent,
		Execution: &executionspb.Execution{
			Argument: argument,
		},
	}
	if _, err := m.client.CreateExecution(ctx, req); err != nil {
		return fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	return nil
}

// WorkflowArgument is the JSON payload handed to the workflow.
func WorkflowArgument(doc models.SavedDocument) (string, error) {
	payload := map[string]interface{}{
		"savedDocumentId": doc.ID,
		"outputKind":      string(doc.OutputKind),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	return string(b), nil
}
