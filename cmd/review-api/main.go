package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/joho/godotenv"

	"github.com/Lllllllleong/documentreviewflow/internal/api"
	"github.com/Lllllllleong/documentreviewflow/internal/services"
)

var (
	reviewInstance *services.ReviewService
	handler        http.Handler
	once           sync.Once
	initErr        error
)

func init() {
	_ = godotenv.Load()

	level := slog.LevelInfo
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			level = slog.LevelInfo
		}
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// "HandleReview" and "ReviewUploadedDocument" are the entry point names configured in GCP.
	functions.HTTP("HandleReview", handleReview)
	functions.CloudEvent("ReviewUploadedDocument", reviewUploadedDocument)
}

// setup creates the shared review service exactly once per instance.
func setup() error {
	once.Do(func() {
		reviewInstance, initErr = services.NewReview(context.Background(), os.Getenv("REVIEW_CONFIG"))
		if initErr == nil {
			handler = api.NewHandler(reviewInstance)
		}
	})
	return initErr
}

func handleReview(w http.ResponseWriter, r *http.Request) {
	if err := setup(); err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	handler.ServeHTTP(w, r)
}

func reviewUploadedDocument(ctx context.Context, e cloudevents.Event) error {
	if err := setup(); err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		return err
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// The error is already logged with context within ProcessUpload.
	_, err := reviewInstance.ProcessUpload(ctx, gcsEvent)
	return err
}

// main serves both functions locally. Deployed instances are started by the
// framework and never reach it.
func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := funcframework.Start(port); err != nil {
		slog.Error("funcframework.Start failed", "error", err)
		os.Exit(1)
	}
}
