// Package gateway is the typed boundary to the external generation service.
// Every call goes through the retry controller; only transport failures are
// retried.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/documentreviewflow/internal/models"
	"github.com/Lllllllleong/documentreviewflow/internal/retry"
)

const (
	DefaultTextModel   = "gemini-2.5-flash-preview-05-20"
	DefaultSpeechModel = "gemini-2.5-flash-preview-tts"
	DefaultVoice       = "Kore"
)

// Config selects models and the retry budget.
type Config struct {
	TextModel   string
	SpeechModel string
	Voice       string
	Retry       retry.Policy
}

// Speech is a synthesized clip: base64 linear PCM plus its MIME descriptor.
type Speech struct {
	Data     string
	MIMEType string
}

// Gateway translates domain requests into calls on a Transport.
type Gateway struct {
	transport Transport
	config    Config
	logger    *slog.Logger
}

// New creates a Gateway. Empty config fields fall back to the defaults.
func New(transport Transport, cfg Config) *Gateway {
	if cfg.TextModel == "" {
		cfg.TextModel = DefaultTextModel
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = DefaultSpeechModel
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	logger := cfg.Retry.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{transport: transport, config: cfg, logger: logger}
}

// Extract turns free text into an ExtractedDocument.
func (g *Gateway) Extract(ctx context.Context, text string) (*models.ExtractedDocument, error) {
	req := &Request{
		Model:    g.config.TextModel,
		Prompt:   ExtractionPrompt + text,
		Schema:   ExtractionSchema(),
		Modality: ModalityText,
	}
	payload, err := g.text(ctx, "extract", req)
	if err != nil {
		return nil, err
	}
	var doc *models.ExtractedDocument
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		g.logger.Error("Failed to unmarshal extraction JSON", "error", err, "responseBody", payload)
		return nil, fmt.Errorf("extract: %w: %v", ErrEmptyResult, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("extract: %w: null document", ErrEmptyResult)
	}
	return doc, nil
}

// Generate returns free text for prompt.
func (g *Gateway) Generate(ctx context.Context, prompt string) (string, error) {
	return g.text(ctx, "generate", &Request{
		Model:    g.config.TextModel,
		Prompt:   prompt,
		Modality: ModalityText,
	})
}

// populatePayload mirrors PopulateSchema; null fields stay nil.
type populatePayload struct {
	Title   *string `json:"title"`
	Number  *string `json:"number"`
	Summary *string `json:"summary"`
	Tests   *string `json:"tests"`
}

// Populate turns free text into reference draft fields. Null fields become "".
func (g *Gateway) Populate(ctx context.Context, text string) (*models.ReferenceDraft, error) {
	req := &Request{
		Model:    g.config.TextModel,
		Prompt:   PopulatePrompt + text,
		Schema:   PopulateSchema(),
		Modality: ModalityText,
	}
	payload, err := g.text(ctx, "populate", req)
	if err != nil {
		return nil, err
	}
	var p *populatePayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		g.logger.Error("Failed to unmarshal populate JSON", "error", err, "responseBody", payload)
		return nil, fmt.Errorf("populate: %w: %v", ErrEmptyResult, err)
	}
	if p == nil {
		return nil, fmt.Errorf("populate: %w: null draft", ErrEmptyResult)
	}
	return &models.ReferenceDraft{
		Title:   models.Deref(p.Title),
		Number:  models.Deref(p.Number),
		Summary: models.Deref(p.Summary),
		Tests:   models.Deref(p.Tests),
	}, nil
}

// Synthesize asks the speech model to read text aloud.
func (g *Gateway) Synthesize(ctx context.Context, text string) (*Speech, error) {
	req := &Request{
		Model:    g.config.SpeechModel,
		Prompt:   SpeechPrompt + text,
		Modality: ModalityAudio,
		Voice:    g.config.Voice,
	}
	resp, err := g.call(ctx, "synthesize", req)
	if err != nil {
		return nil, err
	}
	part, ok := resp.firstPart()
	if !ok || part.InlineData == nil || part.InlineData.Data == "" || part.InlineData.MIMEType == "" {
		return nil, fmt.Errorf("synthesize: %w: no audio data in response", ErrEmptyResult)
	}
	return &Speech{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}, nil
}

// text runs req and returns the first part's text, stripped of code fences.
func (g *Gateway) text(ctx context.Context, op string, req *Request) (string, error) {
	resp, err := g.call(ctx, op, req)
	if err != nil {
		return "", err
	}
	part, ok := resp.firstPart()
	if !ok || strings.TrimSpace(part.Text) == "" {
		return "", fmt.Errorf("%s: %w: no text in response", op, ErrEmptyResult)
	}
	if req.Structured() {
		return stripFences(part.Text), nil
	}
	return part.Text, nil
}

func (g *Gateway) call(ctx context.Context, op string, req *Request) (*Response, error) {
	if mc, ok := g.transport.(ModalityChecker); ok && !mc.SupportsModality(req.Modality) {
		return nil, fmt.Errorf("%s: %w: modality %s", op, ErrUnsupported, req.Modality)
	}
	logCtx := g.logger.With("operation", op, "model", req.Model)
	resp, err := retry.Do(ctx, g.config.Retry, func(ctx context.Context) (*Response, error) {
		return g.transport.GenerateContent(ctx, req)
	})
	if err != nil {
		logCtx.Error("Call to generation service failed", "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return resp, nil
}

// stripFences removes a surrounding ```json fence some models still emit.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
