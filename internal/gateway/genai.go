package gateway

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/genai"
)

// GenAIConfig configures the Gen AI SDK transport. With ProjectID set the
// Vertex AI backend is used, otherwise the Gemini API with APIKey.
type GenAIConfig struct {
	APIKey    string
	ProjectID string
	Location  string
	BaseURL   string
}

// GenAITransport serves every request shape through google.golang.org/genai.
type GenAITransport struct {
	client *genai.Client
}

// NewGenAITransport creates the SDK client.
func NewGenAITransport(ctx context.Context, cfg GenAIConfig) (*GenAITransport, error) {
	cc := &genai.ClientConfig{}
	switch {
	case cfg.ProjectID != "":
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.ProjectID
		cc.Location = cfg.Location
	case cfg.APIKey != "":
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	default:
		return nil, fmt.Errorf("NewGenAITransport: an API key or project ID is required")
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAITransport{client: client}, nil
}

// GenerateContent implements Transport.
func (t *GenAITransport) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	resp, err := t.client.Models.GenerateContent(ctx, req.Model, contents, genAIConfig(req))
	if err != nil {
		return nil, fmt.Errorf("GenAI generate content failed: %w", err)
	}
	return fromGenAIResponse(resp), nil
}

func genAIConfig(req *Request) *genai.GenerateContentConfig {
	switch {
	case req.Modality == ModalityAudio:
		return &genai.GenerateContentConfig{
			ResponseModalities: []string{string(ModalityAudio)},
			SpeechConfig: &genai.SpeechConfig{
				VoiceConfig: &genai.VoiceConfig{
					PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: req.Voice},
				},
			},
		}
	case req.Structured():
		return &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   toGenAISchema(req.Schema),
		}
	}
	return nil
}

func toGenAISchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:             genai.Type(s.Type),
		Items:            toGenAISchema(s.Items),
		Required:         s.Required,
		PropertyOrdering: s.PropertyOrdering,
	}
	if s.Nullable {
		out.Nullable = genai.Ptr(true)
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenAISchema(prop)
		}
	}
	return out
}

// fromGenAIResponse keeps the first candidate's parts. The SDK has already
// decoded inline data, so it is re-encoded to match the REST shape.
func fromGenAIResponse(resp *genai.GenerateContentResponse) *Response {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return &Response{}
	}
	var parts []Part
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil {
			continue
		}
		part := Part{Text: p.Text}
		if p.InlineData != nil {
			part.InlineData = &InlineData{
				MIMEType: p.InlineData.MIMEType,
				Data:     base64.StdEncoding.EncodeToString(p.InlineData.Data),
			}
		}
		parts = append(parts, part)
	}
	return &Response{Parts: parts}
}
