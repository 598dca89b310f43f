package gcp

import (
	"context"
	"encoding/base64"
	"fmt"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/documentreviewflow/internal/gateway"
)

// VertexClient serves text and JSON generation through the Vertex AI SDK.
// Speech synthesis is not available on this backend.
type VertexClient struct {
	baseClient *genai.Client
}

// NewVertexClient creates the Vertex AI client for a project and region.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &VertexClient{baseClient: baseClient}, nil
}

// SupportsModality implements gateway.ModalityChecker.
func (c *VertexClient) SupportsModality(m gateway.Modality) bool {
	return m == gateway.ModalityText
}

// GenerateContent implements gateway.Transport.
func (c *VertexClient) GenerateContent(ctx context.Context, req *gateway.Request) (*gateway.Response, error) {
	if !c.SupportsModality(req.Modality) {
		return nil, fmt.Errorf("vertex: modality %s: %w", req.Modality, gateway.ErrUnsupported)
	}

	model := c.baseClient.GenerativeModel(req.Model)
	if req.Structured() {
		model.GenerationConfig = genai.GenerationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   toVertexSchema(req.Schema),
			Temperature:      genai.Ptr[float32](0.0),
		}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return nil, fmt.Errorf("vertex generate content failed: %w", err)
	}
	return fromVertexResponse(resp), nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

func toVertexSchema(s *gateway.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:     vertexType(s.Type),
		Items:    toVertexSchema(s.Items),
		Required: s.Required,
		Nullable: s.Nullable,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toVertexSchema(prop)
		}
	}
	return out
}

func vertexType(t gateway.Type) genai.Type {
	switch t {
	case gateway.TypeObject:
		return genai.TypeObject
	case gateway.TypeArray:
		return genai.TypeArray
	case gateway.TypeString:
		return genai.TypeString
	}
	return genai.TypeUnspecified
}

func fromVertexResponse(resp *genai.GenerateContentResponse) *gateway.Response {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return &gateway.Response{}
	}
	var parts []gateway.Part
	for _, p := range resp.Candidates[0].Content.Parts {
		switch v := p.(type) {
		case genai.Text:
			parts = append(parts, gateway.Part{Text: string(v)})
		case genai.Blob:
			parts = append(parts, gateway.Part{InlineData: &gateway.InlineData{
				MIMEType: v.MIMEType,
				Data:     base64.StdEncoding.EncodeToString(v.Data),
			}})
		}
	}
	return &gateway.Response{Parts: parts}
}
