package gateway

import (
	"context"
	"errors"
)

// Sentinel errors for gateway operations.
var (
	// ErrEmptyResult means the service answered successfully but without a
	// usable payload. It is never retried.
	ErrEmptyResult = errors.New("could not produce result")
	// ErrUnsupported means the configured transport cannot serve the request.
	ErrUnsupported = errors.New("request not supported by transport")
)

// Modality selects what the model should respond with.
type Modality string

const (
	ModalityText  Modality = "TEXT"
	ModalityAudio Modality = "AUDIO"
)

// Request is one transport-neutral call to the generation service.
type Request struct {
	Model    string
	Prompt   string
	Schema   *Schema
	Modality Modality
	Voice    string
}

// Structured reports whether the request asks for constrained JSON output.
func (r *Request) Structured() bool {
	return r.Schema != nil
}

// Response holds the parts of the first candidate returned by the service.
type Response struct {
	Parts []Part
}

// Part is a text or inline-data part of a candidate.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData carries base64 encoded bytes and their MIME type.
type InlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Transport performs a single call. A returned error is a transport failure
// and will be retried; a nil error with an empty or malformed Response is
// surfaced as ErrEmptyResult by the Gateway.
type Transport interface {
	GenerateContent(ctx context.Context, req *Request) (*Response, error)
}

// ModalityChecker is implemented by transports that can only serve some
// modalities.
type ModalityChecker interface {
	SupportsModality(m Modality) bool
}

func (r *Response) firstPart() (Part, bool) {
	if r == nil || len(r.Parts) == 0 {
		return Part{}, false
	}
	return r.Parts[0], true
}
