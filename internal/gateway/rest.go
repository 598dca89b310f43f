package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	defaultHTTPTimeout = 5 * time.Minute
	maxErrorBody       = 2048
)

// RESTTransport calls the generateContent REST endpoint directly.
type RESTTransport struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewRESTTransport creates a transport. An empty baseURL selects the public
// Gemini endpoint; a nil client gets a default timeout.
func NewRESTTransport(apiKey, baseURL string, client *http.Client) *RESTTransport {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &RESTTransport{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

type restPart struct {
	Text string `json:"text"`
}

type restContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []restPart `json:"parts"`
}

type restPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type restVoiceConfig struct {
	PrebuiltVoiceConfig restPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type restSpeechConfig struct {
	VoiceConfig restVoiceConfig `json:"voiceConfig"`
}

type restGenerationConfig struct {
	ResponseMIMEType   string            `json:"responseMimeType,omitempty"`
	ResponseSchema     *Schema           `json:"responseSchema,omitempty"`
	ResponseModalities []string          `json:"responseModalities,omitempty"`
	SpeechConfig       *restSpeechConfig `json:"speechConfig,omitempty"`
}

type restRequest struct {
	Contents         []restContent         `json:"contents"`
	GenerationConfig *restGenerationConfig `json:"generationConfig,omitempty"`
}

type restResponse struct {
	Candidates []struct {
		Content struct {
			Parts []Part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// buildRESTRequest maps a Request onto the wire body.
func buildRESTRequest(req *Request) restRequest {
	body := restRequest{
		Contents: []restContent{{Role: "user", Parts: []restPart{{Text: req.Prompt}}}},
	}
	switch {
	case req.Modality == ModalityAudio:
		body.GenerationConfig = &restGenerationConfig{
			ResponseModalities: []string{string(ModalityAudio)},
			SpeechConfig: &restSpeechConfig{
				VoiceConfig: restVoiceConfig{PrebuiltVoiceConfig: restPrebuiltVoice{VoiceName: req.Voice}},
			},
		}
	case req.Structured():
		body.GenerationConfig = &restGenerationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   req.Schema,
		}
	}
	return body
}

// GenerateContent posts req. Network failures and non-2xx statuses are
// errors; a 2xx body that does not decode yields an empty Response.
func (t *RESTTransport) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(buildRESTRequest(req)); err != nil {
		return nil, fmt.Errorf("encode generateContent payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", t.baseURL, url.PathEscape(req.Model))
	if t.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(t.apiKey)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, buf)
	if err != nil {
		return nil, fmt.Errorf("create generateContent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generateContent request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("API call failed with status: %d body %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read generateContent response: %w", err)
	}
	var decoded restResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		slog.Warn("Undecodable generateContent response body", "error", err, "model", req.Model)
		return &Response{}, nil
	}
	if len(decoded.Candidates) == 0 {
		return &Response{}, nil
	}
	return &Response{Parts: decoded.Candidates[0].Content.Parts}, nil
}
