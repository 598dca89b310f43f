package gcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/Lllllllleong/documentreviewflow/internal/gateway"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("REVIEW_TEST_SET", "")
	assert.Equal(t, "", GetEnv("REVIEW_TEST_SET", "fallback"), "set but empty wins over the fallback")
	assert.Equal(t, "fallback", GetEnv("REVIEW_TEST_UNSET_VARIABLE", "fallback"))
}

func TestIsPreconditionFailed(t *testing.T) {
	wrapped := fmt.Errorf("close: %w", &googleapi.Error{Code: http.StatusPreconditionFailed})
	assert.True(t, isPreconditionFailed(wrapped))
	assert.False(t, isPreconditionFailed(&googleapi.Error{Code: http.StatusForbidden}))
	assert.False(t, isPreconditionFailed(errors.New("boom")))
}

func TestVertexRejectsSpeech(t *testing.T) {
	c := &VertexClient{}
	assert.True(t, c.SupportsModality(gateway.ModalityText))
	_, err := c.GenerateContent(context.Background(), &gateway.Request{Modality: gateway.ModalityAudio})
	assert.ErrorIs(t, err, gateway.ErrUnsupported)
	assert.NoError(t, c.Close())
}

func TestNewVertexClientRequiresProject(t *testing.T) {
	_, err := NewVertexClient(context.Background(), "", "us-central1")
	assert.Error(t, err)
}

func TestToVertexSchema(t *testing.T) {
	s := toVertexSchema(gateway.ExtractionSchema())
	require.NotNil(t, s)
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.ElementsMatch(t, []string{"document_title", "document_number", "revision_date", "summary", "tests"}, s.Required)

	title := s.Properties["document_title"]
	require.NotNil(t, title)
	assert.Equal(t, genai.TypeString, title.Type)
	assert.True(t, title.Nullable)

	tests := s.Properties["tests"]
	require.NotNil(t, tests)
	assert.Equal(t, genai.TypeArray, tests.Type)
	assert.Equal(t, genai.TypeObject, tests.Items.Type)
	assert.Nil(t, toVertexSchema(nil))
}

func TestFromVertexResponse(t *testing.T) {
	assert.Empty(t, fromVertexResponse(nil).Parts)
	assert.Empty(t, fromVertexResponse(&genai.GenerateContentResponse{}).Parts)

	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{
			genai.Text("# Report"),
			genai.Blob{MIMEType: "audio/L16;rate=24000", Data: []byte{1, 2}},
		}},
	}}}
	out := fromVertexResponse(resp)
	require.Len(t, out.Parts, 2)
	assert.Equal(t, "# Report", out.Parts[0].Text)
	require.NotNil(t, out.Parts[1].InlineData)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{1, 2}), out.Parts[1].InlineData.Data)
}
