package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every key Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GATEWAY_BACKEND", "GEMINI_API_KEY", "GEMINI_BASE_URL", "PROJECT_ID",
		"VERTEX_AI_REGION", "TEXT_MODEL", "SPEECH_MODEL", "SPEECH_VOICE",
		"HTTP_TIMEOUT", "RETRY_COUNT", "RETRY_INITIAL_DELAY", "AUDIO_PLAYER",
		"AUDIO_OUTPUT_DIR", "FIRESTORE_COLLECTION", "REPORTS_BUCKET", "WORKFLOW_ID",
		"WORKFLOW_LOCATION", "EVENTS_TARGET", "EVENTS_SOURCE", "SESSION_TTL", "PORT", "LOG_LEVEL",
	} {
		if v, ok := os.LookupEnv(key); ok {
			require.NoError(t, os.Unsetenv(key))
			t.Cleanup(func() { _ = os.Setenv(key, v) })
		}
	}
}

func TestLoadDefaultsWithEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "k")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendREST, cfg.Backend)
	assert.Equal(t, "k", cfg.APIKey)
	assert.Equal(t, 5, cfg.RetryCount)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.Equal(t, "Kore", cfg.Voice)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, time.Hour, cfg.SessionTTL)

	policy := cfg.RetryPolicy()
	assert.Equal(t, 5, policy.Retries)
	assert.Equal(t, time.Second, policy.InitialDelay)
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "review.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: genai
apiKey: from-file
voice: Puck
retryCount: 2
retryInitialDelay: 250ms
audioPlayer: "aplay -q"
logLevel: debug
`), 0o600))
	t.Setenv("SPEECH_VOICE", "Kore")
	t.Setenv("RETRY_COUNT", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendGenAI, cfg.Backend)
	assert.Equal(t, "from-file", cfg.APIKey)
	assert.Equal(t, "Kore", cfg.Voice)
	assert.Equal(t, 3, cfg.RetryCount)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, []string{"aplay", "-q"}, cfg.PlayerCommand())

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	gw := cfg.GatewayConfig()
	assert.Equal(t, "Kore", gw.Voice)
	assert.Equal(t, 3, gw.Retry.Retries)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "rest without key", env: map[string]string{}},
		{name: "vertex without project", env: map[string]string{"GATEWAY_BACKEND": "vertex"}},
		{name: "unknown backend", env: map[string]string{"GATEWAY_BACKEND": "grpc", "GEMINI_API_KEY": "k"}},
		{name: "bad retry count", env: map[string]string{"GEMINI_API_KEY": "k", "RETRY_COUNT": "many"}},
		{name: "negative retry count", env: map[string]string{"GEMINI_API_KEY": "k", "RETRY_COUNT": "-1"}},
		{name: "retry count above cap", env: map[string]string{"GEMINI_API_KEY": "k", "RETRY_COUNT": "40"}},
		{name: "bad duration", env: map[string]string{"GEMINI_API_KEY": "k", "HTTP_TIMEOUT": "soon"}},
		{name: "negative session ttl", env: map[string]string{"GEMINI_API_KEY": "k", "SESSION_TTL": "-1m"}},
		{name: "mirror without project", env: map[string]string{"GEMINI_API_KEY": "k", "REPORTS_BUCKET": "b"}},
		{name: "bad log level", env: map[string]string{"GEMINI_API_KEY": "k", "LOG_LEVEL": "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRetryCountAtCap(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("RETRY_COUNT", "10")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, MaxRetryCount, cfg.RetryPolicy().Retries)
}
