// Package config loads service configuration from an optional YAML file
// overlaid with environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Lllllllleong/documentreviewflow/internal/gateway"
	"github.com/Lllllllleong/documentreviewflow/internal/gcp"
	"github.com/Lllllllleong/documentreviewflow/internal/retry"
)

// Backend selects the generation transport.
type Backend string

const (
	BackendREST   Backend = "rest"
	BackendGenAI  Backend = "genai"
	BackendVertex Backend = "vertex"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// MaxRetryCount bounds RETRY_COUNT. The retry delay doubles without a cap, so
// the sequence must stay short.
const MaxRetryCount = 10

// Config holds everything needed to assemble a review service.
type Config struct {
	Backend      Backend       `yaml:"backend"`
	APIKey       string        `yaml:"apiKey"`
	BaseURL      string        `yaml:"baseURL"`
	ProjectID    string        `yaml:"projectID"`
	Region       string        `yaml:"region"`
	TextModel    string        `yaml:"textModel"`
	SpeechModel  string        `yaml:"speechModel"`
	Voice        string        `yaml:"voice"`
	HTTPTimeout  time.Duration `yaml:"httpTimeout"`
	RetryCount   int           `yaml:"retryCount"`
	RetryDelay   time.Duration `yaml:"retryInitialDelay"`
	AudioPlayer  string        `yaml:"audioPlayer"`
	AudioDir     string        `yaml:"audioOutputDir"`
	Collection   string        `yaml:"firestoreCollection"`
	ReportBucket string        `yaml:"reportsBucket"`
	WorkflowID   string        `yaml:"workflowID"`
	WorkflowLoc  string        `yaml:"workflowLocation"`
	EventsTarget string        `yaml:"eventsTarget"`
	EventsSource string        `yaml:"eventsSource"`
	SessionTTL   time.Duration `yaml:"sessionTTL"`
	Port         string        `yaml:"port"`
	LogLevel     string        `yaml:"logLevel"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend:     BackendREST,
		BaseURL:     gateway.DefaultBaseURL,
		Region:      "us-central1",
		TextModel:   gateway.DefaultTextModel,
		SpeechModel: gateway.DefaultSpeechModel,
		Voice:       gateway.DefaultVoice,
		HTTPTimeout: 60 * time.Second,
		RetryCount:  retry.DefaultRetries,
		RetryDelay:  retry.DefaultInitialDelay,
		WorkflowLoc: "us-central1",
		SessionTTL:  time.Hour,
		Port:        "8080",
		LogLevel:    "INFO",
	}
}

// Load reads path (if non-empty), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Backend = Backend(strings.ToLower(gcp.GetEnv("GATEWAY_BACKEND", string(c.Backend))))
	c.APIKey = gcp.GetEnv("GEMINI_API_KEY", c.APIKey)
	c.BaseURL = gcp.GetEnv("GEMINI_BASE_URL", c.BaseURL)
	c.ProjectID = gcp.GetEnv("PROJECT_ID", c.ProjectID)
	c.Region = gcp.GetEnv("VERTEX_AI_REGION", c.Region)
	c.TextModel = gcp.GetEnv("TEXT_MODEL", c.TextModel)
	c.SpeechModel = gcp.GetEnv("SPEECH_MODEL", c.SpeechModel)
	c.Voice = gcp.GetEnv("SPEECH_VOICE", c.Voice)
	c.AudioPlayer = gcp.GetEnv("AUDIO_PLAYER", c.AudioPlayer)
	c.AudioDir = gcp.GetEnv("AUDIO_OUTPUT_DIR", c.AudioDir)
	c.Collection = gcp.GetEnv("FIRESTORE_COLLECTION", c.Collection)
	c.ReportBucket = gcp.GetEnv("REPORTS_BUCKET", c.ReportBucket)
	c.WorkflowID = gcp.GetEnv("WORKFLOW_ID", c.WorkflowID)
	c.WorkflowLoc = gcp.GetEnv("WORKFLOW_LOCATION", c.WorkflowLoc)
	c.EventsTarget = gcp.GetEnv("EVENTS_TARGET", c.EventsTarget)
	c.EventsSource = gcp.GetEnv("EVENTS_SOURCE", c.EventsSource)
	c.Port = gcp.GetEnv("PORT", c.Port)
	c.LogLevel = gcp.GetEnv("LOG_LEVEL", c.LogLevel)

	var err error
	if c.HTTPTimeout, err = envDuration("HTTP_TIMEOUT", c.HTTPTimeout); err != nil {
		return err
	}
	if c.RetryDelay, err = envDuration("RETRY_INITIAL_DELAY", c.RetryDelay); err != nil {
		return err
	}
	if c.SessionTTL, err = envDuration("SESSION_TTL", c.SessionTTL); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("RETRY_COUNT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: RETRY_COUNT %q: %v", ErrInvalid, v, err)
		}
		c.RetryCount = n
	}
	return nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %v", ErrInvalid, key, v, err)
	}
	return d, nil
}

// Validate checks backend credentials and numeric bounds.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendREST:
		if c.APIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY is required for the rest backend", ErrInvalid)
		}
	case BackendGenAI:
		if c.APIKey == "" && c.ProjectID == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY or PROJECT_ID is required for the genai backend", ErrInvalid)
		}
	case BackendVertex:
		if c.ProjectID == "" || c.Region == "" {
			return fmt.Errorf("%w: PROJECT_ID and VERTEX_AI_REGION are required for the vertex backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Backend)
	}
	if c.RetryCount < 0 || c.RetryCount > MaxRetryCount {
		return fmt.Errorf("%w: retry count must be between 0 and %d", ErrInvalid, MaxRetryCount)
	}
	if c.RetryDelay < 0 || c.HTTPTimeout < 0 || c.SessionTTL < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalid)
	}
	if (c.Collection != "" || c.ReportBucket != "" || c.WorkflowID != "") && c.ProjectID == "" {
		return fmt.Errorf("%w: PROJECT_ID is required when archive mirrors are configured", ErrInvalid)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// RetryPolicy converts the retry settings.
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{Retries: c.RetryCount, InitialDelay: c.RetryDelay}
}

// GatewayConfig converts the model settings.
func (c Config) GatewayConfig() gateway.Config {
	return gateway.Config{
		TextModel:   c.TextModel,
		SpeechModel: c.SpeechModel,
		Voice:       c.Voice,
		Retry:       c.RetryPolicy(),
	}
}

// PlayerCommand splits AudioPlayer into argv, or nil when unset.
func (c Config) PlayerCommand() []string {
	return strings.Fields(c.AudioPlayer)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("%w: log level %q", ErrInvalid, c.LogLevel)
	}
	return level, nil
}
