package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrNotConfigured is returned by the Init* helpers when their backend env var is unset.
var ErrNotConfigured = errors.New("backend not configured")

type Settings struct {
	Port       string
	OpenAIKey  string
	WebhookURL string

	RealtimeURL   string
	RealtimeModel string
	Voice         string
	Temperature   float64
	ConfigDelay   time.Duration

	SessionIdleTTL        time.Duration
	SessionMax            int
	InboxSize             int
	HangupOnUpstreamClose bool
	MediaReadTimeout      time.Duration // 0 keeps a silent media stream open

	SummarizerProvider string // openai|vertex
	SummarizerModel    string
	VertexProject      string
	VertexLocation     string
	VertexModel        string

	SystemMessage  string
	GCSBucket      string
	Greeting       string
	AdminJWTSecret string
}

const DefaultGreeting = "Hi, Welcome to Grewal Eye Institute. How can we help you today?"

// Load reads Settings from the environment. OPENAI_API_KEY is mandatory.
func Load() (*Settings, error) {
	s := &Settings{
		Port:       envOr("PORT", "3000"),
		OpenAIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		WebhookURL: strings.TrimSpace(os.Getenv("WEBHOOK_URL")),

		RealtimeURL:   envOr("OPENAI_REALTIME_URL", "wss://api.openai.com/v1/realtime"),
		RealtimeModel: envOr("OPENAI_REALTIME_MODEL", "gpt-4o-realtime-preview-2024-10-01"),
		Voice:         envOr("OPENAI_VOICE", "alloy"),
		Temperature:   envFloat("OPENAI_TEMPERATURE", 0.8),
		ConfigDelay:   envDuration("SESSION_CONFIG_DELAY", 250*time.Millisecond),

		SessionIdleTTL:        envDuration("SESSION_IDLE_TTL", 2*time.Hour),
		SessionMax:            envInt("SESSION_MAX", 0),
		InboxSize:             envInt("RELAY_INBOX_SIZE", 256),
		HangupOnUpstreamClose: envBool("RELAY_HANGUP_ON_UPSTREAM_CLOSE", false),
		MediaReadTimeout:      envDuration("MEDIA_READ_TIMEOUT", 0),

		SummarizerProvider: strings.ToLower(envOr("SUMMARIZER_PROVIDER", "openai")),
		SummarizerModel:    os.Getenv("SUMMARIZER_MODEL"),
		VertexProject:      os.Getenv("VERTEX_PROJECT"),
		VertexLocation:     envOr("VERTEX_LOCATION", "us-central1"),
		VertexModel:        os.Getenv("VERTEX_MODEL"),

		SystemMessage:  os.Getenv("SYSTEM_MESSAGE"),
		GCSBucket:      os.Getenv("GCS_BUCKET"),
		Greeting:       envOr("GREETING", DefaultGreeting),
		AdminJWTSecret: os.Getenv("ADMIN_JWT_SECRET"),
	}

	if s.OpenAIKey == "" {
		return nil, errors.New("missing OpenAI API key, please set OPENAI_API_KEY")
	}
	return s, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}
