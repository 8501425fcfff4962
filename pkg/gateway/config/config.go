package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	MaxBodyBytes int64

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Upstream realtime service.
	UpstreamBaseURL string
	// Server-held upstream credential; callers may override per session.
	OpenAIAPIKey string
	DefaultModel string
	DefaultVoice string

	// Session engine.
	SessionStartTimeout time.Duration
	CommitSettleDelay   time.Duration
	SubscriberBuffer    int
	SessionIdleTimeout  time.Duration
	SessionReapInterval time.Duration

	// Subscriber WebSocket feed.
	WSWriteTimeout time.Duration
	WSPingInterval time.Duration

	// Paper catalog backend.
	ArxivBaseURL string

	// In-memory limits (per caller).
	LimitRPS                   float64
	LimitBurst                 int
	LimitMaxConcurrentRequests int
	LimitMaxConcurrentFeeds    int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                       envOr("STUDIO_ADDR", ":8080"),
		AuthMode:                   AuthMode(envOr("STUDIO_AUTH_MODE", string(AuthModeDisabled))),
		APIKeys:                    make(map[string]struct{}),
		MaxBodyBytes:               envInt64Or("STUDIO_MAX_BODY_BYTES", 1<<20), // 1 MiB
		CORSAllowedOrigins:         make(map[string]struct{}),
		UpstreamBaseURL:            envOr("STUDIO_UPSTREAM_BASE_URL", "wss://api.openai.com/v1/realtime"),
		OpenAIAPIKey:               strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		DefaultModel:               envOr("STUDIO_DEFAULT_MODEL", "gpt-4o-realtime-preview-2024-10-01"),
		DefaultVoice:               envOr("STUDIO_DEFAULT_VOICE", "alloy"),
		SessionStartTimeout:        envDurationOr("STUDIO_SESSION_START_TIMEOUT", 10*time.Second),
		CommitSettleDelay:          envDurationOr("STUDIO_COMMIT_SETTLE_DELAY", 250*time.Millisecond),
		SubscriberBuffer:           envIntOr("STUDIO_SUBSCRIBER_BUFFER", 256),
		SessionIdleTimeout:         envDurationOr("STUDIO_SESSION_IDLE_TIMEOUT", 5*time.Minute),
		SessionReapInterval:        envDurationOr("STUDIO_SESSION_REAP_INTERVAL", 30*time.Second),
		WSWriteTimeout:             envDurationOr("STUDIO_WS_WRITE_TIMEOUT", 5*time.Second),
		WSPingInterval:             envDurationOr("STUDIO_WS_PING_INTERVAL", 20*time.Second),
		ArxivBaseURL:               envOr("STUDIO_ARXIV_BASE_URL", "http://export.arxiv.org/api/query"),
		LimitRPS:                   envFloat64Or("STUDIO_RATE_LIMIT_RPS", 0),
		LimitBurst:                 envIntOr("STUDIO_RATE_LIMIT_BURST", 0),
		LimitMaxConcurrentRequests: envIntOr("STUDIO_MAX_CONCURRENT_REQUESTS", 0),
		LimitMaxConcurrentFeeds:    envIntOr("STUDIO_MAX_FEEDS_PER_CALLER", 8),
		ReadHeaderTimeout:          envDurationOr("STUDIO_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:                envDurationOr("STUDIO_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod:        envDurationOr("STUDIO_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("STUDIO_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("STUDIO_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}

	for _, origin := range splitCSV(os.Getenv("STUDIO_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("STUDIO_MAX_BODY_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.UpstreamBaseURL) == "" {
		return Config{}, fmt.Errorf("STUDIO_UPSTREAM_BASE_URL must not be empty")
	}
	if strings.TrimSpace(cfg.DefaultModel) == "" {
		return Config{}, fmt.Errorf("STUDIO_DEFAULT_MODEL must not be empty")
	}
	if cfg.SessionStartTimeout <= 0 {
		return Config{}, fmt.Errorf("STUDIO_SESSION_START_TIMEOUT must be > 0")
	}
	if cfg.CommitSettleDelay <= 0 {
		return Config{}, fmt.Errorf("STUDIO_COMMIT_SETTLE_DELAY must be > 0")
	}
	if cfg.SubscriberBuffer <= 0 {
		return Config{}, fmt.Errorf("STUDIO_SUBSCRIBER_BUFFER must be > 0")
	}
	if cfg.SessionIdleTimeout <= 0 {
		return Config{}, fmt.Errorf("STUDIO_SESSION_IDLE_TIMEOUT must be > 0")
	}
	if cfg.SessionReapInterval <= 0 {
		return Config{}, fmt.Errorf("STUDIO_SESSION_REAP_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("STUDIO_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("STUDIO_WS_PING_INTERVAL must be > 0")
	}
	if strings.TrimSpace(cfg.ArxivBaseURL) == "" {
		return Config{}, fmt.Errorf("STUDIO_ARXIV_BASE_URL must not be empty")
	}
	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("STUDIO_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("STUDIO_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.LimitMaxConcurrentRequests < 0 {
		return Config{}, fmt.Errorf("STUDIO_MAX_CONCURRENT_REQUESTS must be >= 0")
	}
	if cfg.LimitMaxConcurrentFeeds < 0 {
		return Config{}, fmt.Errorf("STUDIO_MAX_FEEDS_PER_CALLER must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("STUDIO_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("STUDIO_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("STUDIO_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("STUDIO_API_KEYS must be set when STUDIO_AUTH_MODE=required")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
