// Package config loads gateway configuration from the environment.
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

	// Telephony provider
	TelnyxAPIKey       string
	TelnyxConnectionID string
	FromNumber         string
	TransferNumber     string

	// PublicBaseURL is the externally reachable base of this server,
	// used for webhook and audio URLs handed to the provider.
	PublicBaseURL string

	AMDTimeout time.Duration

	// Voicemail synthesis
	ElevenLabsAPIKey string
	AudioDir         string

	// Persistence
	DBPath string

	// Daily report (disabled when SMTPHost is empty)
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	ReportFrom       string
	ReportRecipients []string
	ReportHour       int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("DIALDROP_ADDR", ":8080"),
		AuthMode:            AuthMode(envOr("DIALDROP_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:             make(map[string]struct{}),
		MaxBodyBytes:        envInt64Or("DIALDROP_MAX_BODY_BYTES", 8<<20), // 8 MiB
		CORSAllowedOrigins:  make(map[string]struct{}),
		TelnyxAPIKey:        envOr("DIALDROP_TELNYX_API_KEY", ""),
		TelnyxConnectionID:  envOr("DIALDROP_TELNYX_CONNECTION_ID", ""),
		FromNumber:          envOr("DIALDROP_FROM_NUMBER", ""),
		TransferNumber:      envOr("DIALDROP_TRANSFER_NUMBER", ""),
		PublicBaseURL:       envOr("DIALDROP_PUBLIC_BASE_URL", ""),
		AMDTimeout:          envDurationOr("DIALDROP_AMD_TIMEOUT", 8*time.Second),
		ElevenLabsAPIKey:    envOr("DIALDROP_ELEVENLABS_API_KEY", ""),
		AudioDir:            envOr("DIALDROP_AUDIO_DIR", "./audio"),
		DBPath:              envOr("DIALDROP_DB_PATH", "./dialdrop.db"),
		SMTPHost:            envOr("DIALDROP_SMTP_HOST", ""),
		SMTPPort:            envIntOr("DIALDROP_SMTP_PORT", 587),
		SMTPUsername:        envOr("DIALDROP_SMTP_USERNAME", ""),
		SMTPPassword:        envOr("DIALDROP_SMTP_PASSWORD", ""),
		ReportFrom:          envOr("DIALDROP_REPORT_FROM", ""),
		ReportHour:          envIntOr("DIALDROP_REPORT_HOUR", 18),
		ReadHeaderTimeout:   envDurationOr("DIALDROP_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:         envDurationOr("DIALDROP_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod: envDurationOr("DIALDROP_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("DIALDROP_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("DIALDROP_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}
	for _, origin := range splitCSV(os.Getenv("DIALDROP_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}
	cfg.ReportRecipients = splitCSV(os.Getenv("DIALDROP_REPORT_RECIPIENTS"))

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("DIALDROP_API_KEYS must be set when DIALDROP_AUTH_MODE=required")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("DIALDROP_MAX_BODY_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.TelnyxAPIKey) == "" {
		return Config{}, fmt.Errorf("DIALDROP_TELNYX_API_KEY must be set")
	}
	if strings.TrimSpace(cfg.TelnyxConnectionID) == "" {
		return Config{}, fmt.Errorf("DIALDROP_TELNYX_CONNECTION_ID must be set")
	}
	if strings.TrimSpace(cfg.FromNumber) == "" {
		return Config{}, fmt.Errorf("DIALDROP_FROM_NUMBER must be set")
	}
	if strings.TrimSpace(cfg.PublicBaseURL) == "" {
		return Config{}, fmt.Errorf("DIALDROP_PUBLIC_BASE_URL must be set")
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	if strings.TrimSpace(cfg.DBPath) == "" {
		return Config{}, fmt.Errorf("DIALDROP_DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.AudioDir) == "" {
		return Config{}, fmt.Errorf("DIALDROP_AUDIO_DIR must not be empty")
	}
	if cfg.AMDTimeout <= 0 {
		return Config{}, fmt.Errorf("DIALDROP_AMD_TIMEOUT must be > 0")
	}
	if cfg.ReportHour < 0 || cfg.ReportHour > 23 {
		return Config{}, fmt.Errorf("DIALDROP_REPORT_HOUR must be between 0 and 23")
	}
	if cfg.SMTPHost != "" {
		if cfg.SMTPPort <= 0 || cfg.SMTPPort > 65535 {
			return Config{}, fmt.Errorf("DIALDROP_SMTP_PORT must be a valid port")
		}
		if strings.TrimSpace(cfg.ReportFrom) == "" {
			return Config{}, fmt.Errorf("DIALDROP_REPORT_FROM must be set when DIALDROP_SMTP_HOST is set")
		}
		if len(cfg.ReportRecipients) == 0 {
			return Config{}, fmt.Errorf("DIALDROP_REPORT_RECIPIENTS must be set when DIALDROP_SMTP_HOST is set")
		}
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("DIALDROP_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("DIALDROP_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("DIALDROP_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

// WebhookURL is the provider callback endpoint derived from the public
// base URL.
func (c Config) WebhookURL() string {
	return c.PublicBaseURL + "/webhook"
}

// AudioBaseURL is the public root of generated voicemail audio.
func (c Config) AudioBaseURL() string {
	return c.PublicBaseURL + "/audio"
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
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
