package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DIALDROP_TELNYX_API_KEY", "key")
	t.Setenv("DIALDROP_TELNYX_CONNECTION_ID", "conn-1")
	t.Setenv("DIALDROP_FROM_NUMBER", "+15550000001")
	t.Setenv("DIALDROP_PUBLIC_BASE_URL", "https://dialer.example.com/")
	t.Setenv("DIALDROP_API_KEYS", "admin-key")
}

func TestLoadFromEnvDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.AuthMode != AuthModeRequired {
		t.Fatalf("AuthMode = %q, want required", cfg.AuthMode)
	}
	if cfg.AMDTimeout != 8*time.Second {
		t.Fatalf("AMDTimeout = %v, want 8s", cfg.AMDTimeout)
	}
	if cfg.WebhookURL() != "https://dialer.example.com/webhook" {
		t.Fatalf("WebhookURL = %q", cfg.WebhookURL())
	}
	if cfg.AudioBaseURL() != "https://dialer.example.com/audio" {
		t.Fatalf("AudioBaseURL = %q", cfg.AudioBaseURL())
	}
	if _, ok := cfg.APIKeys["admin-key"]; !ok {
		t.Fatal("api key not loaded")
	}
}

func TestLoadFromEnvRequiresProviderCreds(t *testing.T) {
	setRequired(t)
	t.Setenv("DIALDROP_TELNYX_API_KEY", "")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("LoadFromEnv succeeded without provider key")
	}
}

func TestLoadFromEnvRequiresKeysWhenAuthRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("DIALDROP_API_KEYS", "")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("LoadFromEnv succeeded with auth=required and no keys")
	}

	t.Setenv("DIALDROP_AUTH_MODE", "disabled")
	if _, err := LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv with auth disabled: %v", err)
	}
}

func TestLoadFromEnvRejectsBadAuthMode(t *testing.T) {
	setRequired(t)
	t.Setenv("DIALDROP_AUTH_MODE", "sometimes")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("LoadFromEnv accepted unknown auth mode")
	}
}

func TestLoadFromEnvSMTPValidation(t *testing.T) {
	setRequired(t)
	t.Setenv("DIALDROP_SMTP_HOST", "smtp.example.com")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("LoadFromEnv accepted smtp host without sender/recipients")
	}

	t.Setenv("DIALDROP_REPORT_FROM", "dialer@example.com")
	t.Setenv("DIALDROP_REPORT_RECIPIENTS", "ops@example.com, lead@example.com")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if len(cfg.ReportRecipients) != 2 {
		t.Fatalf("recipients = %v, want 2", cfg.ReportRecipients)
	}
}
