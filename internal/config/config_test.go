package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.LLMProvider != "anthropic" || cfg.LLMModel != "claude-sonnet-4-20250514" {
		t.Errorf("llm defaults = %q/%q", cfg.LLMProvider, cfg.LLMModel)
	}
	if cfg.MaxTokens != 4096 || cfg.Temperature != 0.7 {
		t.Errorf("sampling defaults = %d/%v", cfg.MaxTokens, cfg.Temperature)
	}
	if cfg.DeletionsPerHour != 5 || cfg.ModificationsPerHour != 20 {
		t.Errorf("rate defaults = %d/%d", cfg.DeletionsPerHour, cfg.ModificationsPerHour)
	}
	if cfg.YoloModeDurationMinutes != 10 || cfg.OperatingMode != "normal" {
		t.Errorf("mode defaults = %d/%q", cfg.YoloModeDurationMinutes, cfg.OperatingMode)
	}
	if cfg.DatabasePath != "/data/munin.db" || cfg.WebPort != 5000 || cfg.AuditRetentionDays != 90 {
		t.Errorf("storage defaults = %q/%d/%d", cfg.DatabasePath, cfg.WebPort, cfg.AuditRetentionDays)
	}
}

func TestOptionsFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.json")
	// JSON5: comments and trailing commas are tolerated.
	options := `{
		// add-on options
		"llm_provider": "ollama",
		"llm_base_url": "http://ollama.local:11434/v1",
		"telegram_owner_id": 42,
		"deletions_per_hour": 2,
	}`
	if err := os.WriteFile(path, []byte(options), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := applyOptionsFile(&cfg, path); err != nil {
		t.Fatal(err)
	}
	if cfg.LLMProvider != "ollama" || cfg.LLMBaseURL != "http://ollama.local:11434/v1" {
		t.Errorf("llm = %q/%q", cfg.LLMProvider, cfg.LLMBaseURL)
	}
	if cfg.TelegramOwnerID != 42 || cfg.DeletionsPerHour != 2 {
		t.Errorf("owner/deletions = %d/%d", cfg.TelegramOwnerID, cfg.DeletionsPerHour)
	}
	// Untouched keys keep their defaults.
	if cfg.ModificationsPerHour != 20 {
		t.Errorf("modifications = %d", cfg.ModificationsPerHour)
	}
}

func TestOptionsFileMissingIsFine(t *testing.T) {
	cfg := Defaults()
	if err := applyOptionsFile(&cfg, filepath.Join(t.TempDir(), "absent.json")); err != nil {
		t.Errorf("missing options file should not error: %v", err)
	}
}

func TestEnvOverridesOptions(t *testing.T) {
	env := map[string]string{
		"MUNIN_LLM_PROVIDER":      "gemini",
		"MUNIN_TELEGRAM_OWNER_ID": "7",
		"MUNIN_WEB_PORT":          "8080",
		"MUNIN_GIT_ENABLED":       "false",
		"SUPERVISOR_TOKEN":        "stoken",
	}
	cfg := Defaults()
	cfg.LLMProvider = "openai" // pretend the options file set this
	applyEnv(&cfg, func(key string) string { return env[key] })

	if cfg.LLMProvider != "gemini" {
		t.Errorf("provider = %q", cfg.LLMProvider)
	}
	if cfg.TelegramOwnerID != 7 || cfg.WebPort != 8080 {
		t.Errorf("owner/port = %d/%d", cfg.TelegramOwnerID, cfg.WebPort)
	}
	if cfg.GitEnabled {
		t.Error("git_enabled should be overridden to false")
	}
	if cfg.SupervisorToken != "stoken" {
		t.Errorf("supervisor token = %q", cfg.SupervisorToken)
	}
}

func TestValidate(t *testing.T) {
	valid := Defaults()
	valid.TelegramOwnerID = 42
	valid.SupervisorToken = "s"
	if err := valid.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing owner id", func(c *Config) { c.TelegramOwnerID = 0 }},
		{"bad mode", func(c *Config) { c.OperatingMode = "turbo" }},
		{"bad provider", func(c *Config) { c.LLMProvider = "mystery" }},
		{"no tokens", func(c *Config) { c.SupervisorToken = ""; c.HomeAssistantToken = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}
