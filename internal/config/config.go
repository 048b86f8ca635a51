// Package config loads runtime configuration in three layers: built-in
// defaults, the add-on options file at /data/options.json, and MUNIN_*
// environment variables, each layer overriding the previous one.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

// DefaultOptionsPath is where the Home Assistant supervisor mounts the
// add-on options.
const DefaultOptionsPath = "/data/options.json"

// Config is the full runtime configuration.
type Config struct {
	// LLM settings
	LLMProvider string  `json:"llm_provider"`
	LLMAPIKey   string  `json:"llm_api_key"`
	LLMModel    string  `json:"llm_model"`
	LLMBaseURL  string  `json:"llm_base_url"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`

	// Home Assistant connection. URL empty means supervisor proxy.
	HomeAssistantURL   string `json:"homeassistant_url"`
	HomeAssistantToken string `json:"homeassistant_token"`
	SupervisorToken    string `json:"-"`

	// Telegram
	TelegramOwnerID int64 `json:"telegram_owner_id"`

	// Operating mode and safety
	OperatingMode           string `json:"operating_mode"`
	YoloModeDurationMinutes int    `json:"yolo_mode_duration_minutes"`
	DeletionsPerHour        int    `json:"deletions_per_hour"`
	ModificationsPerHour    int    `json:"modifications_per_hour"`
	RateLimitDisabled       bool   `json:"rate_limit_disabled"`
	MaxHistory              int    `json:"max_history"`
	MaxToolIterations       int    `json:"max_tool_iterations"`

	// Git snapshots
	GitEnabled     bool   `json:"git_enabled"`
	GitRepoPath    string `json:"git_repo_path"`
	GitAuthorName  string `json:"git_author_name"`
	GitAuthorEmail string `json:"git_author_email"`

	// Storage and web
	DatabasePath       string `json:"database_path"`
	WebPort            int    `json:"web_port"`
	AuditRetentionDays int    `json:"audit_retention_days"`

	Debug bool `json:"debug"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		LLMProvider:             "anthropic",
		LLMModel:                "claude-sonnet-4-20250514",
		MaxTokens:               4096,
		Temperature:             0.7,
		OperatingMode:           "normal",
		YoloModeDurationMinutes: 10,
		DeletionsPerHour:        5,
		ModificationsPerHour:    20,
		MaxHistory:              40,
		MaxToolIterations:       10,
		GitEnabled:              true,
		GitRepoPath:             "/config",
		GitAuthorName:           "Munin",
		GitAuthorEmail:          "munin@asgard.local",
		DatabasePath:            "/data/munin.db",
		WebPort:                 5000,
		AuditRetentionDays:      90,
	}
}

// Load builds the configuration from defaults, the options file, and the
// environment, then validates it.
func Load(optionsPath string) (*Config, error) {
	cfg := Defaults()

	if optionsPath == "" {
		optionsPath = DefaultOptionsPath
	}
	if err := applyOptionsFile(&cfg, optionsPath); err != nil {
		return nil, err
	}
	applyEnv(&cfg, os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyOptionsFile overlays the add-on options. A missing file is fine;
// a malformed one is not.
func applyOptionsFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json5.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays MUNIN_* variables. SUPERVISOR_TOKEN is injected by
// the supervisor without a prefix.
func applyEnv(cfg *Config, getenv func(string) string) {
	setString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				*dst = parsed
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			if parsed, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
				*dst = parsed
			}
		}
	}

	setString("MUNIN_LLM_PROVIDER", &cfg.LLMProvider)
	setString("MUNIN_LLM_API_KEY", &cfg.LLMAPIKey)
	setString("MUNIN_LLM_MODEL", &cfg.LLMModel)
	setString("MUNIN_LLM_BASE_URL", &cfg.LLMBaseURL)
	setString("MUNIN_HOMEASSISTANT_URL", &cfg.HomeAssistantURL)
	setString("MUNIN_HOMEASSISTANT_TOKEN", &cfg.HomeAssistantToken)
	setString("MUNIN_OPERATING_MODE", &cfg.OperatingMode)
	setString("MUNIN_GIT_AUTHOR_NAME", &cfg.GitAuthorName)
	setString("MUNIN_GIT_AUTHOR_EMAIL", &cfg.GitAuthorEmail)
	setString("MUNIN_GIT_REPO_PATH", &cfg.GitRepoPath)
	setString("MUNIN_DATABASE_PATH", &cfg.DatabasePath)

	if v := getenv("MUNIN_TELEGRAM_OWNER_ID"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TelegramOwnerID = parsed
		}
	}

	setInt("MUNIN_YOLO_MODE_DURATION_MINUTES", &cfg.YoloModeDurationMinutes)
	setInt("MUNIN_DELETIONS_PER_HOUR", &cfg.DeletionsPerHour)
	setInt("MUNIN_MODIFICATIONS_PER_HOUR", &cfg.ModificationsPerHour)
	setInt("MUNIN_MAX_HISTORY", &cfg.MaxHistory)
	setInt("MUNIN_MAX_TOOL_ITERATIONS", &cfg.MaxToolIterations)
	setInt("MUNIN_WEB_PORT", &cfg.WebPort)
	setInt("MUNIN_AUDIT_RETENTION_DAYS", &cfg.AuditRetentionDays)

	setBool("MUNIN_GIT_ENABLED", &cfg.GitEnabled)
	setBool("MUNIN_RATE_LIMIT_DISABLED", &cfg.RateLimitDisabled)
	setBool("MUNIN_DEBUG", &cfg.Debug)

	setString("SUPERVISOR_TOKEN", &cfg.SupervisorToken)
}

// Validate checks the fields that have no workable fallback.
func (c *Config) Validate() error {
	if c.TelegramOwnerID == 0 {
		return fmt.Errorf("config: telegram_owner_id must be configured")
	}
	switch c.OperatingMode {
	case "chat", "normal", "yolo":
	default:
		return fmt.Errorf("config: unknown operating_mode %q", c.OperatingMode)
	}
	switch strings.ToLower(c.LLMProvider) {
	case "anthropic", "openai", "azure", "ollama", "vllm", "gemini":
	default:
		return fmt.Errorf("config: unknown llm_provider %q", c.LLMProvider)
	}
	if c.SupervisorToken == "" && c.HomeAssistantToken == "" {
		return fmt.Errorf("config: either SUPERVISOR_TOKEN or homeassistant_token is required")
	}
	return nil
}
