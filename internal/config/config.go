package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LLMConfig selects the generation backend.
type LLMConfig struct {
	// Provider names the LLM provider: "openai", "google", "anthropic", "openai_compatible".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// BaseURL points openai_compatible (and anthropic proxies) at a custom endpoint.
	BaseURL string `yaml:"base_url"`
	// APIKey is used only when the provider's env variable is unset.
	APIKey string `yaml:"api_key"`
}

type GenerationConfig struct {
	MaxAttempts        int `yaml:"max_attempts"`
	CallTimeoutSeconds int `yaml:"call_timeout_seconds"`
	BackoffBaseMillis  int `yaml:"backoff_base_ms"`
}

type TelegramConfig struct {
	Token       string `yaml:"token"`
	BotUsername string `yaml:"bot_username"`
	Enabled     bool   `yaml:"enabled"`
}

type RedisConfig struct {
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
}

type OTelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // "otlp" or "stdout"
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

type MaintenanceConfig struct {
	// AuditRetentionDays bounds llm_messages history. 0 keeps everything.
	AuditRetentionDays int `yaml:"audit_retention_days"`
	// AuditRetentionCron is a 5-field cron expression.
	AuditRetentionCron string `yaml:"audit_retention_cron"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	LogLevel string `yaml:"log_level"`
	DBPath   string `yaml:"db_path"`

	// ScenariosFile is a YAML registry seed synced into admin_scenarios on
	// start and whenever the file changes. Relative paths resolve against HomeDir.
	ScenariosFile string `yaml:"scenarios_file"`

	// AdminDefaults seeds admin_settings keys that are not set yet.
	AdminDefaults map[string]string `yaml:"admin_defaults"`

	Telegram    TelegramConfig    `yaml:"telegram"`
	LLM         LLMConfig         `yaml:"llm"`
	Generation  GenerationConfig  `yaml:"generation"`
	Redis       RedisConfig       `yaml:"redis"`
	OTel        OTelConfig        `yaml:"otel"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// LLMProviderAPIKey returns the API key for the provider. Env vars take
// precedence over the config file.
func (c Config) LLMProviderAPIKey(provider string) string {
	envMap := map[string]string{
		"google":            "GEMINI_API_KEY",
		"anthropic":         "ANTHROPIC_API_KEY",
		"openai":            "OPENAI_API_KEY",
		"openai_compatible": "OPENAI_API_KEY",
	}
	if envVar, ok := envMap[provider]; ok {
		if v := os.Getenv(envVar); v != "" {
			return v
		}
	}
	return c.LLM.APIKey
}

// ResolveLLMConfig returns the effective provider, model and key.
func (c Config) ResolveLLMConfig() (provider, model, apiKey string) {
	provider = c.LLM.Provider
	if provider == "" {
		provider = "openai"
	}
	model = c.LLM.Model
	if model == "" {
		model = defaultModels[provider]
	}
	return provider, model, c.LLMProviderAPIKey(provider)
}

var defaultModels = map[string]string{
	"openai":            "gpt-4o-mini",
	"openai_compatible": "gpt-4o-mini",
	"google":            "gemini-2.5-flash",
	"anthropic":         "claude-3-5-haiku-latest",
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// ScenariosPath resolves ScenariosFile against HomeDir. Empty means no seed.
func (c Config) ScenariosPath() string {
	if c.ScenariosFile == "" {
		return ""
	}
	if filepath.IsAbs(c.ScenariosFile) {
		return c.ScenariosFile
	}
	return filepath.Join(c.HomeDir, c.ScenariosFile)
}

// Fingerprint returns a stable hash of the settings that affect generation.
func (c Config) Fingerprint() string {
	provider, model, _ := c.ResolveLLMConfig()
	h := fnv.New64a()
	fmt.Fprintf(h, "provider=%s|model=%s|attempts=%d|timeout=%d|redis=%s|log=%s",
		provider, model, c.Generation.MaxAttempts, c.Generation.CallTimeoutSeconds, c.Redis.Addr, c.LogLevel)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}

const maxGenerationAttempts = 3

func defaultConfig() Config {
	return Config{
		LogLevel:      "info",
		ScenariosFile: "scenarios.yaml",
		Generation: GenerationConfig{
			MaxAttempts:        maxGenerationAttempts,
			CallTimeoutSeconds: 60,
			BackoffBaseMillis:  600,
		},
		Redis: RedisConfig{LockTTLSeconds: 120},
		OTel: OTelConfig{
			Exporter:    "otlp",
			ServiceName: "astrobot",
			SampleRate:  1.0,
		},
		Maintenance: MaintenanceConfig{
			AuditRetentionDays: 90,
			AuditRetentionCron: "30 3 * * *",
		},
	}
}

func HomeDir() string {
	if override := os.Getenv("ASTROBOT_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".astrobot")
}

func Load() (Config, error) {
	return LoadFrom(HomeDir())
}

// LoadFrom reads <homeDir>/config.yaml, applies env overrides and defaults.
// A missing file is not an error.
func LoadFrom(homeDir string) (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = homeDir

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create astrobot home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.HomeDir, "astrobot.db")
	}
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.LLM.Provider == "gemini" {
		cfg.LLM.Provider = "google"
	}
	// The attempt budget is fixed: values outside 1..3 fall back to 3.
	if cfg.Generation.MaxAttempts <= 0 || cfg.Generation.MaxAttempts > maxGenerationAttempts {
		cfg.Generation.MaxAttempts = maxGenerationAttempts
	}
	if cfg.Generation.CallTimeoutSeconds <= 0 {
		cfg.Generation.CallTimeoutSeconds = 60
	}
	if cfg.Generation.BackoffBaseMillis < 0 {
		cfg.Generation.BackoffBaseMillis = 0
	}
	if cfg.Redis.LockTTLSeconds <= 0 {
		cfg.Redis.LockTTLSeconds = 120
	}
	if cfg.OTel.ServiceName == "" {
		cfg.OTel.ServiceName = "astrobot"
	}
	if cfg.OTel.SampleRate <= 0 || cfg.OTel.SampleRate > 1 {
		cfg.OTel.SampleRate = 1.0
	}
	if cfg.Telegram.Token != "" {
		cfg.Telegram.Enabled = true
	}
	cfg.Telegram.BotUsername = strings.TrimPrefix(strings.TrimSpace(cfg.Telegram.BotUsername), "@")
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("ASTROBOT_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("ASTROBOT_DB_PATH"); raw != "" {
		cfg.DBPath = raw
	}
	if raw := os.Getenv("ASTROBOT_SCENARIOS_FILE"); raw != "" {
		cfg.ScenariosFile = raw
	}
	if raw := os.Getenv("TELEGRAM_TOKEN"); raw != "" {
		cfg.Telegram.Token = raw
	}
	if raw := os.Getenv("TELEGRAM_BOT_USERNAME"); raw != "" {
		cfg.Telegram.BotUsername = raw
	}
	if raw := os.Getenv("LLM_PROVIDER"); raw != "" {
		cfg.LLM.Provider = raw
	}
	if raw := os.Getenv("LLM_MODEL"); raw != "" {
		cfg.LLM.Model = raw
	}
	if raw := os.Getenv("LLM_BASE_URL"); raw != "" {
		cfg.LLM.BaseURL = raw
	}
	if raw := os.Getenv("ASTROBOT_CALL_TIMEOUT_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Generation.CallTimeoutSeconds = v
		}
	}
	if raw := os.Getenv("REDIS_ADDR"); raw != "" {
		cfg.Redis.Addr = raw
	}
	if raw := os.Getenv("REDIS_PASSWORD"); raw != "" {
		cfg.Redis.Password = raw
	}
	if raw := os.Getenv("ASTROBOT_OTEL_ENABLED"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			cfg.OTel.Enabled = v
		}
	}
}
