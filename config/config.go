// Package config loads and validates the process configuration from the
// environment (spec §6), using spf13/viper for env binding and defaulting.
// Validation is eager: LoadConfig always requires DATABASE_URL and, in
// APP_ENV=staging or production, fails fast on missing provider credentials
// so a misconfigured deployment never reaches the point of serving traffic.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppEnv is the deployment tier, gating how strictly configuration is
// validated (spec §6: APP_ENV ∈ {development, test, staging, production}).
type AppEnv string

const (
	EnvDevelopment AppEnv = "development"
	EnvTest        AppEnv = "test"
	EnvStaging     AppEnv = "staging"
	EnvProduction  AppEnv = "production"
)

type Config struct {
	AppEnv AppEnv

	HTTPAddr    string
	MetricsAddr string
	LogLevel    string

	DatabaseURL string
	RedisURL    string

	ChatBotToken       string
	ChatWebhookSecret  string
	VoiceAPIKey        string
	VoiceConnectionID  string
	AdminKey           string
	PublicBaseURL      string

	FeaturePanic            bool
	FeatureAllowOnlyWhitelist bool
	AllowedE164Numbers      []string
	SchedulerEnabled        bool

	DefaultRingTimeout      time.Duration
	DefaultMaxRetries       int
	DefaultRetryBackoff     time.Duration
	DefaultReminderInterval time.Duration
	IncidentMaxTotalRing    time.Duration
}

// LoadConfig binds every key spec §6 recognizes plus the SPEC_FULL.md
// ambient additions (HTTP_ADDR, METRICS_ADDR, LOG_LEVEL, REDIS_URL), applies
// defaults, and validates.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app_env", string(EnvDevelopment))
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("log_level", "info")
	v.SetDefault("feature_panic", true)
	v.SetDefault("feature_allow_only_whitelist", false)
	v.SetDefault("scheduler_enabled", true)
	v.SetDefault("default_ring_timeout_sec", 25)
	v.SetDefault("default_max_retries", 2)
	v.SetDefault("default_retry_backoff_sec", 60)
	v.SetDefault("default_reminder_interval_sec", 120)
	v.SetDefault("incident_max_total_ring_sec", 180)

	cfg := &Config{
		AppEnv:      AppEnv(v.GetString("app_env")),
		HTTPAddr:    v.GetString("http_addr"),
		MetricsAddr: v.GetString("metrics_addr"),
		LogLevel:    v.GetString("log_level"),

		DatabaseURL: v.GetString("database_url"),
		RedisURL:    v.GetString("redis_url"),

		ChatBotToken:      v.GetString("chat_bot_token"),
		ChatWebhookSecret: v.GetString("chat_webhook_secret"),
		VoiceAPIKey:       v.GetString("voice_api_key"),
		VoiceConnectionID: v.GetString("voice_connection_id"),
		AdminKey:          v.GetString("admin_key"),
		PublicBaseURL:     strings.TrimRight(v.GetString("public_base_url"), "/"),

		FeaturePanic:              v.GetBool("feature_panic"),
		FeatureAllowOnlyWhitelist: v.GetBool("feature_allow_only_whitelist"),
		AllowedE164Numbers:        splitCSV(v.GetString("allowed_e164_numbers")),
		SchedulerEnabled:          v.GetBool("scheduler_enabled"),

		DefaultRingTimeout:      time.Duration(v.GetInt("default_ring_timeout_sec")) * time.Second,
		DefaultMaxRetries:       v.GetInt("default_max_retries"),
		DefaultRetryBackoff:     time.Duration(v.GetInt("default_retry_backoff_sec")) * time.Second,
		DefaultReminderInterval: time.Duration(v.GetInt("default_reminder_interval_sec")) * time.Second,
		IncidentMaxTotalRing:    time.Duration(v.GetInt("incident_max_total_ring_sec")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validate enforces the env table's required keys outside development and
// test, where missing provider credentials are expected (local/offline work).
func (c *Config) validate() error {
	switch c.AppEnv {
	case EnvDevelopment, EnvTest, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("invalid APP_ENV %q", c.AppEnv)
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.AppEnv == EnvDevelopment || c.AppEnv == EnvTest {
		return nil
	}

	var missing []string
	if c.ChatBotToken == "" {
		missing = append(missing, "CHAT_BOT_TOKEN")
	}
	if c.ChatWebhookSecret == "" {
		missing = append(missing, "CHAT_WEBHOOK_SECRET")
	}
	if c.VoiceAPIKey == "" {
		missing = append(missing, "VOICE_API_KEY")
	}
	if c.PublicBaseURL == "" {
		missing = append(missing, "PUBLIC_BASE_URL")
	}
	if c.AdminKey == "" {
		missing = append(missing, "ADMIN_KEY")
	}
	if c.FeatureAllowOnlyWhitelist && len(c.AllowedE164Numbers) == 0 {
		missing = append(missing, "ALLOWED_E164_NUMBERS")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration in %s: %s", c.AppEnv, strings.Join(missing, ", "))
	}
	return nil
}
