package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the automation core.
type Config struct {
	General      GeneralConfig      `mapstructure:"general"`
	Server       ServerConfig       `mapstructure:"server"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Actions      ActionsConfig      `mapstructure:"actions"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Retention    RetentionConfig    `mapstructure:"retention"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address           string        `mapstructure:"address"`
	Name              string        `mapstructure:"name"`
	Version           string        `mapstructure:"version"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// LLMConfig contains the generative model provider configuration.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai only for now
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ActionsConfig wires the outbound action providers used by tool executors.
type ActionsConfig struct {
	Telephony TelephonyConfig `mapstructure:"telephony"`
	Email     EmailConfig     `mapstructure:"email"`
	Messaging MessagingConfig `mapstructure:"messaging"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
}

// TelephonyConfig configures the voice-call provider.
type TelephonyConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	AssistantID string        `mapstructure:"assistant_id"`
	PhoneNumber string        `mapstructure:"phone_number"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// EmailConfig configures the transactional email provider.
type EmailConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	From    string        `mapstructure:"from"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MessagingConfig configures the SMS provider.
type MessagingConfig struct {
	AccountSID string        `mapstructure:"account_sid"`
	AuthToken  string        `mapstructure:"auth_token"`
	BaseURL    string        `mapstructure:"base_url"`
	From       string        `mapstructure:"from"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// WebhookConfig bounds outbound webhook calls.
type WebhookConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// OrchestratorConfig controls the periodic decide-and-act loop.
type OrchestratorConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	DefaultInterval time.Duration `mapstructure:"default_interval"`
	CronSpec        string        `mapstructure:"cron_spec"`
	PassTimeout     time.Duration `mapstructure:"pass_timeout"`
}

// RetentionConfig caps the in-memory collections per resource kind.
type RetentionConfig struct {
	MaxPerKind int `mapstructure:"max_per_kind"`
}

// StorageConfig names the optional external stores.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig locates the detection archive database.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig locates the optional integration mirror.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// TelemetryConfig contains metrics settings.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

// DSN assembles a postgres connection string; empty when not configured.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	if p.Host == "" || p.DBName == "" {
		return ""
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// Addr returns host:port, or empty when redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" || r.Port == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

// LoadConfig reads configuration from file (optional) and environment.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("argus")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ARGUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.default_timeout", "30s")

	v.SetDefault("server.address", ":8090")
	v.SetDefault("server.name", "argus-automation")
	v.SetDefault("server.version", "1.0.0")
	v.SetDefault("server.heartbeat_interval", "30s")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.timeout", "60s")

	v.SetDefault("actions.telephony.base_url", "https://api.vapi.ai")
	v.SetDefault("actions.telephony.timeout", "30s")
	v.SetDefault("actions.email.base_url", "https://api.resend.com")
	v.SetDefault("actions.email.timeout", "30s")
	v.SetDefault("actions.messaging.base_url", "https://api.twilio.com")
	v.SetDefault("actions.messaging.timeout", "30s")
	v.SetDefault("actions.webhook.timeout", "30s")

	v.SetDefault("orchestrator.default_interval", "60s")
	v.SetDefault("orchestrator.pass_timeout", "2m")

	v.SetDefault("retention.max_per_kind", 1000)

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.metrics_path", "/metrics")
}

func validate(cfg *Config) error {
	if cfg.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if cfg.Retention.MaxPerKind <= 0 {
		return fmt.Errorf("retention.max_per_kind must be > 0")
	}
	if cfg.Orchestrator.DefaultInterval <= 0 {
		return fmt.Errorf("orchestrator.default_interval must be > 0")
	}
	return nil
}
