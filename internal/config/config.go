package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wealthops/wealthops-backend/internal/platform/envutil"
)

// Config holds every tunable for the orchestrator and the copilot CLI.
// Values come from an optional YAML file, then environment variables
// override field by field.
type Config struct {
	Env     string `yaml:"env"`
	LogMode string `yaml:"log_mode"`

	HTTPPort    string   `yaml:"http_port"`
	CORSOrigins []string `yaml:"cors_origins"`

	OrchestratorURL string `yaml:"orchestrator_url"`
	NL2SQLAgentURL  string `yaml:"nl2sql_agent_url"`
	VectorAgentURL  string `yaml:"vector_agent_url"`
	APIAgentURL     string `yaml:"api_agent_url"`

	HouseholdID string `yaml:"household_id"`

	AgentTimeoutSeconds   int `yaml:"agent_timeout_seconds"`
	HealthTimeoutSeconds  int `yaml:"health_timeout_seconds"`
	HealthIntervalSeconds int `yaml:"health_interval_seconds"`

	StoreDriver string `yaml:"store_driver"`
	StoreDSN    string `yaml:"store_dsn"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	A2AChannel    string `yaml:"a2a_channel"`

	OtelEnabled bool `yaml:"otel_enabled"`
}

func defaults() Config {
	return Config{
		Env:                   "dev",
		LogMode:               "dev",
		HTTPPort:              "8003",
		OrchestratorURL:       "http://localhost:8003",
		NL2SQLAgentURL:        "http://localhost:8004",
		VectorAgentURL:        "http://localhost:8005",
		APIAgentURL:           "http://localhost:8006",
		AgentTimeoutSeconds:   30,
		HealthTimeoutSeconds:  3,
		HealthIntervalSeconds: 30,
		StoreDriver:           "sqlite",
		StoreDSN:              "wealthops.db",
		A2AChannel:            "a2a-messages",
	}
}

// Load reads the YAML file at path (skipped when path is empty or the
// file does not exist), then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Fall through to env-only configuration.
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Env = envutil.Str("APP_ENV", c.Env)
	c.LogMode = envutil.Str("LOG_MODE", c.LogMode)
	c.HTTPPort = envutil.Str("HTTP_PORT", c.HTTPPort)

	if v := envutil.Str("CORS_ORIGINS", ""); v != "" {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				origins = append(origins, p)
			}
		}
		c.CORSOrigins = origins
	}

	c.OrchestratorURL = envutil.Str("ORCHESTRATOR_URL", c.OrchestratorURL)
	c.NL2SQLAgentURL = envutil.Str("NL2SQL_AGENT_URL", c.NL2SQLAgentURL)
	c.VectorAgentURL = envutil.Str("VECTOR_AGENT_URL", c.VectorAgentURL)
	c.APIAgentURL = envutil.Str("API_AGENT_URL", c.APIAgentURL)
	c.HouseholdID = envutil.Str("HOUSEHOLD_ID", c.HouseholdID)

	c.AgentTimeoutSeconds = envutil.Int("AGENT_TIMEOUT_SECONDS", c.AgentTimeoutSeconds)
	c.HealthTimeoutSeconds = envutil.Int("HEALTH_TIMEOUT_SECONDS", c.HealthTimeoutSeconds)
	c.HealthIntervalSeconds = envutil.Int("HEALTH_INTERVAL_SECONDS", c.HealthIntervalSeconds)

	c.StoreDriver = envutil.Str("STORE_DRIVER", c.StoreDriver)
	c.StoreDSN = envutil.Str("STORE_DSN", c.StoreDSN)

	c.RedisAddr = envutil.Str("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = envutil.Str("REDIS_PASSWORD", c.RedisPassword)
	c.A2AChannel = envutil.Str("A2A_CHANNEL", c.A2AChannel)

	c.OtelEnabled = envutil.Bool("OTEL_ENABLED", c.OtelEnabled)
}

func (c Config) AgentTimeout() time.Duration {
	return time.Duration(c.AgentTimeoutSeconds) * time.Second
}

func (c Config) HealthTimeout() time.Duration {
	return time.Duration(c.HealthTimeoutSeconds) * time.Second
}

func (c Config) HealthInterval() time.Duration {
	return time.Duration(c.HealthIntervalSeconds) * time.Second
}

func (c Config) IsProd() bool {
	env := strings.ToLower(c.Env)
	return env == "prod" || env == "production"
}
