package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Netflix/go-env"

	"github.com/bayy420-999/whatsapp-sender/internal/domain"
)

type Config struct {
	GatewayURL    string `env:"GATEWAY_URL,required=true"`
	GatewayAPIKey string `env:"GATEWAY_API_KEY"`

	StoreDriver string `env:"STORE_DRIVER,default=postgres"`
	DatabaseDSN string `env:"DATABASE_DSN"`
	SessionsDir string `env:"SESSIONS_DIR,default=./sessions"`

	RedisURL    string `env:"REDIS_URL"`
	RabbitMQURL string `env:"RABBITMQ_URL"`

	MinDelaySeconds int    `env:"MIN_DELAY_SECONDS,default=30"`
	MaxDelaySeconds int    `env:"MAX_DELAY_SECONDS,default=60"`
	DelayRulesJSON  string `env:"DELAY_RULES"`

	JanitorIntervalSeconds int `env:"JANITOR_INTERVAL_SECONDS,default=60"`
	StaleAfterSeconds      int `env:"STALE_AFTER_SECONDS,default=600"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.StoreDriver)) {
	case "", "postgres":
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("%w: DATABASE_DSN is required for the postgres store driver", domain.ErrValidation)
		}
	case "file":
		if strings.TrimSpace(c.SessionsDir) == "" {
			return fmt.Errorf("%w: SESSIONS_DIR is required for the file store driver", domain.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown store driver %q", domain.ErrValidation, c.StoreDriver)
	}

	if _, err := c.DelaySettings(); err != nil {
		return err
	}
	return nil
}

// DelaySettings builds the default pacing configuration from the base range
// plus the optional DELAY_RULES JSON array.
func (c *Config) DelaySettings() (domain.DelaySettings, error) {
	settings := domain.DelaySettings{
		MinDelay: c.MinDelaySeconds,
		MaxDelay: c.MaxDelaySeconds,
	}

	if raw := strings.TrimSpace(c.DelayRulesJSON); raw != "" {
		if err := json.Unmarshal([]byte(raw), &settings.Rules); err != nil {
			return domain.DelaySettings{}, fmt.Errorf("%w: DELAY_RULES is not a valid rule array: %v", domain.ErrValidation, err)
		}
	}

	if err := settings.Validate(); err != nil {
		return domain.DelaySettings{}, err
	}
	return settings, nil
}
