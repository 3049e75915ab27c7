package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Google OAuth app
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID,required"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET,required"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL,required"`

	// Gmail push notifications
	PubSubTopic string `env:"PUBSUB_TOPIC,required"` // projects/<p>/topics/<t>

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/scheduler.db"`

	// Agent service (LLM classifier and slot narration)
	AgentBaseURL string `env:"AGENT_BASE_URL"`
	AgentAPIKey  string `env:"AGENT_API_KEY"`

	// Operator notifications (optional)
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `env:"TELEGRAM_CHAT_ID"`

	// Scheduling
	SlotSearchDays int `env:"SLOT_SEARCH_DAYS" envDefault:"5"`
	MaxAttempts    int `env:"MAX_ATTEMPTS" envDefault:"5"` // ingestion retry budget

	// HTTP
	Port string `env:"PORT" envDefault:"8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// AgentEnabled returns true if the agent service is configured
func (c *Config) AgentEnabled() bool {
	return c.AgentBaseURL != "" && c.AgentAPIKey != ""
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.SlotSearchDays < 1 {
		return nil, fmt.Errorf("SLOT_SEARCH_DAYS must be at least 1, got %d", cfg.SlotSearchDays)
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("MAX_ATTEMPTS must be at least 1, got %d", cfg.MaxAttempts)
	}

	return cfg, nil
}
