// Package config loads the job settings from the process environment.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	// Credentials, validated by Validate
	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY"`
	GeminiAPIKey   string `envconfig:"GEMINI_API_KEY"`
	TelegramToken  string `envconfig:"TG_TOKEN"`
	TelegramChatID string `envconfig:"TG_CHAT_ID"`

	// Hacker News settings
	TopStoriesURL    string        `envconfig:"HN_TOP_STORIES_URL" default:"https://hacker-news.firebaseio.com/v0/topstories.json"`
	ItemURLTemplate  string        `envconfig:"HN_ITEM_URL_TEMPLATE" default:"https://hacker-news.firebaseio.com/v0/item/%d.json"`
	StoryLimit       int           `envconfig:"STORY_LIMIT" default:"50"`
	ScoreThreshold   int           `envconfig:"SCORE_THRESHOLD" default:"50"`
	FetchConcurrency int           `envconfig:"FETCH_CONCURRENCY" default:"16"`
	HTTPTimeout      time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	ForceIPv4        bool          `envconfig:"FORCE_IPV4" default:"true"`

	// AI settings
	LLMProvider      string        `envconfig:"LLM_PROVIDER" default:"openai"`
	OpenAIModel      string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL    string        `envconfig:"OPENAI_BASE_URL"`
	GeminiModel      string        `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`
	AITemperature    float32       `envconfig:"AI_TEMPERATURE" default:"0.3"`
	AIMaxAttempts    int           `envconfig:"AI_MAX_ATTEMPTS" default:"3"`
	AIBaseRetryDelay time.Duration `envconfig:"AI_BASE_RETRY_DELAY" default:"1s"`

	// Telegram settings
	TelegramAPIBase   string `envconfig:"TELEGRAM_API_BASE" default:"https://api.telegram.org"`
	TelegramParseMode string `envconfig:"TG_PARSE_MODE" default:"Markdown"`

	// App settings
	Debug          bool          `envconfig:"DEBUG"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding    string        `envconfig:"LOG_ENCODING" default:"console"`
	PushgatewayURL string        `envconfig:"PUSHGATEWAY_URL"`
	PushTimeout    time.Duration `envconfig:"PUSHGATEWAY_TIMEOUT" default:"10s"`
}

// MissingEnvError names a required variable that is not set.
type MissingEnvError struct {
	Key string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("missing ENV var %s. Set it in your shell or add it to a .env file", e.Key)
}

// Load reads an optional .env file, then the environment, and validates the result.
// Variables already present in the environment are never overridden by .env.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv decodes and validates the environment without touching .env.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ModelAPIKeyName returns the variable holding the token for the selected provider.
func (c *Config) ModelAPIKeyName() string {
	if c.LLMProvider == ProviderGemini {
		return "GEMINI_API_KEY"
	}
	return "OPENAI_API_KEY"
}

// ModelAPIKey returns the token for the selected provider.
func (c *Config) ModelAPIKey() string {
	if c.LLMProvider == ProviderGemini {
		return c.GeminiAPIKey
	}
	return c.OpenAIAPIKey
}

// ModelName returns the model identifier for the selected provider.
func (c *Config) ModelName() string {
	if c.LLMProvider == ProviderGemini {
		return c.GeminiModel
	}
	return c.OpenAIModel
}

// LogLevelName resolves the effective log level; DEBUG=true wins.
func (c *Config) LogLevelName() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}

func (c *Config) Validate() error {
	if c.LLMProvider != ProviderOpenAI && c.LLMProvider != ProviderGemini {
		return fmt.Errorf("LLM_PROVIDER must be '%s' or '%s'", ProviderOpenAI, ProviderGemini)
	}
	if c.ModelAPIKey() == "" {
		return &MissingEnvError{Key: c.ModelAPIKeyName()}
	}
	if c.TelegramToken == "" {
		return &MissingEnvError{Key: "TG_TOKEN"}
	}
	if c.TelegramChatID == "" {
		return &MissingEnvError{Key: "TG_CHAT_ID"}
	}
	if c.StoryLimit <= 0 {
		return fmt.Errorf("STORY_LIMIT must be positive")
	}
	if c.FetchConcurrency <= 0 {
		return fmt.Errorf("FETCH_CONCURRENCY must be positive")
	}
	if c.AIMaxAttempts < 1 {
		return fmt.Errorf("AI_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}
