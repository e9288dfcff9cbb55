package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "MAILDIGEST_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	anthropicKeyEnv   = "ANTHROPIC_API_KEY"
	openAIKeyEnv      = "OPENAI_API_KEY"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	forwardEmailEnv   = "FORWARD_EMAIL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Gmail     GmailConfig     `yaml:"gmail"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Summary   SummaryConfig   `yaml:"summary"`
	Urgency   UrgencyConfig   `yaml:"urgency"`
	Digest    DigestConfig    `yaml:"digest"`
}

// LoggingConfig controls slog verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig describes Postgres connection details for the history store.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// GmailConfig wires the mailbox collaborator.
type GmailConfig struct {
	CredentialsFile string `yaml:"credentialsFile"`
	TokenFile       string `yaml:"tokenFile"`
	ForwardTo       string `yaml:"forwardTo"`
	MaxResults      int64  `yaml:"maxResults"`
}

// TelegramConfig wires the transport collaborator.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// AnthropicConfig defines the primary summarization provider.
type AnthropicConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	Version      string `yaml:"version"`
	SystemPrompt string `yaml:"systemPrompt"`
	MaxRetries   int    `yaml:"maxRetries"`
}

// OpenAIConfig defines the secondary summarization provider.
type OpenAIConfig struct {
	BaseURL      string `yaml:"baseUrl"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// SummaryConfig bounds summarization output.
type SummaryConfig struct {
	ItemMaxChars           int `yaml:"itemMaxChars"`
	CombinedMaxChars       int `yaml:"combinedMaxChars"`
	ProviderTimeoutSeconds int `yaml:"providerTimeoutSeconds"`
	LocalSentences         int `yaml:"localSentences"`
	HeuristicSentences     int `yaml:"heuristicSentences"`
}

// ProviderTimeout resolves the per-provider call budget.
func (s SummaryConfig) ProviderTimeout() time.Duration {
	if s.ProviderTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.ProviderTimeoutSeconds) * time.Second
}

// UrgencyConfig tunes the rule-based scorer.
type UrgencyConfig struct {
	Keywords                []string `yaml:"keywords"`
	DeadlineWindowHours     int      `yaml:"deadlineWindowHours"`
	ThreadActivityThreshold int      `yaml:"threadActivityThreshold"`
}

// DeadlineWindow resolves the look-ahead for deadline urgency.
func (u UrgencyConfig) DeadlineWindow() time.Duration {
	if u.DeadlineWindowHours <= 0 {
		return 72 * time.Hour
	}
	return time.Duration(u.DeadlineWindowHours) * time.Hour
}

// DigestConfig tunes session building and delivery.
type DigestConfig struct {
	GroupThreshold       int     `yaml:"groupThreshold"`
	SessionTTLMinutes    int     `yaml:"sessionTtlMinutes"`
	IntervalHours        float64 `yaml:"intervalHours"`
	AlertIntervalMinutes int     `yaml:"alertIntervalMinutes"`
	BlockLimit           int     `yaml:"blockLimit"`
	EventWindowDays      int     `yaml:"eventWindowDays"`
	OrderingWindowHours  int     `yaml:"orderingWindowHours"`
}

// SessionTTL resolves how long an unattended session stays live.
func (d DigestConfig) SessionTTL() time.Duration {
	if d.SessionTTLMinutes <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(d.SessionTTLMinutes) * time.Minute
}

// Interval resolves the periodic digest cadence.
func (d DigestConfig) Interval() time.Duration {
	if d.IntervalHours <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(float64(time.Hour) * d.IntervalHours)
}

// AlertInterval resolves the important-mail check cadence.
func (d DigestConfig) AlertInterval() time.Duration {
	if d.AlertIntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(d.AlertIntervalMinutes) * time.Minute
}

// EventWindow resolves how far ahead existing calendar events are listed
// for conflict tagging.
func (d DigestConfig) EventWindow() time.Duration {
	if d.EventWindowDays <= 0 {
		return 14 * 24 * time.Hour
	}
	return time.Duration(d.EventWindowDays) * 24 * time.Hour
}

// OrderingWindow resolves how far back unread mail is considered.
func (d DigestConfig) OrderingWindow() time.Duration {
	if d.OrderingWindowHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(d.OrderingWindowHours) * time.Hour
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv(anthropicKeyEnv); v != "" {
		c.Anthropic.APIKey = v
	}
	if v := os.Getenv(openAIKeyEnv); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv(forwardEmailEnv); v != "" {
		c.Gmail.ForwardTo = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}
	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Gmail.CredentialsFile != "" {
		base.Gmail.CredentialsFile = override.Gmail.CredentialsFile
	}
	if override.Gmail.TokenFile != "" {
		base.Gmail.TokenFile = override.Gmail.TokenFile
	}
	if override.Gmail.ForwardTo != "" {
		base.Gmail.ForwardTo = override.Gmail.ForwardTo
	}
	if override.Gmail.MaxResults > 0 {
		base.Gmail.MaxResults = override.Gmail.MaxResults
	}

	if override.Telegram.BotToken != "" {
		base.Telegram.BotToken = override.Telegram.BotToken
	}
	if override.Telegram.ChatID != "" {
		base.Telegram.ChatID = override.Telegram.ChatID
	}

	if override.Anthropic.Endpoint != "" {
		base.Anthropic.Endpoint = override.Anthropic.Endpoint
	}
	if override.Anthropic.Model != "" {
		base.Anthropic.Model = override.Anthropic.Model
	}
	if override.Anthropic.APIKey != "" {
		base.Anthropic.APIKey = override.Anthropic.APIKey
	}
	if override.Anthropic.Version != "" {
		base.Anthropic.Version = override.Anthropic.Version
	}
	if override.Anthropic.SystemPrompt != "" {
		base.Anthropic.SystemPrompt = override.Anthropic.SystemPrompt
	}
	if override.Anthropic.MaxRetries > 0 {
		base.Anthropic.MaxRetries = override.Anthropic.MaxRetries
	}

	if override.OpenAI.BaseURL != "" {
		base.OpenAI.BaseURL = override.OpenAI.BaseURL
	}
	if override.OpenAI.Model != "" {
		base.OpenAI.Model = override.OpenAI.Model
	}
	if override.OpenAI.APIKey != "" {
		base.OpenAI.APIKey = override.OpenAI.APIKey
	}
	if override.OpenAI.SystemPrompt != "" {
		base.OpenAI.SystemPrompt = override.OpenAI.SystemPrompt
	}

	if override.Summary.ItemMaxChars > 0 {
		base.Summary.ItemMaxChars = override.Summary.ItemMaxChars
	}
	if override.Summary.CombinedMaxChars > 0 {
		base.Summary.CombinedMaxChars = override.Summary.CombinedMaxChars
	}
	if override.Summary.ProviderTimeoutSeconds > 0 {
		base.Summary.ProviderTimeoutSeconds = override.Summary.ProviderTimeoutSeconds
	}
	if override.Summary.LocalSentences > 0 {
		base.Summary.LocalSentences = override.Summary.LocalSentences
	}
	if override.Summary.HeuristicSentences > 0 {
		base.Summary.HeuristicSentences = override.Summary.HeuristicSentences
	}

	if len(override.Urgency.Keywords) > 0 {
		base.Urgency.Keywords = override.Urgency.Keywords
	}
	if override.Urgency.DeadlineWindowHours > 0 {
		base.Urgency.DeadlineWindowHours = override.Urgency.DeadlineWindowHours
	}
	if override.Urgency.ThreadActivityThreshold > 0 {
		base.Urgency.ThreadActivityThreshold = override.Urgency.ThreadActivityThreshold
	}

	if override.Digest.GroupThreshold > 0 {
		base.Digest.GroupThreshold = override.Digest.GroupThreshold
	}
	if override.Digest.SessionTTLMinutes > 0 {
		base.Digest.SessionTTLMinutes = override.Digest.SessionTTLMinutes
	}
	if override.Digest.IntervalHours > 0 {
		base.Digest.IntervalHours = override.Digest.IntervalHours
	}
	if override.Digest.AlertIntervalMinutes > 0 {
		base.Digest.AlertIntervalMinutes = override.Digest.AlertIntervalMinutes
	}
	if override.Digest.BlockLimit > 0 {
		base.Digest.BlockLimit = override.Digest.BlockLimit
	}
	if override.Digest.EventWindowDays > 0 {
		base.Digest.EventWindowDays = override.Digest.EventWindowDays
	}
	if override.Digest.OrderingWindowHours > 0 {
		base.Digest.OrderingWindowHours = override.Digest.OrderingWindowHours
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Database: DatabaseConfig{DSN: ""},
		Gmail: GmailConfig{
			CredentialsFile: "client_secret.json",
			TokenFile:       "token.json",
			MaxResults:      50,
		},
		Telegram: TelegramConfig{BotToken: "", ChatID: ""},
		Anthropic: AnthropicConfig{
			Endpoint:     "https://api.anthropic.com/v1/messages",
			Model:        "claude-3-5-sonnet-20240620",
			Version:      "2023-06-01",
			SystemPrompt: "You are a helpful assistant that summarizes emails.",
			MaxRetries:   2,
		},
		OpenAI: OpenAIConfig{
			Model:        "gpt-4o-mini",
			SystemPrompt: "You are a helpful assistant that summarizes emails.",
		},
		Summary: SummaryConfig{
			ItemMaxChars:           500,
			CombinedMaxChars:       1000,
			ProviderTimeoutSeconds: 10,
			LocalSentences:         3,
			HeuristicSentences:     3,
		},
		Urgency: UrgencyConfig{
			Keywords: []string{
				"urgent", "asap", "emergency", "important",
				"action required", "deadline", "critical",
				"immediately", "time sensitive", "priority",
			},
			DeadlineWindowHours:     72,
			ThreadActivityThreshold: 3,
		},
		Digest: DigestConfig{
			GroupThreshold:       2,
			SessionTTLMinutes:    60,
			IntervalHours:        2,
			AlertIntervalMinutes: 15,
			BlockLimit:           4096,
			EventWindowDays:      14,
			OrderingWindowHours:  7 * 24,
		},
	}
}
