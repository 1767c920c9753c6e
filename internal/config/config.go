// Package config loads critterd's configuration: YAML file, .env overlay,
// environment overrides, defaults, validation.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Hub     HubConfig     `yaml:"hub"`
	Owner   OwnerConfig   `yaml:"owner"`
	Clock   ClockConfig   `yaml:"clock"`
	Sync    SyncConfig    `yaml:"sync"`
	Notify  NotifyConfig  `yaml:"notify"`
	Discord DiscordConfig `yaml:"discord"`
	AI      AIConfig      `yaml:"ai"`
	Claude  ClaudeConfig  `yaml:"claude"`
	Gemini  GeminiConfig  `yaml:"gemini"`
}

// HubConfig points at the remote store.
type HubConfig struct {
	URL string `yaml:"url"`
}

// OwnerConfig identifies whose pet this session runs.
type OwnerConfig struct {
	ID string `yaml:"id"`
}

type ClockConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
}

type SyncConfig struct {
	Debounce   time.Duration `yaml:"debounce"`
	MaxTries   uint          `yaml:"max_tries"`
	RetryAfter time.Duration `yaml:"retry_after"`
}

type NotifyConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Cooldown time.Duration `yaml:"cooldown"`
}

type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

type AIConfig struct {
	Provider string `yaml:"provider"` // "claude", "gemini", or "" (auto-detect)
}

type ClaudeConfig struct {
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	MaxTokens  int64         `yaml:"max_tokens"`
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	// Secrets live in .env or the environment, never in the YAML file.
	loadDotEnv(".env")

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// No file: defaults plus env vars.
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if env := os.Getenv("CRITTER_HUB_URL"); env != "" {
		cfg.Hub.URL = env
	}
	if env := os.Getenv("CRITTER_OWNER_ID"); env != "" {
		cfg.Owner.ID = env
	}
	if env := os.Getenv("DISCORD_BOT_TOKEN"); env != "" {
		cfg.Discord.BotToken = env
	}
	if env := os.Getenv("DISCORD_CHANNEL_ID"); env != "" {
		cfg.Discord.ChannelID = env
	}
	if env := os.Getenv("ANTHROPIC_API_KEY"); env != "" {
		cfg.Claude.APIKey = env
	}
	if env := os.Getenv("GOOGLE_API_KEY"); env != "" {
		cfg.Gemini.APIKey = env
	}
	if env := os.Getenv("AI_PROVIDER"); env != "" {
		cfg.AI.Provider = env
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv reads a .env file and sets env vars that aren't already set.
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return // no .env, that's fine
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		// Strip surrounding quotes
		if len(val) >= 2 {
			if (val[0] == '"' && val[len(val)-1] == '"') ||
				(val[0] == '\'' && val[len(val)-1] == '\'') {
				val = val[1 : len(val)-1]
			}
		}

		if os.Getenv(key) == "" && val != "" {
			os.Setenv(key, val)
		}
	}
}

func defaults() *Config {
	return &Config{
		Hub: HubConfig{
			URL: "http://localhost:8420",
		},
		Clock: ClockConfig{
			TickInterval: 5 * time.Second,
		},
		Sync: SyncConfig{
			Debounce:   500 * time.Millisecond,
			MaxTries:   5,
			RetryAfter: 30 * time.Second,
		},
		Notify: NotifyConfig{
			Enabled:  true,
			Cooldown: 30 * time.Minute,
		},
		Claude: ClaudeConfig{
			Model:      "claude-sonnet-4-5-20250929",
			MaxTokens:  256,
			RateLimit:  10,
			RateWindow: time.Minute,
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.5-flash",
		},
	}
}

func validate(cfg *Config) error {
	if cfg.Hub.URL == "" {
		return fmt.Errorf("missing hub url — set hub.url or CRITTER_HUB_URL")
	}
	if cfg.Owner.ID == "" {
		return fmt.Errorf("missing owner id — set owner.id or CRITTER_OWNER_ID")
	}
	if cfg.Discord.BotToken != "" && cfg.Discord.ChannelID == "" {
		return fmt.Errorf("discord bot token set but no channel id")
	}
	return nil
}
