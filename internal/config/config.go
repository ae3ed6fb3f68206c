package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv      = "ETHNOCARDS_CONFIG"
	databaseDriverEnv  = "DATABASE_DRIVER"
	databaseDSNEnv     = "DATABASE_DSN"
	openAIKeyEnv       = "OPENAI_API_KEY"
	openAIModelEnv     = "OPENAI_MODEL"
	geminiKeyEnv       = "GEMINI_API_KEY"
	llmProviderEnv     = "LLM_PROVIDER"
	botTokenEnv        = "BOT_TOKEN"
	channelRUEnv       = "CHANNEL_ID_RU"
	channelENEnv       = "CHANNEL_ID_EN"
	postToRUEnv        = "POST_TO_RU"
	postToENEnv        = "POST_TO_EN"
	sourcesLimitEnv    = "SOURCES_LIMIT"
	candidatesLimitEnv = "CANDIDATES_LIMIT"
	iherbRCodeEnv      = "IHERB_RCODE"
	logLevelEnv        = "LOG_LEVEL"
	serverAddrEnv      = "SERVER_ADDR"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	LLM       LLMConfig       `yaml:"llm"`
	Images    ImagesConfig    `yaml:"images"`
	Affiliate AffiliateConfig `yaml:"affiliate"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Server    ServerConfig    `yaml:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// Duration accepts "45s" style strings in YAML.
type Duration time.Duration

// Std converts to time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML parses a duration string or a plain number of seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = 0
		return nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes the record store connection.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// PipelineConfig tunes one enrichment pass.
type PipelineConfig struct {
	CandidatesLimit int    `yaml:"candidatesLimit"`
	SourcesLimit    int    `yaml:"sourcesLimit"`
	AllowlistPath   string `yaml:"allowlistPath"`
	VocabularyPath  string `yaml:"vocabularyPath"`
	CooldownDays    int    `yaml:"cooldownDays"`
}

// LLMConfig defines how to contact the narrative generator.
type LLMConfig struct {
	Provider    string   `yaml:"provider"`
	Endpoint    string   `yaml:"endpoint"`
	Model       string   `yaml:"model"`
	APIKey      string   `yaml:"apiKey"`
	Temperature float64  `yaml:"temperature"`
	Timeout     Duration `yaml:"timeout"`
	PromptPath  string   `yaml:"promptPath"`
}

// ImagesConfig controls the provider chain and liveness probe.
type ImagesConfig struct {
	Providers    []string `yaml:"providers"`
	ProbeTimeout Duration `yaml:"probeTimeout"`
	MinBytes     int64    `yaml:"minBytes"`
	UserAgent    string   `yaml:"userAgent"`
}

// AffiliateConfig toggles vendor links.
type AffiliateConfig struct {
	Enabled bool   `yaml:"enabled"`
	RCode   string `yaml:"rcode"`
}

// TelegramConfig wires all data required to post to channels.
type TelegramConfig struct {
	BotToken string          `yaml:"botToken"`
	APIBase  string          `yaml:"apiBase"`
	Channels []ChannelConfig `yaml:"channels"`
}

// ChannelConfig is one output channel.
type ChannelConfig struct {
	ID      string `yaml:"id"`
	Lang    string `yaml:"lang"`
	Enabled bool   `yaml:"enabled"`
}

// ServerConfig holds the HTTP trigger listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SchedulerConfig enables recurring jobs in serve mode; zero disables a job.
type SchedulerConfig struct {
	PostEvery   Duration `yaml:"postEvery"`
	EnrichEvery Duration `yaml:"enrichEvery"`
}

// ActiveChannels returns enabled channels with a non-empty id.
func (t TelegramConfig) ActiveChannels() []ChannelConfig {
	out := make([]ChannelConfig, 0, len(t.Channels))
	for _, ch := range t.Channels {
		if ch.Enabled && strings.TrimSpace(ch.ID) != "" {
			out = append(out, ch)
		}
	}
	return out
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
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(llmProviderEnv); v != "" {
		c.LLM.Provider = strings.ToLower(v)
	}
	switch c.LLM.Provider {
	case "gemini":
		if v := os.Getenv(geminiKeyEnv); v != "" {
			c.LLM.APIKey = v
		}
	default:
		if v := os.Getenv(openAIKeyEnv); v != "" {
			c.LLM.APIKey = v
		}
		if v := os.Getenv(openAIModelEnv); v != "" {
			c.LLM.Model = v
		}
	}

	if v := envInt(sourcesLimitEnv); v > 0 {
		c.Pipeline.SourcesLimit = v
	}
	if v := envInt(candidatesLimitEnv); v > 0 {
		c.Pipeline.CandidatesLimit = v
	}

	if v := os.Getenv(iherbRCodeEnv); v != "" {
		c.Affiliate.RCode = v
	}

	if v := os.Getenv(botTokenEnv); v != "" {
		c.Telegram.BotToken = v
	}
	c.Telegram.Channels = overrideChannel(c.Telegram.Channels, "ru", os.Getenv(channelRUEnv), os.Getenv(postToRUEnv), true)
	c.Telegram.Channels = overrideChannel(c.Telegram.Channels, "en", os.Getenv(channelENEnv), os.Getenv(postToENEnv), false)

	if v := os.Getenv(serverAddrEnv); v != "" {
		c.Server.Addr = v
	}
}

// overrideChannel sets the id and enabled flag of the channel for lang. An
// unset toggle keeps the file value, or defaultOn for a channel created here.
func overrideChannel(channels []ChannelConfig, lang, id, toggle string, defaultOn bool) []ChannelConfig {
	idx := -1
	for i, ch := range channels {
		if ch.Lang == lang {
			idx = i
			break
		}
	}
	if idx < 0 {
		if id == "" {
			return channels
		}
		channels = append(channels, ChannelConfig{Lang: lang, Enabled: defaultOn})
		idx = len(channels) - 1
	}
	if id != "" {
		channels[idx].ID = id
	}
	if toggle != "" {
		if defaultOn {
			channels[idx].Enabled = !isFalsy(toggle)
		} else {
			channels[idx].Enabled = isTruthy(toggle)
		}
	}
	return channels
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

func isFalsy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "false", "0", "no", "off":
		return true
	}
	return false
}

func envInt(key string) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return 0
	}
	return v
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Database.Driver != "" {
		base.Database.Driver = override.Database.Driver
	}
	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}

	if override.Pipeline.CandidatesLimit > 0 {
		base.Pipeline.CandidatesLimit = override.Pipeline.CandidatesLimit
	}
	if override.Pipeline.SourcesLimit > 0 {
		base.Pipeline.SourcesLimit = override.Pipeline.SourcesLimit
	}
	if override.Pipeline.AllowlistPath != "" {
		base.Pipeline.AllowlistPath = override.Pipeline.AllowlistPath
	}
	if override.Pipeline.VocabularyPath != "" {
		base.Pipeline.VocabularyPath = override.Pipeline.VocabularyPath
	}
	if override.Pipeline.CooldownDays > 0 {
		base.Pipeline.CooldownDays = override.Pipeline.CooldownDays
	}

	if override.LLM.Provider != "" {
		base.LLM.Provider = override.LLM.Provider
	}
	if override.LLM.Endpoint != "" {
		base.LLM.Endpoint = override.LLM.Endpoint
	}
	if override.LLM.Model != "" {
		base.LLM.Model = override.LLM.Model
	}
	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}
	if override.LLM.Temperature > 0 {
		base.LLM.Temperature = override.LLM.Temperature
	}
	if override.LLM.Timeout > 0 {
		base.LLM.Timeout = override.LLM.Timeout
	}
	if override.LLM.PromptPath != "" {
		base.LLM.PromptPath = override.LLM.PromptPath
	}

	if len(override.Images.Providers) > 0 {
		base.Images.Providers = override.Images.Providers
	}
	if override.Images.ProbeTimeout > 0 {
		base.Images.ProbeTimeout = override.Images.ProbeTimeout
	}
	if override.Images.MinBytes > 0 {
		base.Images.MinBytes = override.Images.MinBytes
	}
	if override.Images.UserAgent != "" {
		base.Images.UserAgent = override.Images.UserAgent
	}

	if override.Affiliate.Enabled {
		base.Affiliate.Enabled = true
	}
	if override.Affiliate.RCode != "" {
		base.Affiliate.RCode = override.Affiliate.RCode
	}

	if override.Telegram.BotToken != "" {
		base.Telegram.BotToken = override.Telegram.BotToken
	}
	if override.Telegram.APIBase != "" {
		base.Telegram.APIBase = override.Telegram.APIBase
	}
	if len(override.Telegram.Channels) > 0 {
		base.Telegram.Channels = override.Telegram.Channels
	}

	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}

	if override.Scheduler.PostEvery > 0 {
		base.Scheduler.PostEvery = override.Scheduler.PostEvery
	}
	if override.Scheduler.EnrichEvery > 0 {
		base.Scheduler.EnrichEvery = override.Scheduler.EnrichEvery
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Driver: "sqlite3", DSN: "file:ethnocards.db?_busy_timeout=5000"},
		Pipeline: PipelineConfig{
			CandidatesLimit: 1,
			SourcesLimit:    5,
			VocabularyPath:  "configs/effects_vocab.yaml",
			CooldownDays:    7,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Endpoint:    "https://api.openai.com/v1/chat/completions",
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			Timeout:     Duration(45 * time.Second),
		},
		Images: ImagesConfig{
			Providers:    []string{"inaturalist", "openverse", "unsplash", "flickr"},
			ProbeTimeout: Duration(5 * time.Second),
			MinBytes:     1000,
			UserAgent:    "EthnoCards/1.0",
		},
		Affiliate: AffiliateConfig{Enabled: true, RCode: "AWS0707"},
		Server:    ServerConfig{Addr: ":8080"},
	}
}
