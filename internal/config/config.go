package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Client    ClientConfig    `mapstructure:"client"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

// UpstreamConfig points at the hosted AI service both proxies forward to.
type UpstreamConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	ImageEndpoint string        `mapstructure:"image_endpoint"`
	ChatTimeout   time.Duration `mapstructure:"chat_timeout"`
	ImageTimeout  time.Duration `mapstructure:"image_timeout"`
	Plugins       []string      `mapstructure:"plugins"`
	DebugRequest  bool          `mapstructure:"debug_request"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// AuthConfig enables Telegram Mini App init-data validation when
// TelegramBotToken is set.
type AuthConfig struct {
	TelegramBotToken string        `mapstructure:"telegram_bot_token"`
	InitDataMaxAge   time.Duration `mapstructure:"init_data_max_age"`
}

type ClientConfig struct {
	ServerURL      string        `mapstructure:"server_url"`
	PromptFile     string        `mapstructure:"prompt_file"`
	ImageDir       string        `mapstructure:"image_dir"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	InitData       string        `mapstructure:"init_data"`
}

var ErrMissingUpstream = errors.New("upstream configuration incomplete")

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 150*time.Second)
	v.SetDefault("server.max_header_bytes", 1<<20)

	v.SetDefault("upstream.base_url", "")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.image_endpoint", "")
	v.SetDefault("upstream.chat_timeout", 120*time.Second)
	v.SetDefault("upstream.image_timeout", 90*time.Second)
	v.SetDefault("upstream.plugins", []string{"web_search"})
	v.SetDefault("upstream.debug_request", false)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Authorization", "Telegram-Init-Data"})
	v.SetDefault("cors.exposed_headers", []string{"X-Request-ID"})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 43200)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests_per_minute", 30)
	v.SetDefault("rate_limit.burst", 5)

	v.SetDefault("auth.telegram_bot_token", "")
	v.SetDefault("auth.init_data_max_age", 24*time.Hour)

	v.SetDefault("client.server_url", "http://localhost:8080")
	v.SetDefault("client.prompt_file", "./data/settings.json")
	v.SetDefault("client.image_dir", "./data/images")
	v.SetDefault("client.request_timeout", 130*time.Second)
	v.SetDefault("client.init_data", "")
}

// Load reads the yaml file at configPath (optional) and overlays
// BORS_-prefixed environment variables. The three upstream values also
// fall back to AI_TEXT_BASE, AI_API_KEY and AI_IMAGE_ENDPOINT.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BORS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", configPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// config file and BORS_* win; the legacy variable names are the fallback
	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = os.Getenv("AI_TEXT_BASE")
	}
	if cfg.Upstream.APIKey == "" {
		cfg.Upstream.APIKey = os.Getenv("AI_API_KEY")
	}
	if cfg.Upstream.ImageEndpoint == "" {
		cfg.Upstream.ImageEndpoint = os.Getenv("AI_IMAGE_ENDPOINT")
	}
	cfg.Upstream.BaseURL = strings.TrimRight(cfg.Upstream.BaseURL, "/")

	return cfg, nil
}

// Validate checks the settings the proxy server cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.Upstream.BaseURL == "" {
		missing = append(missing, "base_url")
	}
	if c.Upstream.APIKey == "" {
		missing = append(missing, "api_key")
	}
	if c.Upstream.ImageEndpoint == "" {
		missing = append(missing, "image_endpoint")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMissingUpstream, strings.Join(missing, ", "))
	}
	if c.Upstream.ChatTimeout <= 0 || c.Upstream.ImageTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrMissingUpstream)
	}
	return nil
}

// ChatCompletionsURL is the upstream text endpoint.
func (u UpstreamConfig) ChatCompletionsURL() string {
	return u.BaseURL + "/chat/completions"
}
