package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrMissingAPIKey is returned when GEMINI_API_KEY is not set
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY environment variable is required")

// Config holds all server configuration
type Config struct {
	Mode string `mapstructure:"mode"`
	Port int    `mapstructure:"port"`

	GeminiAPIKey  string `mapstructure:"gemini_api_key"`
	GeminiModel   string `mapstructure:"gemini_model"`
	AudioMIMEType string `mapstructure:"audio_mime_type"`

	TranslationTimeout        time.Duration `mapstructure:"translation_timeout"`
	MaxConcurrentTranslations int64         `mapstructure:"max_concurrent_translations"`
	AudioQueueChunks          int           `mapstructure:"audio_queue_chunks"`
	MaxBufferSize             int           `mapstructure:"max_buffer_size"` // pending audio bytes per sender
	MaxMessageSize            int64         `mapstructure:"max_message_size"`

	MaxSessions     int           `mapstructure:"max_sessions"`
	KeepAlivePeriod time.Duration `mapstructure:"keepalive_period"`
	SessionTimeout  time.Duration `mapstructure:"session_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`

	RedisURL      string `mapstructure:"redis_url"`
	RedisPassword string `mapstructure:"redis_password"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`
}

var defaults = map[string]any{
	"mode":                        "release",
	"port":                        3001,
	"gemini_api_key":              "",
	"gemini_model":                "gemini-2.0-flash",
	"audio_mime_type":             "audio/wav",
	"translation_timeout":         "30s",
	"max_concurrent_translations": 16,
	"audio_queue_chunks":          8,
	"max_buffer_size":             5 * 1024 * 1024,
	"max_message_size":            1024 * 1024,
	"max_sessions":                100,
	"keepalive_period":            "30s",
	"session_timeout":             "30m",
	"allowed_origins":             []string{"*"},
	"redis_url":                   "",
	"redis_password":              "",
	"log_level":                   "info",
	"log_format":                  "console",
	"log_file":                    "",
}

// Load reads configuration from .env, the environment, an optional YAML file
// and command line args, in increasing order of precedence.
func Load(args []string) (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("callbridge", pflag.ContinueOnError)
	configFile := fs.StringP("config", "c", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	fs.IntP("port", "p", 3001, "listen port")
	fs.StringP("log-level", "l", "info", "log level")
	fs.String("log-format", "console", "log format (console or json)")
	fs.String("mode", "release", "gin mode (release or debug)")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	for key, flag := range map[string]string{
		"port":       "port",
		"log_level":  "log-level",
		"log_format": "log-format",
		"mode":       "mode",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", *configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.AllowedOrigins = splitOrigins(cfg.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required keys and limits
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	for name, value := range map[string]int64{
		"MAX_CONCURRENT_TRANSLATIONS": c.MaxConcurrentTranslations,
		"AUDIO_QUEUE_CHUNKS":          int64(c.AudioQueueChunks),
		"MAX_BUFFER_SIZE":             int64(c.MaxBufferSize),
		"MAX_MESSAGE_SIZE":            c.MaxMessageSize,
		"MAX_SESSIONS":                int64(c.MaxSessions),
	} {
		if value <= 0 {
			return fmt.Errorf("invalid %s: must be positive, got %d", name, value)
		}
	}
	for name, value := range map[string]time.Duration{
		"TRANSLATION_TIMEOUT": c.TranslationTimeout,
		"KEEPALIVE_PERIOD":    c.KeepAlivePeriod,
		"SESSION_TIMEOUT":     c.SessionTimeout,
	} {
		if value <= 0 {
			return fmt.Errorf("invalid %s: must be positive, got %s", name, value)
		}
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q: must be 'console' or 'json'", c.LogFormat)
	}
	switch c.Mode {
	case "release", "debug", "test":
	default:
		return fmt.Errorf("invalid MODE %q", c.Mode)
	}
	return nil
}

// Addr is the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// ALLOWED_ORIGINS arrives as one comma-separated string from the environment.
func splitOrigins(in []string) []string {
	var out []string
	for _, item := range in {
		for _, origin := range strings.Split(item, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				out = append(out, origin)
			}
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
