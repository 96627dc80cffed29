// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chat service.
package server

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"github.com/Tyrowin/packetchat/internal/protocol"
)

const (
	defaultAllowedOrigins  = "http://localhost:8080"
	defaultReadChunkSize   = 1028
	defaultEventBacklog    = 1024
	defaultSendQueueSize   = 256
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultRateLimitBurst  = 20
	defaultCensorCharacter = "*"
	defaultLogLevel        = "INFO"
)

var validate = validator.New()

// RateLimitConfig defines the parameters for per-session packet rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration. Everything but Port is read from the
// environment; Port comes from the command line.
type Config struct {
	Port                    int           `validate:"min=1,max=65535"`
	Host                    string        `env:"CHAT_HOST"`
	HTTPAddr                string        `env:"HTTP_ADDR"`
	AllowedOrigins          string        `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	ReadChunkSize           int           `env:"READ_CHUNK_SIZE,default=1028" validate:"min=1"`
	EventBacklog            int           `env:"EVENT_BACKLOG,default=1024" validate:"min=1"`
	SendQueueSize           int           `env:"SEND_QUEUE_SIZE,default=256" validate:"min=1"`
	MaxPayloadSize          int           `env:"MAX_PAYLOAD_SIZE,default=65535" validate:"min=1,max=65535"`
	WriteTimeout            time.Duration `env:"WRITE_TIMEOUT,default=10s" validate:"gt=0"`
	ShutdownTimeout         time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s" validate:"gt=0"`
	RateLimitBurst          int           `env:"RATE_LIMIT_BURST,default=20" validate:"min=1"`
	RateLimitRefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s" validate:"gt=0"`
	CensoredWords           string        `env:"CENSORED_WORDS"`
	CensorCharacter         string        `env:"CENSOR_CHARACTER,default=*"`
	LogLevel                string        `env:"LOG_LEVEL,default=INFO" validate:"required"`
}

// DefaultConfig returns a Config populated with default values for all settings.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins:          defaultAllowedOrigins,
		ReadChunkSize:           defaultReadChunkSize,
		EventBacklog:            defaultEventBacklog,
		SendQueueSize:           defaultSendQueueSize,
		MaxPayloadSize:          protocol.MaxPayloadSize,
		WriteTimeout:            defaultWriteTimeout,
		ShutdownTimeout:         defaultShutdownTimeout,
		RateLimitBurst:          defaultRateLimitBurst,
		RateLimitRefillInterval: time.Second,
		CensorCharacter:         defaultCensorCharacter,
		LogLevel:                defaultLogLevel,
	}
}

// LoadConfig reads the configuration from the environment (and an optional
// .env file) for a server listening on port.
func LoadConfig(port int) (Config, error) {
	// a missing .env file is the common case
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	cfg.Port = port

	cfg = sanitizeConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and the censor character.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := CharacterRune(c.CensorCharacter); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func sanitizeConfig(cfg Config) Config {
	defaults := DefaultConfig()

	if cfg.ReadChunkSize <= 0 {
		cfg.ReadChunkSize = defaults.ReadChunkSize
	}
	if cfg.EventBacklog <= 0 {
		cfg.EventBacklog = defaults.EventBacklog
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = defaults.SendQueueSize
	}
	if cfg.MaxPayloadSize <= 0 {
		cfg.MaxPayloadSize = defaults.MaxPayloadSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = defaults.RateLimitBurst
	}
	if cfg.RateLimitRefillInterval <= 0 {
		cfg.RateLimitRefillInterval = defaults.RateLimitRefillInterval
	}
	if cfg.CensorCharacter == "" {
		cfg.CensorCharacter = defaults.CensorCharacter
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}
	return cfg
}

// ListenAddr is the TCP address the chat listener binds to.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// RateLimit groups the rate limiting settings.
func (c Config) RateLimit() RateLimitConfig {
	return RateLimitConfig{Burst: c.RateLimitBurst, RefillInterval: c.RateLimitRefillInterval}
}

// Origins returns the WebSocket origin allow-list.
func (c Config) Origins() []string {
	return splitList(c.AllowedOrigins)
}

// Censored returns the moderation dictionary.
func (c Config) Censored() []string {
	if strings.TrimSpace(c.CensoredWords) == "" {
		return nil
	}
	return splitList(c.CensoredWords)
}

// Logger builds the structured logger matching LogLevel.
func (c Config) Logger() *slog.Logger {
	return logs.GetLoggerFromString(c.LogLevel)
}

// CharacterRune converts a one character setting into a rune.
func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CENSOR_CHARACTER must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for i := range parts {
		if trimmed := strings.TrimSpace(parts[i]); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
