package client

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the client settings read from the environment.
type Config struct {
	Colours     bool          `envconfig:"CHAT_COLOURS" default:"true"`
	DialTimeout time.Duration `envconfig:"CHAT_DIAL_TIMEOUT" default:"5s"`
	LogLevel    string        `envconfig:"LOG_LEVEL" default:"ERROR"`
}

// LoadConfig reads Config from the environment, applying defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process env vars: %w", err)
	}
	return cfg, nil
}

// Target is where and as whom the client connects.
type Target struct {
	Username string `validate:"required"`
	Host     string `validate:"required,hostname_rfc1123|ip"`
	Port     int    `validate:"min=1,max=65535"`
}

// ParseTarget builds a Target from the three positional arguments.
func ParseTarget(username, host, port string) (Target, error) {
	p, err := strconv.Atoi(port)
	if err != nil {
		return Target{}, fmt.Errorf("%w: port %q is not a number", ErrInvalidArgs, port)
	}

	t := Target{Username: username, Host: host, Port: p}
	if err := validator.New().Struct(t); err != nil {
		return Target{}, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return t, nil
}

// Address is the host:port to dial.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}
