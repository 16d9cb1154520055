package config

import (
	"fmt"
	"os"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Room   RoomConfig   `yaml:"room"`
}

type ServerConfig struct {
	Host string `yaml:"host" env:"ROOMCALL_HOST"`
	Port int    `yaml:"port" env:"ROOMCALL_PORT" validate:"min=1,max=65535"`

	// AllowedOrigins lists browser origins accepted on the websocket
	// handshake. Empty means same-host and localhost only.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type RoomConfig struct {
	// StartThreshold is the member count at which a room's meeting
	// timer starts, once per room lifetime.
	StartThreshold int `yaml:"start_threshold" env:"ROOMCALL_START_THRESHOLD" validate:"min=1"`

	// DurationMinutes is the meeting length announced with timer events.
	DurationMinutes int `yaml:"duration_minutes" env:"ROOMCALL_DURATION_MINUTES" validate:"min=1"`
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Room: RoomConfig{
			StartThreshold:  2,
			DurationMinutes: 60,
		},
	}
}

// Load reads the yaml file at path over the defaults, then applies
// environment overrides and validates the result. A missing file is not an
// error; the defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return nil, fmt.Errorf("config environment: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
