package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/P-eter-shi/compow/internal/utils"
)

// ServerConfig tunes the relay's transport behaviour. Durations are strings
// in the "10s"/"5m"/"1h"/"2d" format understood by utils.ParseStringTime.
type ServerConfig struct {
	MaxConnections  int     `json:"max_connections"`
	WriteBuffer     int     `json:"write_buffer"`
	ReadLimitBytes  int64   `json:"read_limit_bytes"`
	PingInterval    string  `json:"ping_interval"`
	PongTimeout     string  `json:"pong_timeout"`
	EventRate       float64 `json:"event_rate"`
	EventBurst      int     `json:"event_burst"`
	ShutdownTimeout string  `json:"shutdown_timeout"`
}

func (s ServerConfig) PingIntervalDuration() (time.Duration, error) {
	return utils.ParseStringTime(s.PingInterval)
}

func (s ServerConfig) PongTimeoutDuration() (time.Duration, error) {
	return utils.ParseStringTime(s.PongTimeout)
}

func (s ServerConfig) ShutdownTimeoutDuration() (time.Duration, error) {
	return utils.ParseStringTime(s.ShutdownTimeout)
}

type Config struct {
	Server    ServerConfig `json:"server"`
	DebugMode bool         `json:"debug_mode"`
	AppName   string       `json:"app_name"`
	AppPort   int          `json:"app_port"`
}

var config Config
var initialized = false

// DefaultConfig returns the settings the relay runs with when no config file
// exists. Unlike a database-backed service there is nothing the operator must
// fill in, so the generated file is immediately usable.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			MaxConnections:  10000,
			WriteBuffer:     64,
			ReadLimitBytes:  65536,
			PingInterval:    "50s",
			PongTimeout:     "60s",
			EventRate:       20,
			EventBurst:      40,
			ShutdownTimeout: "10s",
		},
		DebugMode: false,
		AppName:   "compow-relay",
		AppPort:   3000,
	}
}

// ReadConfigFile loads the given JSON file. If the file does not exist it is
// created with the defaults and those defaults are returned.
func ReadConfigFile(path string) (Config, error) {
	bytes, err := os.ReadFile(path)

	if err != nil {
		config = DefaultConfig()
		data, _ := json.MarshalIndent(config, "", "\t")
		if writeErr := os.WriteFile(path, data, 0644); writeErr != nil {
			return config, fmt.Errorf("unable to create configuration file %s: %w", path, writeErr)
		}
		initialized = true
		return config, nil
	}

	if err := json.Unmarshal(bytes, &config); err != nil {
		return config, errors.New("the configuration file does not contain valid JSON")
	}

	if err := validate(&config); err != nil {
		return config, err
	}

	initialized = true
	return config, nil
}

func ReadConfig() (Config, error) {
	return ReadConfigFile("config.json")
}

func GetConfig() (Config, error) {
	if initialized {
		return config, nil
	}
	return ReadConfig()
}

// validate fills zero values with defaults and checks the duration strings so
// a bad config fails at startup rather than mid-connection.
func validate(cfg *Config) error {
	defaults := DefaultConfig()
	if cfg.AppName == "" {
		cfg.AppName = defaults.AppName
	}
	if cfg.AppPort == 0 {
		cfg.AppPort = defaults.AppPort
	}
	if cfg.Server.MaxConnections == 0 {
		cfg.Server.MaxConnections = defaults.Server.MaxConnections
	}
	if cfg.Server.WriteBuffer == 0 {
		cfg.Server.WriteBuffer = defaults.Server.WriteBuffer
	}
	if cfg.Server.ReadLimitBytes == 0 {
		cfg.Server.ReadLimitBytes = defaults.Server.ReadLimitBytes
	}
	if cfg.Server.PingInterval == "" {
		cfg.Server.PingInterval = defaults.Server.PingInterval
	}
	if cfg.Server.PongTimeout == "" {
		cfg.Server.PongTimeout = defaults.Server.PongTimeout
	}
	if cfg.Server.EventRate == 0 {
		cfg.Server.EventRate = defaults.Server.EventRate
	}
	if cfg.Server.EventBurst == 0 {
		cfg.Server.EventBurst = defaults.Server.EventBurst
	}
	if cfg.Server.ShutdownTimeout == "" {
		cfg.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}
	for _, field := range []string{cfg.Server.PingInterval, cfg.Server.PongTimeout, cfg.Server.ShutdownTimeout} {
		if _, err := utils.ParseStringTime(field); err != nil {
			return fmt.Errorf("invalid duration in configuration: %w", err)
		}
	}
	return nil
}
