package engine

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultRconHost        = "127.0.0.1"
	defaultRconPort        = 27015
	defaultLogPollInterval = 3 * time.Second
)

// GameConfig describes a launchable game instance. Some games cannot
// be launched by their executable alone and need the Steam fallback
// (SteamExe + AppID together); that path downgrades functionality
// since a Steam launch can neither be hijacked nor carry the RCON
// flags.
type GameConfig struct {
	ExePath         string `yaml:"exe_path"`
	GameDir         string `yaml:"game_dir"`
	SteamExe        string `yaml:"steam_exe,omitempty"`
	AppID           int    `yaml:"app_id,omitempty"`
	RconHost        string `yaml:"rcon_host,omitempty"`
	RconPort        int    `yaml:"rcon_port,omitempty"`
	LogPollInterval string `yaml:"log_poll_interval,omitempty"`
	LogLevel        string `yaml:"log_level,omitempty"`
	LogFormat       string `yaml:"log_format,omitempty"`

	logPollInterval time.Duration `yaml:"-"`
}

// UnmarshalConfig parses a YAML document into a GameConfig, rejecting
// unknown fields, and validates it.
func UnmarshalConfig(data []byte) (GameConfig, error) {
	cfg := GameConfig{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("could not parse game configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// LoadConfig reads and validates a GameConfig from a YAML file.
func LoadConfig(path string) (GameConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return GameConfig{}, fmt.Errorf("could not read %s: %w", path, err)
	}

	cfg, err := UnmarshalConfig(data)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Validate fails fast on configuration errors and applies defaults.
func (c *GameConfig) Validate() error {
	if c.ExePath == "" {
		return errors.New("exe_path is required")
	}

	if c.GameDir == "" {
		return errors.New("game_dir is required")
	}

	if (c.SteamExe == "") != (c.AppID == 0) {
		return errors.New("steam_exe and app_id must be provided together")
	}

	if c.RconHost == "" {
		c.RconHost = defaultRconHost
	}

	if c.RconPort == 0 {
		c.RconPort = defaultRconPort
	}

	c.logPollInterval = defaultLogPollInterval

	if c.LogPollInterval != "" {
		d, err := time.ParseDuration(c.LogPollInterval)
		if err != nil {
			return fmt.Errorf("invalid log_poll_interval: %w", err)
		}

		if d <= 0 {
			return errors.New("log_poll_interval must be positive")
		}

		c.logPollInterval = d
	}

	return nil
}
