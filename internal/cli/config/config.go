package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	BaseURL  string         `yaml:"base_url,omitempty"`
	Parallel int            `yaml:"parallel,omitempty"`
	Defaults UploadDefaults `yaml:"defaults,omitempty"`
	Timeouts TimeoutConfig  `yaml:"timeouts,omitempty"`
}

// UploadDefaults are applied to every upload unless a flag overrides them.
// Zero values leave the server's defaults in place.
type UploadDefaults struct {
	ModelName      string   `yaml:"model_name,omitempty"`
	SamplingFactor float64  `yaml:"sampling_factor,omitempty"`
	MaxFrames      int      `yaml:"max_frames,omitempty"`
	FrameInterval  int      `yaml:"frame_interval,omitempty"`
	Extensions     []string `yaml:"extensions,omitempty"`
}

// TimeoutConfig holds durations as strings parseable by time.ParseDuration.
type TimeoutConfig struct {
	HTTP        string `yaml:"http,omitempty"`
	Upload      string `yaml:"upload,omitempty"`
	StatusWatch string `yaml:"status_watch,omitempty"`
}

const (
	DefaultBaseURL  = "http://localhost:8080"
	DefaultParallel = 2

	EnvBaseURL = "FRAMESET_URL"

	DefaultHTTPTimeout        = 30 * time.Minute
	DefaultUploadTimeout      = 30 * time.Minute
	DefaultStatusWatchTimeout = 30 * time.Minute
)

// Dir returns the config directory. FRAMESET_CONFIG_DIR overrides the
// default under the user's home.
func Dir() (string, error) {
	if dir := os.Getenv("FRAMESET_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "frameset"), nil
}

func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config file and applies the environment override.
func Load() (*Config, error) {
	cfg, err := LoadFile()
	if err != nil {
		return nil, err
	}

	// Environment takes precedence over the config file
	if envURL := os.Getenv(EnvBaseURL); envURL != "" {
		cfg.BaseURL = envURL
	}
	return cfg, nil
}

// LoadFile reads only the config file, filling defaults.
func LoadFile() (*Config, error) {
	cfg := &Config{
		BaseURL:  DefaultBaseURL,
		Parallel: DefaultParallel,
	}

	path, err := Path()
	if err != nil {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Parallel == 0 {
		cfg.Parallel = DefaultParallel
	}

	return cfg, nil
}

func (c *Config) Save() error {
	dir, err := Dir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	path, err := Path()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Set updates one setting by its YAML key. It does not save.
func (c *Config) Set(key, value string) error {
	switch key {
	case "base_url":
		if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
			return fmt.Errorf("base_url must start with http:// or https://")
		}
		c.BaseURL = strings.TrimSuffix(value, "/")
	case "parallel":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > 20 {
			return fmt.Errorf("parallel must be a number between 1 and 20")
		}
		c.Parallel = n
	case "model_name":
		c.Defaults.ModelName = value
	case "sampling_factor":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 || f > 1 {
			return fmt.Errorf("sampling_factor must be a number between 0 and 1")
		}
		c.Defaults.SamplingFactor = f
	case "max_frames":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > 500 {
			return fmt.Errorf("max_frames must be a number between 1 and 500")
		}
		c.Defaults.MaxFrames = n
	case "frame_interval":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > 10 {
			return fmt.Errorf("frame_interval must be a number between 1 and 10")
		}
		c.Defaults.FrameInterval = n
	case "extensions":
		var exts []string
		for _, e := range strings.Split(value, ",") {
			if e = strings.TrimSpace(e); e != "" {
				exts = append(exts, e)
			}
		}
		c.Defaults.Extensions = exts
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

// GetTimeout returns the configured timeout for name ("http", "upload" or
// "status_watch"), or its default when unset or unparseable.
func (c *Config) GetTimeout(name string) time.Duration {
	var configValue string
	var defaultValue time.Duration

	switch name {
	case "http":
		configValue = c.Timeouts.HTTP
		defaultValue = DefaultHTTPTimeout
	case "upload":
		configValue = c.Timeouts.Upload
		defaultValue = DefaultUploadTimeout
	case "status_watch":
		configValue = c.Timeouts.StatusWatch
		defaultValue = DefaultStatusWatchTimeout
	default:
		return DefaultHTTPTimeout
	}

	if configValue == "" {
		return defaultValue
	}

	parsed, err := time.ParseDuration(configValue)
	if err != nil {
		return defaultValue
	}
	return parsed
}
