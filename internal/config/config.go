// Package config loads client settings from parley.yaml and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable that points at the config file.
const EnvConfigPath = "PARLEY_CONFIG"

const fileName = "parley.yaml"

// Config is the full client configuration. Environment variables override
// values read from the file.
type Config struct {
	APIURL    string `yaml:"api_url" env:"PARLEY_API_URL"`
	SocketURL string `yaml:"socket_url" env:"PARLEY_SOCKET_URL"`
	UserID    string `yaml:"user_id" env:"PARLEY_USER_ID"`
	UserName  string `yaml:"user_name" env:"PARLEY_USER_NAME"`
	Token     string `yaml:"token" env:"PARLEY_TOKEN"`
	DataDir   string `yaml:"data_dir" env:"PARLEY_DATA_DIR"`

	AckTimeout time.Duration `yaml:"ack_timeout" env:"PARLEY_ACK_TIMEOUT" env-default:"15s"`

	Log       Log       `yaml:"log"`
	Persist   Persist   `yaml:"persist"`
	Reconnect Reconnect `yaml:"reconnect"`
	Metrics   Metrics   `yaml:"metrics"`
	Notify    Notify    `yaml:"notify"`
}

type Log struct {
	Level string `yaml:"level" env:"PARLEY_LOG_LEVEL" env-default:"info"`
	// Format is "console", "json", or "auto" (console on a terminal).
	Format string `yaml:"format" env:"PARLEY_LOG_FORMAT" env-default:"auto"`
}

type Persist struct {
	Debounce    time.Duration `yaml:"debounce" env:"PARLEY_PERSIST_DEBOUNCE" env-default:"1s"`
	Concurrency int           `yaml:"concurrency" env:"PARLEY_PERSIST_CONCURRENCY" env-default:"4"`
}

type Reconnect struct {
	Attempts  int           `yaml:"attempts" env:"PARLEY_RECONNECT_ATTEMPTS" env-default:"5"`
	BaseDelay time.Duration `yaml:"base_delay" env:"PARLEY_RECONNECT_BASE_DELAY" env-default:"1s"`
	MaxDelay  time.Duration `yaml:"max_delay" env:"PARLEY_RECONNECT_MAX_DELAY" env-default:"5s"`
}

type Metrics struct {
	// Addr enables the /metrics listener when set, e.g. ":9464".
	Addr string `yaml:"addr" env:"PARLEY_METRICS_ADDR"`
}

type Notify struct {
	Quiet bool `yaml:"quiet" env:"PARLEY_QUIET"`
}

// DefaultPath returns ~/.config/parley/parley.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "parley", fileName), nil
}

// ResolvePath picks the config file: the explicit path, then $PARLEY_CONFIG,
// then the default location.
func ResolvePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, nil
	}
	return DefaultPath()
}

// Load reads an optional .env from the working directory, then the config
// file at path if it exists, then the environment. A missing file is not an
// error.
func Load(path string) (Config, error) {
	_ = godotenv.Load(".env")

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
			return cfg.withDefaults(path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	return cfg.withDefaults(path)
}

func (c Config) withDefaults(path string) (Config, error) {
	if c.DataDir == "" {
		if path != "" {
			c.DataDir = filepath.Join(filepath.Dir(path), "data")
		} else {
			dir, err := os.UserConfigDir()
			if err != nil {
				return Config{}, err
			}
			c.DataDir = filepath.Join(dir, "parley", "data")
		}
	}
	if c.UserName == "" {
		c.UserName = c.UserID
	}
	return c, nil
}

// Validate reports settings required to reach the service.
func (c Config) Validate() error {
	if c.UserID == "" {
		return errors.New("user_id is required (set it in parley.yaml or PARLEY_USER_ID)")
	}
	return nil
}

// Online reports whether remote endpoints are configured.
func (c Config) Online() bool {
	return c.APIURL != "" || c.SocketURL != ""
}

// Write saves cfg as YAML at path.
func Write(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
