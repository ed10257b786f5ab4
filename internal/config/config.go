package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/hnrobert/acctdb/internal/hostfs"
	"github.com/hnrobert/acctdb/internal/logger"
)

// DefaultPath is read when -config is not given and the file exists.
const DefaultPath = "/etc/acctdb.yaml"

type Config struct {
	// Root is the host filesystem root holding etc/passwd, etc/shadow and etc/group.
	Root string `yaml:"root" env:"ACCTDB_ROOT" env-default:"/" env-description:"host filesystem root"`
	// LockTimeout bounds the wait for .pwd.lock; lckpwdf(3) uses 15s.
	LockTimeout time.Duration `yaml:"lock_timeout" env:"ACCTDB_LOCK_TIMEOUT" env-default:"15s" env-description:"account database lock timeout"`
	// MinGID is where automatic GID allocation starts.
	MinGID int `yaml:"min_gid" env:"ACCTDB_MIN_GID" env-default:"1000" env-description:"first GID handed out automatically"`
	// VerifyWithSystemTools runs grpck/pwck on each rewritten file before it
	// is renamed into place.
	VerifyWithSystemTools bool `yaml:"verify_with_system_tools" env:"ACCTDB_VERIFY" env-description:"check rewrites with grpck/pwck"`

	Log LogConfig `yaml:"log"`
}

type LogConfig struct {
	Level   string `yaml:"level" env:"ACCTDB_LOG_LEVEL" env-default:"info"`
	Dir     string `yaml:"dir" env:"ACCTDB_LOG_DIR"`
	NoColor bool   `yaml:"no_color" env:"ACCTDB_NO_COLOR"`
}

// Load reads path (YAML) and applies ACCTDB_* environment overrides. With an
// empty path only the environment and defaults are used.
func Load(path string) (*Config, error) {
	var cfg Config
	var err error
	if path == "" {
		err = cleanenv.ReadEnv(&cfg)
	} else {
		err = cleanenv.ReadConfig(path, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with every default applied.
func Default() *Config {
	return &Config{
		Root:        hostfs.DefaultRoot,
		LockTimeout: 15 * time.Second,
		MinGID:      1000,
		Log:         LogConfig{Level: "info"},
	}
}

func (c *Config) Validate() error {
	if c.Root == "" {
		c.Root = hostfs.DefaultRoot
	}
	if !strings.HasPrefix(c.Root, "/") {
		return fmt.Errorf("invalid root %q: must be an absolute path", c.Root)
	}
	if c.LockTimeout == 0 {
		c.LockTimeout = 15 * time.Second
	}
	if c.LockTimeout < 0 {
		return errors.New("lock_timeout must be positive")
	}
	if c.MinGID < 0 {
		return fmt.Errorf("invalid min_gid %d", c.MinGID)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Apply pushes the settings into the process-wide root and logger.
func (c *Config) Apply() error {
	if err := hostfs.SetRoot(c.Root); err != nil {
		return err
	}
	lvl, err := logger.ParseLevel(c.Log.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)
	logger.SetColored(!c.Log.NoColor)
	return logger.Init(c.Log.Dir)
}

func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) Save(path string) error {
	b, err := c.Marshal()
	if err != nil {
		return err
	}
	return hostfs.WriteFileAtomic(path, b, 0o644)
}
