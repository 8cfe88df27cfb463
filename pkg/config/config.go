package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	xdgAppName = "tasksync"
	configFile = "config.yaml"
	envPrefix  = "TASKSYNC"
	vaultEnv   = "OBSIDIAN_VAULT_ROOT"
)

const (
	BackendCommand = "command"
	BackendGoogle  = "google"
)

// CategoryRule routes tasks whose section header or inline tag contains
// Keyword to the external list List.
type CategoryRule struct {
	Keyword string `mapstructure:"keyword"`
	List    string `mapstructure:"list"`
}

type LoggingConfig struct {
	Dir           string `mapstructure:"dir"`
	Level         string `mapstructure:"level"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type GoogleConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	TokenFile       string `mapstructure:"token_file"`
	ListCacheFile   string `mapstructure:"list_cache_file"`
}

type Config struct {
	VaultRoot        string         `mapstructure:"vault_root"`
	DailyDir         string         `mapstructure:"daily_dir"`
	StateFile        string         `mapstructure:"state_file"`
	TombstoneFile    string         `mapstructure:"tombstone_file"`
	Backend          string         `mapstructure:"backend"`
	Command          []string       `mapstructure:"command"`
	CallTimeout      time.Duration  `mapstructure:"call_timeout"`
	SubtaskProximity int            `mapstructure:"subtask_proximity"`
	DefaultCategory  string         `mapstructure:"default_category"`
	Categories       []CategoryRule `mapstructure:"categories"`
	Logging          LoggingConfig  `mapstructure:"logging"`
	Google           GoogleConfig   `mapstructure:"google"`
}

// Dir returns the directory holding the config file and, by default, all
// state files.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper, dir string) {
	v.SetDefault("vault_root", "")
	v.SetDefault("daily_dir", "4-Daily")
	v.SetDefault("state_file", filepath.Join(dir, "sync-state.json"))
	v.SetDefault("tombstone_file", filepath.Join(dir, "pending-deletes.json"))
	v.SetDefault("backend", BackendCommand)
	v.SetDefault("command", []string{"python3", filepath.Join(dir, "reminders_manager.py")})
	v.SetDefault("call_timeout", 30*time.Second)
	v.SetDefault("subtask_proximity", 10)
	v.SetDefault("default_category", "Personal")
	v.SetDefault("categories", []map[string]string{})
	v.SetDefault("logging.dir", filepath.Join(dir, "logs"))
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.retention_days", 7)
	v.SetDefault("google.credentials_file", filepath.Join(dir, "credentials.json"))
	v.SetDefault("google.token_file", filepath.Join(dir, "token.json"))
	v.SetDefault("google.list_cache_file", filepath.Join(dir, "lists.json"))
}

// Load reads the config file at path, or the default location when path is
// empty. A missing file is not an error. Environment variables prefixed with
// TASKSYNC_ override file values.
func Load(path string) (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	v := viper.New()
	SetDefaults(v, dir)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(dir, configFile)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || (!errors.As(err, &notFound) && !os.IsNotExist(err)) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.VaultRoot == "" {
		cfg.VaultRoot = os.Getenv(vaultEnv)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendCommand:
		if len(c.Command) == 0 {
			return errors.New("config: command backend needs a command")
		}
	case BackendGoogle:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("config: call_timeout must be positive, got %s", c.CallTimeout)
	}
	for i, rule := range c.Categories {
		if rule.Keyword == "" || rule.List == "" {
			return fmt.Errorf("config: category rule %d needs keyword and list", i)
		}
	}
	return nil
}

// DailyNotePath returns the note for the day of t, <vault>/<daily_dir>/YYYY-MM-DD.md.
func (c *Config) DailyNotePath(t time.Time) (string, error) {
	if c.VaultRoot == "" {
		return "", fmt.Errorf("config: vault_root is not set (or export %s)", vaultEnv)
	}
	dir := c.DailyDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(c.VaultRoot, dir)
	}
	return filepath.Join(dir, t.Format("2006-01-02")+".md"), nil
}
