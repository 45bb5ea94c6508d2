package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Phabricator PhabricatorConfig `mapstructure:"phabricator"`
	Submit      SubmitConfig      `mapstructure:"submit"`
	Git         GitConfig         `mapstructure:"git"`
	Output      OutputConfig      `mapstructure:"output"`
}

// PhabricatorConfig contains Phabricator connection settings
type PhabricatorConfig struct {
	URL        string `mapstructure:"url"`
	APIToken   string `mapstructure:"apiToken"`
	Timeout    string `mapstructure:"timeout"`
	MaxRetries int    `mapstructure:"maxRetries"`
}

// SubmitConfig contains submission settings
type SubmitConfig struct {
	AutoSubmit     bool `mapstructure:"autoSubmit"`
	AlwaysBlocking bool `mapstructure:"alwaysBlocking"`
	WarnUntracked  bool `mapstructure:"warnUntracked"`
	// MaxStackSize guards against submitting a stack selected from the
	// wrong upstream.
	MaxStackSize int `mapstructure:"maxStackSize"`
}

// GitConfig contains local repository settings
type GitConfig struct {
	// Remote overrides upstream detection when selecting the default
	// commit range.
	Remote string `mapstructure:"remote"`
}

// OutputConfig contains output preferences
type OutputConfig struct {
	Verbose bool `mapstructure:"verbose"`
	Quiet   bool `mapstructure:"quiet"`
	JSON    bool `mapstructure:"json"`
	Color   bool `mapstructure:"color"`
}

var (
	// cfg holds the loaded configuration
	cfg *Config
	// v is the viper instance
	v *viper.Viper
)

// Load loads the configuration from files and environment variables
func Load() (*Config, error) {
	v = viper.New()

	setDefaults(v)

	v.SetConfigName(".moz-review")
	v.SetConfigType("json")

	// Config search paths
	v.AddConfigPath(".")                        // Current directory
	v.AddConfigPath("$HOME/.config/moz-review") // User config directory
	v.AddConfigPath("/etc/moz-review")          // System-wide config

	// Read in environment variables with MOZREVIEW_ prefix; nested keys
	// map dots to underscores (phabricator.apitoken ->
	// MOZREVIEW_PHABRICATOR_APITOKEN)
	v.SetEnvPrefix("MOZREVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Try to read config file (ignore error if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults
	}

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Get returns the loaded configuration
func Get() *Config {
	if cfg == nil {
		// If config hasn't been loaded, load it with defaults
		cfg, _ = Load()
	}
	return cfg
}

// GetConfigFilePath returns the path to the config file being used
func GetConfigFilePath() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// SetAutoSubmit persists the submit.autoSubmit setting. Used when the user
// answers "Always" at the confirmation prompt.
func SetAutoSubmit(value bool) error {
	if v == nil {
		if _, err := Load(); err != nil {
			return err
		}
	}
	v.Set("submit.autoSubmit", value)
	if cfg != nil {
		cfg.Submit.AutoSubmit = value
	}
	if v.ConfigFileUsed() == "" {
		return v.SafeWriteConfig()
	}
	return v.WriteConfig()
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Phabricator defaults
	v.SetDefault("phabricator.url", "https://phabricator.services.mozilla.com")
	v.SetDefault("phabricator.apiToken", "")
	v.SetDefault("phabricator.timeout", "30s")
	v.SetDefault("phabricator.maxRetries", 3)

	// Submit defaults
	v.SetDefault("submit.autoSubmit", false)
	v.SetDefault("submit.alwaysBlocking", false)
	v.SetDefault("submit.warnUntracked", true)
	v.SetDefault("submit.maxStackSize", 100)

	// Git defaults
	v.SetDefault("git.remote", "")

	// Output defaults
	v.SetDefault("output.verbose", false)
	v.SetDefault("output.quiet", false)
	v.SetDefault("output.json", false)
	v.SetDefault("output.color", true)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Phabricator.URL == "" {
		return fmt.Errorf("phabricator.url is required")
	}
	u, err := url.Parse(c.Phabricator.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid phabricator.url: %s", c.Phabricator.URL)
	}

	if c.Phabricator.Timeout != "" {
		if _, err := time.ParseDuration(c.Phabricator.Timeout); err != nil {
			return fmt.Errorf("invalid phabricator.timeout: %s", c.Phabricator.Timeout)
		}
	}

	if c.Phabricator.MaxRetries < 0 {
		return fmt.Errorf("phabricator.maxRetries must not be negative")
	}

	if c.Submit.MaxStackSize < 1 {
		return fmt.Errorf("submit.maxStackSize must be at least 1")
	}

	return nil
}

// TimeoutDuration returns the configured request timeout
func (c *PhabricatorConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
