package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/warden/internal/logger"
	"github.com/loykin/warden/internal/process"
	"github.com/loykin/warden/internal/retry"
)

// EndpointConfig describes the remote tool-calling endpoint and the policy
// for verifying connectivity to it.
type EndpointConfig struct {
	URL         string        `toml:"url" mapstructure:"url"`
	Token       string        `toml:"token" mapstructure:"token"`
	TokenEnv    string        `toml:"token_env" mapstructure:"token_env"` // read credential from this env var when Token is empty
	Timeout     time.Duration `toml:"timeout" mapstructure:"timeout"`
	MaxAttempts int           `toml:"max_attempts" mapstructure:"max_attempts"`
	Freshness   time.Duration `toml:"freshness" mapstructure:"freshness"`
	Strict      bool          `toml:"strict" mapstructure:"strict"` // fail closed on connectivity failure
	BackoffBase time.Duration `toml:"backoff_base" mapstructure:"backoff_base"`
	BackoffCap  time.Duration `toml:"backoff_cap" mapstructure:"backoff_cap"`
}

// Credential resolves the effective Authorization value.
func (e EndpointConfig) Credential() string {
	if e.Token != "" {
		return e.Token
	}
	if e.TokenEnv != "" {
		return os.Getenv(e.TokenEnv)
	}
	return ""
}

// Enabled reports whether connectivity verification is configured at all.
func (e EndpointConfig) Enabled() bool { return e.URL != "" }

// ServerConfig holds the status/metrics HTTP surface settings.
type ServerConfig struct {
	Addr     string `toml:"addr" mapstructure:"addr"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// HistoryConfig selects an optional event audit sink by DSN.
type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// ProcConfig is the file-level shape of one dependent process.
type ProcConfig struct {
	Name        string        `toml:"name" mapstructure:"name"`
	Command     string        `toml:"command" mapstructure:"command"`
	WorkDir     string        `toml:"workdir" mapstructure:"workdir"`
	Env         []string      `toml:"env" mapstructure:"env"`
	GracePeriod time.Duration `toml:"grace_period" mapstructure:"grace_period"`
	Log         logger.Config `toml:"log" mapstructure:"log"`
}

// Config is the top-level TOML structure.
type Config struct {
	RequiredEnv []string       `toml:"required_env" mapstructure:"required_env"`
	Env         []string       `toml:"env" mapstructure:"env"` // global KEY=VALUE entries applied to every dependent
	Log         logger.Options `toml:"log" mapstructure:"log"`
	Endpoint    EndpointConfig `toml:"endpoint" mapstructure:"endpoint"`
	Server      ServerConfig   `toml:"server" mapstructure:"server"`
	History     HistoryConfig  `toml:"history" mapstructure:"history"`
	Processes   []ProcConfig   `toml:"processes" mapstructure:"processes"`
}

// Load reads and validates a TOML config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	// viper's default decode hooks parse "15s" strings into time.Duration.
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Endpoint.Timeout <= 0 {
		c.Endpoint.Timeout = 15 * time.Second
	}
	if c.Endpoint.MaxAttempts <= 0 {
		c.Endpoint.MaxAttempts = retry.DefaultMaxAttempts
	}
	if c.Endpoint.Freshness <= 0 {
		c.Endpoint.Freshness = 30 * time.Second
	}
	if c.Endpoint.BackoffBase <= 0 {
		c.Endpoint.BackoffBase = retry.DefaultBase
	}
	if c.Endpoint.BackoffCap == 0 {
		c.Endpoint.BackoffCap = retry.DefaultCap
	}
	for i := range c.Processes {
		if c.Processes[i].GracePeriod <= 0 {
			c.Processes[i].GracePeriod = process.DefaultGracePeriod
		}
	}
}

// Validate checks the fixed set of required values. Every failure lists the
// missing/invalid field so the caller can surface them together.
func (c *Config) Validate() error {
	var problems []string
	if c.Endpoint.Enabled() && c.Endpoint.Credential() == "" {
		problems = append(problems, "endpoint.token (or endpoint.token_env) is required when endpoint.url is set")
	}
	if len(c.Processes) == 0 {
		problems = append(problems, "at least one [[processes]] entry is required")
	}
	seen := map[string]bool{}
	for i, p := range c.Processes {
		if strings.TrimSpace(p.Name) == "" {
			problems = append(problems, fmt.Sprintf("processes[%d].name is required", i))
		} else if seen[p.Name] {
			problems = append(problems, fmt.Sprintf("processes[%d].name %q is duplicated", i, p.Name))
		} else {
			seen[p.Name] = true
		}
		if strings.TrimSpace(p.Command) == "" {
			problems = append(problems, fmt.Sprintf("processes[%d].command is required", i))
		}
	}
	for _, key := range c.RequiredEnv {
		if os.Getenv(key) == "" {
			problems = append(problems, fmt.Sprintf("required environment variable %s is not set", key))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ProcessSpecs converts the file-level entries into supervisor specs,
// preserving declared order.
func (c *Config) ProcessSpecs() []process.Spec {
	specs := make([]process.Spec, 0, len(c.Processes))
	for _, p := range c.Processes {
		specs = append(specs, process.Spec{
			Name:        p.Name,
			Command:     p.Command,
			WorkDir:     p.WorkDir,
			Env:         append(append([]string(nil), c.Env...), p.Env...),
			GracePeriod: p.GracePeriod,
			Log:         p.Log,
		})
	}
	return specs
}
