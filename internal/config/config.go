package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	vlerrors "github.com/systmms/vaultlease/internal/errors"
	"github.com/systmms/vaultlease/internal/logging"
	"github.com/systmms/vaultlease/internal/metrics"
	"github.com/systmms/vaultlease/pkg/retry"
	"github.com/systmms/vaultlease/pkg/vault"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file read when no path is given.
const DefaultPath = "vaultlease.yaml"

// Environment variables that override the file.
const (
	EnvAddress   = "VAULT_ADDR"
	EnvNamespace = "VAULT_NAMESPACE"
)

// Config holds the runtime configuration
type Config struct {
	Path    string
	Logger  *logging.Logger
	Debug   bool
	NoColor bool

	Definition *Definition

	// Resolved by Load.
	timeout    time.Duration
	retry      retry.Policy
	loginRetry retry.Policy
	secretRefs []vault.SecretRef
}

// Definition represents the vaultlease.yaml structure
type Definition struct {
	Address        string                 `yaml:"address"`
	Namespace      string                 `yaml:"namespace,omitempty"`
	Timeout        string                 `yaml:"timeout,omitempty"`
	RevokeOnLogout bool                   `yaml:"revoke_on_logout,omitempty"`
	Retry          map[string]interface{} `yaml:"retry,omitempty"`
	Login          *LoginConfig           `yaml:"login,omitempty"`
	Secrets        interface{}            `yaml:"secrets,omitempty"`
	Metrics        MetricsConfig          `yaml:"metrics,omitempty"`
}

// LoginConfig selects the login backend
type LoginConfig struct {
	Backend string                 `yaml:"backend"`
	Options map[string]interface{} `yaml:"options"`
	// Retry overrides the top-level retry block for logins.
	Retry map[string]interface{} `yaml:"retry,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// Load reads and parses the vaultlease.yaml file
func (c *Config) Load() error {
	if c.Path == "" {
		c.Path = DefaultPath
	}

	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return vlerrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Create a vaultlease.yaml or pass --config",
			}
		}
		return vlerrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	return c.Parse(data)
}

// Parse loads the configuration from YAML bytes
func (c *Config) Parse(data []byte) error {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return vlerrors.ConfigError{
			Message:    fmt.Sprintf("invalid YAML syntax in configuration file: %v", err),
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters",
		}
	}

	if addr := os.Getenv(EnvAddress); addr != "" {
		def.Address = addr
	}
	if ns := os.Getenv(EnvNamespace); ns != "" {
		def.Namespace = ns
	}

	if err := c.resolve(&def); err != nil {
		return err
	}
	c.Definition = &def
	return nil
}

func (c *Config) resolve(def *Definition) error {
	c.timeout = 0
	if def.Timeout != "" {
		d, err := time.ParseDuration(def.Timeout)
		if err != nil || d < 0 {
			return vlerrors.ConfigError{
				Field:      "timeout",
				Value:      def.Timeout,
				Message:    "invalid duration",
				Suggestion: "Use a Go duration such as 30s or 1m",
			}
		}
		c.timeout = d
	}

	policy, err := retry.FromOptions(retry.DefaultPolicy(), def.Retry)
	if err != nil {
		return retryError("retry", err)
	}
	c.retry = policy

	if def.Login != nil {
		if strings.TrimSpace(def.Login.Backend) == "" {
			return vlerrors.ConfigError{
				Field:      "login.backend",
				Message:    "login backend is required",
				Suggestion: "Set login.backend to one of the names listed by 'vaultlease backends'",
			}
		}
		loginRetry, err := retry.FromOptions(policy, def.Login.Retry)
		if err != nil {
			return retryError("login.retry", err)
		}
		c.loginRetry = loginRetry
	}

	c.secretRefs = nil
	if def.Secrets != nil {
		refs, err := vault.DecodeSecretRefs(def.Secrets)
		if err != nil {
			return vlerrors.ConfigError{
				Field:      "secrets",
				Message:    err.Error(),
				Suggestion: "List secret paths, or {address, sourcePath} mappings",
			}
		}
		c.secretRefs = refs
	}

	if def.Metrics.Port < 0 || def.Metrics.Port > 65535 {
		return vlerrors.ConfigError{
			Field:   "metrics.port",
			Value:   def.Metrics.Port,
			Message: "port out of range",
		}
	}
	return nil
}

func retryError(field string, err error) error {
	return vlerrors.ConfigError{
		Field:      field,
		Message:    err.Error(),
		Suggestion: "Durations accept milliseconds or strings like 500ms and 10s",
	}
}

func (c *Config) loaded() error {
	if c.Definition == nil {
		return vlerrors.UserError{
			Message:    "Configuration not loaded",
			Suggestion: "This is an internal error. Please report it",
		}
	}
	return nil
}

// ClientConfig returns the settings for vault.New.
func (c *Config) ClientConfig() (vault.Config, error) {
	if err := c.loaded(); err != nil {
		return vault.Config{}, err
	}
	policy := c.retry
	return vault.Config{
		Address:        c.Definition.Address,
		Namespace:      c.Definition.Namespace,
		Timeout:        c.timeout,
		RevokeOnLogout: c.Definition.RevokeOnLogout,
		Retry:          &policy,
		Logger:         c.Logger,
	}, nil
}

// LoginOptions returns the configured login.
func (c *Config) LoginOptions() (*vault.LoginOptions, error) {
	if err := c.loaded(); err != nil {
		return nil, err
	}
	if c.Definition.Login == nil {
		return nil, vlerrors.ConfigError{
			Field:      "login",
			Message:    "no login configured",
			Suggestion: "Add a login block with a backend and its options",
		}
	}
	policy := c.loginRetry
	return &vault.LoginOptions{
		Backend: c.Definition.Login.Backend,
		Options: c.Definition.Login.Options,
		Retry:   &policy,
	}, nil
}

// SecretRefs returns the configured secrets to watch.
func (c *Config) SecretRefs() []vault.SecretRef {
	out := make([]vault.SecretRef, len(c.secretRefs))
	copy(out, c.secretRefs)
	return out
}

// MetricsServerConfig returns the metrics server settings, falling back to
// the defaults for anything left unset.
func (c *Config) MetricsServerConfig() metrics.ServerConfig {
	cfg := metrics.DefaultServerConfig()
	if c.Definition == nil {
		return cfg
	}
	m := c.Definition.Metrics
	cfg.Enabled = m.Enabled
	if m.Port != 0 {
		cfg.Port = m.Port
	}
	if m.Path != "" {
		cfg.Path = m.Path
	}
	return cfg
}
