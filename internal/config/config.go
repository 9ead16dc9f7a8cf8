// Package config loads and stores CLI configuration in the XDG config dir.
// Only non-secret settings are kept here; secrets go to the OS keychain.
//
// Values come from, in increasing precedence: defaults, the YAML config file,
// and FHIRQ_* environment variables (FHIRQ_CACHE_BACKEND for cache.backend).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"fhirq/cli/internal/cache"
	"fhirq/cli/internal/errors"
	"fhirq/cli/internal/xdg"
)

// Config holds non-sensitive CLI settings.
type Config struct {
	Environment string        `mapstructure:"environment" yaml:"environment,omitempty"`
	APIURL      string        `mapstructure:"api_url" yaml:"api_url,omitempty"`
	FHIRURL     string        `mapstructure:"fhir_url" yaml:"fhir_url,omitempty"`
	Account     string        `mapstructure:"account" yaml:"account,omitempty"`
	Project     string        `mapstructure:"project" yaml:"project,omitempty"`
	LogLevel    string        `mapstructure:"log_level" yaml:"log_level"`
	PageSize    int           `mapstructure:"page_size" yaml:"page_size"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Cache       CacheConfig   `mapstructure:"cache" yaml:"cache"`
}

// CacheConfig selects the result cache.
type CacheConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Dir     string `mapstructure:"dir" yaml:"dir,omitempty"`
}

// Defaults.
const (
	DefaultLogLevel = "warn"
	DefaultPageSize = 1000
	DefaultTimeout  = 30 * time.Second
	MaxPageSize     = 10000
)

var defaults = map[string]any{
	"environment":   "",
	"api_url":       "",
	"fhir_url":      "",
	"account":       "",
	"project":       "",
	"log_level":     DefaultLogLevel,
	"page_size":     DefaultPageSize,
	"timeout":       DefaultTimeout.String(),
	"cache.backend": cache.BackendFile,
	"cache.dir":     "",
}

// Keys lists the settable keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DefaultPath returns the config file path in the XDG config dir.
func DefaultPath() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads configuration from path, or DefaultPath when empty. A missing file
// yields defaults overlaid with the environment.
func Load(path string) (Config, error) {
	var c Config
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return c, errors.Wrap(errors.Config, "resolve config dir", err)
		}
		path = p
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("FHIRQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
		// Bind explicitly so Unmarshal sees env-only values.
		_ = v.BindEnv(k)
	}

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return c, errors.Wrap(errors.Config, "read "+path, err)
		}
	} else if !os.IsNotExist(err) {
		return c, errors.Wrap(errors.Config, "stat "+path, err)
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, errors.Wrap(errors.Config, "decode config", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Save writes c to path (DefaultPath when empty) with 0600 permissions.
func Save(path string, c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return errors.Wrap(errors.Config, "resolve config dir", err)
		}
		path = p
	}
	b, err := yaml.Marshal(fileView(c))
	if err != nil {
		return errors.Wrap(errors.Config, "encode config", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return errors.Wrap(errors.Config, "write "+path, err)
	}
	return nil
}

// fileView is c as stored on disk, with the timeout as a duration string.
func fileView(c Config) map[string]any {
	out := map[string]any{
		"log_level": c.LogLevel,
		"page_size": c.PageSize,
		"timeout":   c.Timeout.String(),
		"cache":     c.Cache,
	}
	for k, v := range map[string]string{
		"environment": c.Environment,
		"api_url":     c.APIURL,
		"fhir_url":    c.FHIRURL,
		"account":     c.Account,
		"project":     c.Project,
	} {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return errors.Newf(errors.Config, "invalid log_level %q", c.LogLevel)
	}
	if c.PageSize < 1 || c.PageSize > MaxPageSize {
		return errors.Newf(errors.Config, "page_size must be between 1 and %d, got %d", MaxPageSize, c.PageSize)
	}
	if c.Timeout <= 0 {
		return errors.Newf(errors.Config, "timeout must be positive, got %s", c.Timeout)
	}
	switch c.Cache.Backend {
	case cache.BackendFile, cache.BackendSQLite, cache.BackendNone:
	default:
		return errors.Newf(errors.Config, "unknown cache.backend %q (file, sqlite, none)", c.Cache.Backend)
	}
	return nil
}

// Get returns the value of key as a string.
func (c Config) Get(key string) (string, error) {
	switch key {
	case "environment":
		return c.Environment, nil
	case "api_url":
		return c.APIURL, nil
	case "fhir_url":
		return c.FHIRURL, nil
	case "account":
		return c.Account, nil
	case "project":
		return c.Project, nil
	case "log_level":
		return c.LogLevel, nil
	case "page_size":
		return strconv.Itoa(c.PageSize), nil
	case "timeout":
		return c.Timeout.String(), nil
	case "cache.backend":
		return c.Cache.Backend, nil
	case "cache.dir":
		return c.Cache.Dir, nil
	}
	return "", unknownKey(key)
}

// Set parses value into key.
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "environment":
		c.Environment = value
	case "api_url":
		c.APIURL = value
	case "fhir_url":
		c.FHIRURL = value
	case "account":
		c.Account = value
	case "project":
		c.Project = value
	case "log_level":
		c.LogLevel = strings.ToLower(value)
	case "page_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return errors.Wrap(errors.Config, "page_size", err)
		}
		c.PageSize = n
	case "timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return errors.Wrap(errors.Config, "timeout", err)
		}
		c.Timeout = d
	case "cache.backend":
		c.Cache.Backend = strings.ToLower(value)
	case "cache.dir":
		c.Cache.Dir = value
	default:
		return unknownKey(key)
	}
	return c.Validate()
}

func unknownKey(key string) error {
	return errors.Newf(errors.Config, "unknown key %q (known: %s)", key, strings.Join(Keys(), ", "))
}

// CacheDir returns the configured cache directory or the XDG default.
func (c Config) CacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.Cache.Dir, nil
	}
	dir, err := xdg.CacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve cache dir: %w", err)
	}
	return filepath.Join(dir, "results"), nil
}
