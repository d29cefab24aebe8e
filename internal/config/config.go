// Package config provides configuration management for boxrender using
// Viper for loading from files, environment variables, and command-line
// flags.
//
// Configuration is read from a YAML file (.boxrender.yml by default) and can
// be overridden with RENDERER_ prefixed environment variables, for example
// RENDERER_SERVER_VERIFY_HOSTNAME or RENDERER_CACHE_BACKEND. It covers the
// HTTP front end, the document store, the fallback cache, fetch timeouts and
// logging.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/boxrender/internal/cache"
	"github.com/conneroisu/boxrender/internal/logging"
	"github.com/conneroisu/boxrender/internal/store"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "RENDERER"

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Store  StoreConfig  `mapstructure:"store"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Fetch  FetchConfig  `mapstructure:"fetch"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// VerifyHostname, when set, is the only host renders are served for
	VerifyHostname string `mapstructure:"verify_hostname"`
	// VerifyPath, when set, is the only path renders are served on
	VerifyPath string `mapstructure:"verify_path"`
	// FallbackToken is used when a request carries no token
	FallbackToken   string        `mapstructure:"fallback_token"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StoreConfig struct {
	Kind      string `mapstructure:"kind"`
	APIURL    string `mapstructure:"api_url"`
	Dir       string `mapstructure:"dir"`
	UserAgent string `mapstructure:"user_agent"`
	// Debounce delays listing invalidation of the dir store after a change
	Debounce time.Duration `mapstructure:"debounce"`
}

type CacheConfig struct {
	Backend    string        `mapstructure:"backend"`
	Path       string        `mapstructure:"path"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

type FetchConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var defaults = map[string]interface{}{
	"server.host":             "0.0.0.0",
	"server.port":             8080,
	"server.verify_hostname":  "",
	"server.verify_path":      "",
	"server.fallback_token":   "",
	"server.shutdown_timeout": 10 * time.Second,
	"store.kind":              store.KindGist,
	"store.api_url":           store.DefaultGitHubAPI,
	"store.dir":               "",
	"store.user_agent":        store.DefaultUserAgent,
	"store.debounce":          200 * time.Millisecond,
	"cache.backend":           cache.BackendMemory,
	"cache.path":              "boxrender-cache.db",
	"cache.ttl":               time.Duration(0),
	"cache.max_entries":       1024,
	"fetch.timeout":           30 * time.Second,
	"log.level":               "info",
	"log.format":              "text",
}

// SetDefaults registers every key with viper. Registered keys are what
// makes environment overrides visible to Load.
func SetDefaults() {
	for key, value := range defaults {
		viper.SetDefault(key, value)
	}
}

func Load() (*Config, error) {
	SetDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Server.VerifyPath = strings.TrimSpace(config.Server.VerifyPath)
	config.Server.VerifyHostname = strings.TrimSpace(config.Server.VerifyHostname)

	// An explicitly empty user agent would make GitHub reject every call
	if config.Store.UserAgent == "" {
		config.Store.UserAgent = store.DefaultUserAgent
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validateConfig validates configuration values
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := validateStoreConfig(&config.Store); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	if err := validateCacheConfig(&config.Cache); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}
	if config.Fetch.Timeout < 0 {
		return fmt.Errorf("fetch config: timeout %s is negative", config.Fetch.Timeout)
	}
	if err := validateLogConfig(&config.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}

	return nil
}

func validateServerConfig(config *ServerConfig) error {
	// Port 0 lets the system pick one, which tests rely on
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}
	if strings.ContainsAny(config.Host, "/ ") {
		return fmt.Errorf("invalid host %q", config.Host)
	}
	if config.VerifyPath != "" && !strings.HasPrefix(config.VerifyPath, "/") {
		return fmt.Errorf("verify_path %q must start with /", config.VerifyPath)
	}
	if config.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout %s is negative", config.ShutdownTimeout)
	}

	return nil
}

func validateStoreConfig(config *StoreConfig) error {
	switch config.Kind {
	case store.KindGist:
		u, err := url.Parse(config.APIURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("api_url %q is not an http(s) URL", config.APIURL)
		}
	case store.KindDir:
		if config.Dir == "" {
			return fmt.Errorf("dir is required for the dir store")
		}
	default:
		return fmt.Errorf("unknown store kind %q", config.Kind)
	}
	if config.Debounce < 0 {
		return fmt.Errorf("debounce %s is negative", config.Debounce)
	}

	return nil
}

func validateCacheConfig(config *CacheConfig) error {
	switch config.Backend {
	case cache.BackendMemory, cache.BackendNone:
	case cache.BackendSQLite:
		if config.Path == "" {
			return fmt.Errorf("path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", config.Backend)
	}
	if config.MaxEntries < 0 {
		return fmt.Errorf("max_entries %d is negative", config.MaxEntries)
	}

	return nil
}

func validateLogConfig(config *LogConfig) error {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		return err
	}
	switch config.Format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("unknown log format %q", config.Format)
	}
}

// Addr returns the listen address
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Options converts the section into cache.Open options
func (c *CacheConfig) Options() cache.Options {
	return cache.Options{
		Backend:    c.Backend,
		Path:       c.Path,
		TTL:        c.TTL,
		MaxEntries: c.MaxEntries,
	}
}

// LoggerConfig converts the section into a logger configuration writing to
// stderr
func (c *LogConfig) LoggerConfig() *logging.LoggerConfig {
	lc := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Level); err == nil {
		lc.Level = level
	}
	lc.Format = c.Format
	return lc
}
