package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"plume/pkg/utils"
)

// Version is reported by `plumefed version` and in the default User-Agent
const Version = "0.4.0"

type Config struct {
	Instance   InstanceConfig   `json:"instance" yaml:"instance"`
	Server     ServerConfig     `json:"server" yaml:"server"`
	Federation FederationConfig `json:"federation" yaml:"federation"`
}

type InstanceConfig struct {
	// Domain is the host of this instance; recipients on it are local
	Domain  string `json:"domain" yaml:"domain"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	KeyPath string `json:"key_path" yaml:"key_path"`
	KeyID   string `json:"key_id" yaml:"key_id"`
}

type ServerConfig struct {
	Address string `json:"address" yaml:"address"`
}

// FederationConfig tunes outgoing deliveries. Every attempt of one
// broadcast shares these settings.
type FederationConfig struct {
	Proxy           string        `json:"proxy,omitempty" yaml:"proxy,omitempty"`
	ConnectTimeout  time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	ResponseTimeout time.Duration `json:"response_timeout" yaml:"response_timeout"`
	MaxResponseSize int64         `json:"max_response_size" yaml:"max_response_size"`
	UserAgent       string        `json:"user_agent" yaml:"user_agent"`
}

const (
	DefaultConnectTimeout  = 5 * time.Second
	DefaultResponseTimeout = 30 * time.Second
	DefaultMaxResponseSize = 1 << 20
)

func DefaultUserAgent() string {
	return "plume/" + Version
}

// Default returns a config for a single instance on localhost
func Default() *Config {
	cfg := &Config{
		Instance: InstanceConfig{
			Domain:  "localhost",
			BaseURL: "http://localhost:8080",
			KeyPath: "./data/actor.pem",
		},
		Server: ServerConfig{
			Address: ":8080",
		},
		Federation: DefaultFederation(),
	}
	cfg.complete()
	return cfg
}

func DefaultFederation() FederationConfig {
	return FederationConfig{
		ConnectTimeout:  DefaultConnectTimeout,
		ResponseTimeout: DefaultResponseTimeout,
		MaxResponseSize: DefaultMaxResponseSize,
		UserAgent:       DefaultUserAgent(),
	}
}

// complete fills values derived from others
func (c *Config) complete() {
	if c.Instance.KeyID == "" && c.Instance.BaseURL != "" {
		c.Instance.KeyID = c.ActorURL() + "#main-key"
	}
}

// ActorURL is the id of the instance actor served by `plumefed serve`
func (c *Config) ActorURL() string {
	return strings.TrimRight(c.Instance.BaseURL, "/") + "/actor"
}

// InboxURL is the inbox of the instance actor
func (c *Config) InboxURL() string {
	return strings.TrimRight(c.Instance.BaseURL, "/") + "/inbox"
}

// Validate rejects configurations a broadcast could not run with
func (c *Config) Validate() error {
	if c.Instance.Domain == "" {
		return errors.New("instance.domain is required")
	}
	if c.Instance.BaseURL != "" {
		u, err := url.Parse(c.Instance.BaseURL)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("instance.base_url %q is not an absolute URL", c.Instance.BaseURL)
		}
	}
	return c.Federation.Validate()
}

func (f *FederationConfig) Validate() error {
	if _, err := f.ProxyURL(); err != nil {
		return err
	}
	if f.ConnectTimeout <= 0 {
		return fmt.Errorf("federation.connect_timeout must be positive, got %s", f.ConnectTimeout)
	}
	if f.ResponseTimeout <= 0 {
		return fmt.Errorf("federation.response_timeout must be positive, got %s", f.ResponseTimeout)
	}
	if f.MaxResponseSize <= 0 {
		return fmt.Errorf("federation.max_response_size must be positive, got %d", f.MaxResponseSize)
	}
	return nil
}

// ProxyURL parses the configured proxy. No proxy yields nil.
func (f *FederationConfig) ProxyURL() (*url.URL, error) {
	if f.Proxy == "" {
		return nil, nil
	}
	u, err := url.Parse(f.Proxy)
	if err != nil {
		return nil, fmt.Errorf("invalid federation.proxy: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid federation.proxy %q: scheme and host required", f.Proxy)
	}
	return u, nil
}

// LoadConfig reads a JSON config file, or YAML when the file is named
// *.yaml or *.yml
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadConfigYAML(data)
	default:
		return LoadConfigEnhanced(data)
	}
}

// LoadFromEnv builds a config from PLUME_* variables over the defaults
func LoadFromEnv() (*Config, error) {
	def := Default()
	cfg := &Config{
		Instance: InstanceConfig{
			Domain:  getEnv("PLUME_DOMAIN", def.Instance.Domain),
			BaseURL: getEnv("PLUME_BASE_URL", def.Instance.BaseURL),
			KeyPath: getEnv("PLUME_KEY_PATH", def.Instance.KeyPath),
			KeyID:   os.Getenv("PLUME_KEY_ID"),
		},
		Server: ServerConfig{
			Address: getEnv("PLUME_ADDRESS", def.Server.Address),
		},
		Federation: FederationConfig{
			Proxy:     os.Getenv("PLUME_PROXY"),
			UserAgent: getEnv("PLUME_USER_AGENT", def.Federation.UserAgent),
		},
	}

	var err error
	if cfg.Federation.ConnectTimeout, err = parseDuration(os.Getenv("PLUME_CONNECT_TIMEOUT"), DefaultConnectTimeout); err != nil {
		return nil, fmt.Errorf("PLUME_CONNECT_TIMEOUT: %w", err)
	}
	if cfg.Federation.ResponseTimeout, err = parseDuration(os.Getenv("PLUME_RESPONSE_TIMEOUT"), DefaultResponseTimeout); err != nil {
		return nil, fmt.Errorf("PLUME_RESPONSE_TIMEOUT: %w", err)
	}
	cfg.Federation.MaxResponseSize = DefaultMaxResponseSize
	if v := os.Getenv("PLUME_MAX_RESPONSE_SIZE"); v != "" {
		if cfg.Federation.MaxResponseSize, err = utils.ParseDataSize(v); err != nil {
			return nil, fmt.Errorf("PLUME_MAX_RESPONSE_SIZE: %w", err)
		}
	}

	cfg.complete()
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
