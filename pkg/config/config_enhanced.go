package config

import (
	"encoding/json"
	"fmt"
	"time"

	"plume/pkg/utils"

	"gopkg.in/yaml.v3"
)

// FederationConfigRaw is the JSON shape of the federation section, where
// timeouts and sizes may be numbers or human-friendly strings
type FederationConfigRaw struct {
	Proxy           string      `json:"proxy" yaml:"proxy"`
	ConnectTimeout  interface{} `json:"connect_timeout" yaml:"connect_timeout"`   // seconds or "5s"
	ResponseTimeout interface{} `json:"response_timeout" yaml:"response_timeout"` // seconds or "30s"
	MaxResponseSize interface{} `json:"max_response_size" yaml:"max_response_size"`
	UserAgent       string      `json:"user_agent" yaml:"user_agent"`
}

// ConfigRaw represents the raw file structure with flexible types
type ConfigRaw struct {
	Instance   InstanceConfig      `json:"instance" yaml:"instance"`
	Server     ServerConfig        `json:"server" yaml:"server"`
	Federation FederationConfigRaw `json:"federation" yaml:"federation"`
}

// ParseFederationConfig converts FederationConfigRaw, falling back to the
// defaults for anything left out
func ParseFederationConfig(raw FederationConfigRaw) (FederationConfig, error) {
	cfg := DefaultFederation()
	cfg.Proxy = raw.Proxy
	if raw.UserAgent != "" {
		cfg.UserAgent = raw.UserAgent
	}

	var err error
	if cfg.ConnectTimeout, err = durationValue(raw.ConnectTimeout, DefaultConnectTimeout); err != nil {
		return cfg, fmt.Errorf("invalid connect_timeout: %w", err)
	}
	if cfg.ResponseTimeout, err = durationValue(raw.ResponseTimeout, DefaultResponseTimeout); err != nil {
		return cfg, fmt.Errorf("invalid response_timeout: %w", err)
	}

	switch v := raw.MaxResponseSize.(type) {
	case float64:
		// JSON numbers are parsed as float64
		cfg.MaxResponseSize = int64(v)
	case int:
		// YAML integers
		cfg.MaxResponseSize = int64(v)
	case string:
		size, err := utils.ParseDataSize(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid max_response_size format: %w", err)
		}
		cfg.MaxResponseSize = size
	case nil:
	default:
		return cfg, fmt.Errorf("max_response_size must be a number or string, got %T", v)
	}

	return cfg, nil
}

func durationValue(v interface{}, def time.Duration) (time.Duration, error) {
	switch v := v.(type) {
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case int:
		return time.Duration(v) * time.Second, nil
	case string:
		return parseDuration(v, def)
	case nil:
		return def, nil
	default:
		return 0, fmt.Errorf("must be a number of seconds or a duration string, got %T", v)
	}
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

// LoadConfigEnhanced loads config with support for human-friendly sizes
// and durations. Sections left out keep their defaults.
func LoadConfigEnhanced(data []byte) (*Config, error) {
	raw := defaultRaw()
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return fromRaw(raw)
}

// LoadConfigYAML is LoadConfigEnhanced for YAML documents
func LoadConfigYAML(data []byte) (*Config, error) {
	raw := defaultRaw()
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return fromRaw(raw)
}

func defaultRaw() ConfigRaw {
	def := Default()
	raw := ConfigRaw{
		Instance: def.Instance,
		Server:   def.Server,
	}
	// key_id is derived from base_url unless given
	raw.Instance.KeyID = ""
	return raw
}

func fromRaw(raw ConfigRaw) (*Config, error) {
	fed, err := ParseFederationConfig(raw.Federation)
	if err != nil {
		return nil, fmt.Errorf("failed to parse federation config: %w", err)
	}

	cfg := &Config{
		Instance:   raw.Instance,
		Server:     raw.Server,
		Federation: fed,
	}
	cfg.complete()
	return cfg, nil
}

// MarshalJSON writes durations as strings so the output loads back through
// LoadConfigEnhanced unchanged
func (f FederationConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(FederationConfigRaw{
		Proxy:           f.Proxy,
		ConnectTimeout:  f.ConnectTimeout.String(),
		ResponseTimeout: f.ResponseTimeout.String(),
		MaxResponseSize: f.MaxResponseSize,
		UserAgent:       f.UserAgent,
	})
}
