package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// EnvConfigJSON is the environment variable holding an inline JSON config.
// It takes precedence over the config file.
const EnvConfigJSON = "LLM_ROUTER_CONFIG_JSON"

// EnvMasterKey overrides the config's master key when set.
const EnvMasterKey = "LLM_ROUTER_MASTER_KEY"

// Load reads the routing configuration from LLM_ROUTER_CONFIG_JSON if set,
// otherwise from the given file path. The returned config is normalized and
// validated.
func Load(path string) (*Config, error) {
	var raw []byte
	if blob := os.Getenv(EnvConfigJSON); blob != "" {
		raw = []byte(blob)
	} else {
		if path == "" {
			return nil, fmt.Errorf("no config: set %s or provide a config file path", EnvConfigJSON)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		raw = b
	}
	return Parse(raw)
}

// Parse decodes, normalizes, and validates a JSON config blob.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if key := os.Getenv(EnvMasterKey); key != "" {
		cfg.MasterKey = key
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolveAPIKey returns the provider's credential: the inline key, or the
// value of the configured environment variable.
func (p *Provider) ResolveAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	return ""
}
