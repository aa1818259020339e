package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/bselee/enviroflow/core/audit"
	"github.com/bselee/enviroflow/core/metrics"
	"github.com/bselee/enviroflow/infra/mqtt"
)

type Config struct {
	Engine      EngineConfig              `json:"engine"`
	RateLimit   RateLimitConfig           `json:"rate_limit"`
	Retry       RetryConfig               `json:"retry"`
	Audit       audit.Config              `json:"audit"`
	Metrics     metrics.Config            `json:"metrics"`
	MQTT        mqtt.Config               `json:"mqtt"`
	Adapters    map[string]map[string]any `json:"adapters"`
	Store       StoreConfig               `json:"store"`
	Credentials CredentialsConfig         `json:"credentials"`
	Sentry      SentryConfig              `json:"sentry"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Engine.SetDefaults()
	c.RateLimit.SetDefaults()
	c.Retry.SetDefaults()
	c.Audit.SetDefaults()
	c.MQTT.SetDefaults()
	c.Store.SetDefaults()
}

// Validate reports every invalid section at once.
func (c Config) Validate() error {
	var errs []error
	wrap := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}
	wrap("engine", c.Engine.Validate())
	wrap("rate_limit", c.RateLimit.Validate())
	wrap("retry", c.Retry.Validate())
	wrap("audit", c.Audit.Validate())
	wrap("mqtt", c.MQTT.Validate())
	wrap("store", c.Store.Validate())
	wrap("credentials", c.Credentials.Validate())
	return errors.Join(errs...)
}
