package pe4kin

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads a YAML configuration file, applying PE4KIN_* environment
// overrides (PE4KIN_UPSTREAM, PE4KIN_POOL_SIZE, ...), and validates the
// result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	v.SetEnvPrefix("PE4KIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so environment overrides apply even when
// the config file omits them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("upstream", "")
	v.SetDefault("proxy", "")
	v.SetDefault("pool_size", 0)
	v.SetDefault("request_timeout", time.Duration(0))
	v.SetDefault("checkout_wait", time.Duration(0))
	v.SetDefault("dial_timeout", time.Duration(0))
	v.SetDefault("rate", 0)
	v.SetDefault("tls.insecure_skip_verify", false)
	v.SetDefault("tls.server_name", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.protocol", "")
	v.SetDefault("tracing.service_name", "")
	v.SetDefault("tracing.sample_rate", 0.0)
	v.SetDefault("tracing.insecure", false)
	v.SetDefault("tracing.propagate", false)
}

// rawConfig mirrors Config with durations as strings so YAML like "5s" and
// "2500ms" parses naturally.
type rawConfig struct {
	Upstream       string        `yaml:"upstream"`
	Proxy          string        `yaml:"proxy"`
	PoolSize       int           `yaml:"pool_size"`
	RequestTimeout string        `yaml:"request_timeout"`
	CheckoutWait   string        `yaml:"checkout_wait"`
	DialTimeout    string        `yaml:"dial_timeout"`
	Rate           int           `yaml:"rate"`
	TLS            TLSConfig     `yaml:"tls"`
	Tracing        TracingConfig `yaml:"tracing"`
}

// ConfigFromYAML parses configuration from in-memory YAML and validates it.
func ConfigFromYAML(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	cfg := Config{
		UpstreamURL: raw.Upstream,
		ProxyURL:    raw.Proxy,
		PoolSize:    raw.PoolSize,
		Rate:        raw.Rate,
		TLS:         raw.TLS,
		Tracing:     raw.Tracing,
	}

	for _, field := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"request_timeout", raw.RequestTimeout, &cfg.RequestTimeout},
		{"checkout_wait", raw.CheckoutWait, &cfg.CheckoutWait},
		{"dial_timeout", raw.DialTimeout, &cfg.DialTimeout},
	} {
		if field.value == "" {
			continue
		}
		d, err := time.ParseDuration(field.value)
		if err != nil {
			return nil, fmt.Errorf("parse config yaml: %s: %w", field.name, err)
		}
		*field.dst = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
