package pe4kin

import (
	"fmt"
	"strings"
	"time"

	"github.com/elmirk/pe4kin/internal/endpoint"
)

// Config describes one upstream API client: where to connect, how many
// connections to keep, and how long to wait at each suspension point.
type Config struct {
	// UpstreamURL is the API endpoint, scheme://host[:port] with scheme
	// http or https.
	UpstreamURL string `mapstructure:"upstream" yaml:"upstream"`

	// ProxyURL, when set, routes every connection through this forward
	// proxy using CONNECT tunneling.
	ProxyURL string `mapstructure:"proxy" yaml:"proxy"`

	// PoolSize bounds the number of live connections. Zero means 10.
	PoolSize int `mapstructure:"pool_size" yaml:"pool_size"`

	// RequestTimeout bounds each response await (headers, then body).
	// Zero means 5 seconds.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	// CheckoutWait bounds the wait for a pooled connection. Zero means
	// 5 seconds.
	CheckoutWait time.Duration `mapstructure:"checkout_wait" yaml:"checkout_wait"`

	// DialTimeout bounds connection establishment. Zero means 30 seconds.
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`

	// Rate paces outgoing requests in requests per second. Zero disables
	// pacing.
	Rate int `mapstructure:"rate" yaml:"rate"`

	TLS     TLSConfig     `mapstructure:"tls" yaml:"tls"`
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// TLSConfig adjusts the client TLS handshake for https upstreams.
type TLSConfig struct {
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	ServerName         string `mapstructure:"server_name" yaml:"server_name"`
}

// TracingConfig controls OpenTelemetry span export for requests.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	Protocol    string  `mapstructure:"protocol" yaml:"protocol"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`
	Propagate   bool    `mapstructure:"propagate" yaml:"propagate"`
}

const (
	defaultPoolSize       = 10
	defaultRequestTimeout = 5000 * time.Millisecond
	defaultCheckoutWait   = 5 * time.Second
	defaultDialTimeout    = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.PoolSize == 0 {
		c.PoolSize = defaultPoolSize
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.CheckoutWait == 0 {
		c.CheckoutWait = defaultCheckoutWait
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaultDialTimeout
	}
	return c
}

// ValidationError aggregates every problem found in a Config.
type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

// Issues returns the individual validation problems.
func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate checks the configuration, returning a ValidationError listing
// every issue found.
func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.UpstreamURL) == "" {
		issues = append(issues, "upstream is required")
	} else if _, err := endpoint.Parse(c.UpstreamURL); err != nil {
		issues = append(issues, fmt.Sprintf("upstream: %v", err))
	}

	if strings.TrimSpace(c.ProxyURL) != "" {
		if _, err := endpoint.Parse(c.ProxyURL); err != nil {
			issues = append(issues, fmt.Sprintf("proxy: %v", err))
		}
	}

	if c.PoolSize < 0 {
		issues = append(issues, "pool_size must be >= 0")
	}
	if c.RequestTimeout < 0 {
		issues = append(issues, "request_timeout must be >= 0")
	}
	if c.CheckoutWait < 0 {
		issues = append(issues, "checkout_wait must be >= 0")
	}
	if c.DialTimeout < 0 {
		issues = append(issues, "dial_timeout must be >= 0")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
		issues = append(issues, "tracing.sample_rate must be between 0.0 and 1.0")
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}
