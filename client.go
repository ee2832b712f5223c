package pe4kin

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/elmirk/pe4kin/internal/conn"
	"github.com/elmirk/pe4kin/internal/endpoint"
	"github.com/elmirk/pe4kin/internal/metrics"
	"github.com/elmirk/pe4kin/internal/multipart"
	"github.com/elmirk/pe4kin/internal/pool"
	"github.com/elmirk/pe4kin/internal/tracing"
)

// Client is a pooled HTTP client bound to one upstream API. It is safe for
// concurrent use; every request leases its own connection from the pool.
type Client struct {
	cfg       Config
	upstream  endpoint.Endpoint
	pool      *pool.Pool
	collector *metrics.Collector
	limiter   *rate.Limiter
	tracer    *tracing.Provider
}

// Start validates the configuration and builds a running client: connection
// pool, metrics collector, optional rate pacing and tracing. The returned
// handle is the only way to reach the pool; there is no process-wide
// registry.
func Start(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	upstream, err := endpoint.Parse(cfg.UpstreamURL)
	if err != nil {
		return nil, err
	}

	opts := conn.Options{DialTimeout: cfg.DialTimeout}
	poolName := upstream.Addr()
	if strings.TrimSpace(cfg.ProxyURL) != "" {
		proxy, err := endpoint.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, err
		}
		opts.Proxy = &proxy
		// The pool bounds concurrency against whatever we actually dial.
		poolName = proxy.Addr()
	}
	if cfg.TLS.InsecureSkipVerify || cfg.TLS.ServerName != "" {
		opts.TLS = tlsConfig(cfg.TLS)
	}

	tracer, err := tracing.Init(context.Background(), tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Protocol:    cfg.Tracing.Protocol,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    cfg.Tracing.Insecure,
		Propagate:   cfg.Tracing.Propagate,
	})
	if err != nil {
		return nil, err
	}

	factory := func(ctx context.Context) (pool.Member, error) {
		return conn.Open(ctx, upstream, opts)
	}

	c := &Client{
		cfg:       cfg,
		upstream:  upstream,
		pool:      pool.New(poolName, factory, cfg.PoolSize),
		collector: metrics.NewCollector(),
		tracer:    tracer,
	}
	if cfg.Rate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Rate)
	}
	return c, nil
}

// Stop tears down the client, closing all pooled connections and flushing
// pending trace spans.
func (c *Client) Stop() error {
	err := c.pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := c.tracer.Shutdown(ctx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

// Stats returns aggregated request metrics since Start.
func (c *Client) Stats() metrics.Stats {
	return c.collector.Stats()
}

// Get performs a simple request with empty headers and no body.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.execute(ctx, http.MethodGet, path, nil, nil)
}

// Post performs a request with the given headers and body. See Raw, Form,
// JSON and Multipart for the body kinds.
func (c *Client) Post(ctx context.Context, path string, headers []Header, body Body) (*Response, error) {
	return c.execute(ctx, http.MethodPost, path, headers, body)
}

// execute runs the full request lifecycle: optional pacing, checkout,
// perform, checkin. Checkin happens exactly once on every exit path; any
// failure marks the connection unhealthy and the original error is returned
// unchanged.
func (c *Client) execute(ctx context.Context, method, path string, headers []Header, body Body) (resp *Response, err error) {
	start := time.Now()

	ctx, span := tracing.StartRequestSpan(ctx, c.tracer.Tracer(), method, path)
	defer func() {
		c.collector.RecordRequest(time.Since(start), err)
		var attrs []attribute.KeyValue
		if resp != nil {
			attrs = append(attrs, attribute.Int("http.response.status_code", resp.Status))
		}
		tracing.EndSpan(span, err, attrs...)
	}()

	if c.limiter != nil {
		if err = c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if c.tracer.ShouldPropagate() {
		headers = appendTraceHeaders(ctx, headers)
	}

	lease, err := c.pool.Checkout(ctx, c.cfg.CheckoutWait)
	if err != nil {
		return nil, err
	}

	healthy := false
	defer func() {
		// Runs on every exit path, including panics and cancellation.
		c.pool.Checkin(lease, healthy)
	}()

	resp, err = c.perform(lease.Member().(*conn.Conn), method, path, headers, body)
	if err != nil {
		return nil, err
	}
	healthy = true
	return resp, nil
}

// perform encodes the body per its kind and runs the request on the leased
// connection.
func (c *Client) perform(cn *conn.Conn, method, path string, headers []Header, body Body) (*Response, error) {
	switch b := body.(type) {
	case nil:
		return c.simple(cn, method, path, headers, nil)
	case rawBody:
		return c.simple(cn, method, path, headers, b.data)
	case formBody:
		return c.simple(cn, method, path, headers, []byte(b.values.Encode()))
	case jsonBody:
		payload, err := json.Marshal(b.value)
		if err != nil {
			return nil, fmt.Errorf("encode json body: %w", err)
		}
		return c.simple(cn, method, path, headers, payload)
	case multipartBody:
		return c.stream(cn, method, path, headers, b.parts)
	default:
		return nil, fmt.Errorf("unsupported body type %T", body)
	}
}

func (c *Client) simple(cn *conn.Conn, method, path string, headers []Header, payload []byte) (*Response, error) {
	h, err := cn.Request(method, path, headers, payload, false)
	if err != nil {
		return nil, err
	}
	return cn.AwaitResponse(h, c.cfg.RequestTimeout)
}

// stream opens a streaming request and frames the multipart body onto it.
// An encode failure abandons the request; the caller's unhealthy checkin
// discards the connection, since the remote side now has a truncated body.
func (c *Client) stream(cn *conn.Conn, method, path string, headers []Header, parts []Part) (*Response, error) {
	boundary := multipart.NewBoundary()
	headers, err := appendBoundary(headers, boundary)
	if err != nil {
		return nil, err
	}

	h, err := cn.Request(method, path, headers, nil, true)
	if err != nil {
		return nil, err
	}
	if err := multipart.Encode(parts, boundary, &chunkSink{cn: cn, handle: h}); err != nil {
		return nil, err
	}
	return cn.AwaitResponse(h, c.cfg.RequestTimeout)
}

// chunkSink adapts a connection's streaming body to multipart.ChunkWriter.
type chunkSink struct {
	cn     *conn.Conn
	handle *conn.Handle
}

func (s *chunkSink) WriteChunk(p []byte, final bool) error {
	return s.cn.StreamChunk(s.handle, p, final)
}

// appendBoundary rewrites the content-type header to carry the multipart
// boundary. The header must already be present with the exact value
// multipart/form-data.
func appendBoundary(headers []Header, boundary string) ([]Header, error) {
	out := make([]Header, len(headers))
	copy(out, headers)
	for i, h := range out {
		if strings.EqualFold(h.Name, "content-type") && h.Value == "multipart/form-data" {
			out[i].Value = h.Value + ";boundary=" + boundary
			return out, nil
		}
	}
	return nil, errors.New(`multipart body requires a content-type header with exact value "multipart/form-data"`)
}

func tlsConfig(cfg TLSConfig) *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		ServerName:         cfg.ServerName,
	}
}

// appendTraceHeaders injects W3C trace context into the outgoing header list.
func appendTraceHeaders(ctx context.Context, headers []Header) []Header {
	carrier := make(http.Header)
	tracing.InjectHTTPHeaders(ctx, carrier)
	for name, values := range carrier {
		for _, value := range values {
			headers = append(headers, Header{Name: name, Value: value})
		}
	}
	return headers
}
