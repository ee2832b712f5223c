// Package conn implements a single persistent HTTP/1.1 connection to one
// upstream endpoint, reached directly or through a forward proxy via CONNECT
// tunneling. Wire-level request writing and response parsing are delegated to
// net/http; this package owns the connection lifecycle, request handles,
// streamed request bodies, and bounded-time response awaiting.
package conn

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/elmirk/pe4kin/internal/endpoint"
)

// Header is one request or response header pair. Names are case-insensitive;
// duplicates are allowed and value order per name is preserved.
type Header struct {
	Name  string
	Value string
}

// ErrTimeout is returned by AwaitResponse when headers or body do not arrive
// within the configured duration.
var ErrTimeout = errors.New("response timeout")

// TunnelError reports a proxy CONNECT that did not complete with a clean,
// bodyless 200 response.
type TunnelError struct {
	Status int
}

func (e *TunnelError) Error() string {
	return fmt.Sprintf("proxy tunnel rejected with status %d", e.Status)
}

// TransportError wraps a connection-level failure (refused, reset, TLS
// failure) with the operation that observed it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Options configures Open.
type Options struct {
	// Proxy, when set, is dialed instead of the target and a CONNECT tunnel
	// to the target is negotiated over it.
	Proxy *endpoint.Endpoint

	// DialTimeout bounds the TCP dial. Zero means 30 seconds.
	DialTimeout time.Duration

	// TLS overrides the client TLS configuration for tls targets.
	// ServerName defaults to the target host when unset.
	TLS *tls.Config
}

// Conn is one live connection to one endpoint. Requests on a Conn are
// strictly sequential; a Conn is never shared by two in-flight requests.
type Conn struct {
	target  endpoint.Endpoint
	netConn net.Conn
	br      *bufio.Reader

	mu       sync.Mutex
	inflight *Handle
}

// Open establishes a connection to target, tunneling through opts.Proxy when
// configured and completing the TLS handshake for tls targets before
// returning.
func Open(ctx context.Context, target endpoint.Endpoint, opts Options) (*Conn, error) {
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 30 * time.Second
	}

	dialAddr := target.Addr()
	if opts.Proxy != nil {
		dialAddr = opts.Proxy.Addr()
	}

	dialer := &net.Dialer{Timeout: dialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", dialAddr)
	if err != nil {
		return nil, &TransportError{Op: "dial " + dialAddr, Err: err}
	}

	if opts.Proxy != nil {
		if err := tunnel(ctx, raw, target); err != nil {
			raw.Close()
			return nil, err
		}
	}

	if target.Transport == endpoint.TransportTLS {
		tlsConf := opts.TLS.Clone()
		if tlsConf == nil {
			tlsConf = &tls.Config{}
		}
		if tlsConf.ServerName == "" {
			tlsConf.ServerName = target.Host
		}
		tlsConn := tls.Client(raw, tlsConf)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			raw.Close()
			return nil, &TransportError{Op: "tls handshake", Err: err}
		}
		raw = tlsConn
	}

	return &Conn{
		target:  target,
		netConn: raw,
		br:      bufio.NewReader(raw),
	}, nil
}

// tunnel issues a CONNECT for the target over an already-open proxy
// connection. The tunnel is established only by a 200 response whose framing
// carries no body; any other status or a streamed body is a TunnelError.
func tunnel(ctx context.Context, raw net.Conn, target endpoint.Endpoint) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = raw.SetDeadline(deadline)
		defer raw.SetDeadline(time.Time{})
	}

	connectReq := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: target.Addr()},
		Host:   target.Addr(),
		Header: make(http.Header),
	}
	if err := connectReq.Write(raw); err != nil {
		return &TransportError{Op: "proxy connect", Err: err}
	}

	// The buffered reader is safe to discard: after a 200 the far side will
	// not speak until the client does.
	resp, err := http.ReadResponse(bufio.NewReader(raw), connectReq)
	if err != nil {
		return &TransportError{Op: "proxy connect response", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK || resp.ContentLength > 0 || len(resp.TransferEncoding) > 0 {
		return &TunnelError{Status: resp.StatusCode}
	}
	return nil
}

type headersResult struct {
	resp *http.Response
	err  error
}

type bodyResult struct {
	data []byte
	err  error
}

// Handle tracks one issued request until its response has been awaited.
type Handle struct {
	headersCh chan headersResult
	bodyCh    chan bodyResult
	pw        *io.PipeWriter
}

// Request issues a request on the connection. When stream is true, body is
// ignored and the request body stays open for StreamChunk writes; otherwise
// body is sent as-is and the request is finished. Requests are sequential:
// issuing a second request before the previous response was awaited is an
// error.
func (c *Conn) Request(method, path string, headers []Header, body []byte, stream bool) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight != nil {
		return nil, errors.New("conn: request already in flight")
	}

	req := &http.Request{
		Method:     method,
		URL:        &url.URL{Opaque: path},
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Host:       c.target.Addr(),
		Header:     make(http.Header),
	}
	for _, h := range headers {
		req.Header.Add(h.Name, h.Value)
	}

	handle := &Handle{
		headersCh: make(chan headersResult, 1),
		bodyCh:    make(chan bodyResult, 1),
	}

	if stream {
		pr, pw := io.Pipe()
		req.Body = pr
		req.ContentLength = -1
		handle.pw = pw
	} else {
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.ContentLength = int64(len(body))
	}

	c.inflight = handle
	go c.roundTrip(req, handle)
	return handle, nil
}

// roundTrip writes the request and reads the response, delivering headers and
// body on the handle's buffered channels so an abandoned await cannot block it.
func (c *Conn) roundTrip(req *http.Request, h *Handle) {
	if err := req.Write(c.netConn); err != nil {
		h.headersCh <- headersResult{err: &TransportError{Op: "write request", Err: err}}
		return
	}

	resp, err := http.ReadResponse(c.br, req)
	if err != nil {
		h.headersCh <- headersResult{err: &TransportError{Op: "read response", Err: err}}
		return
	}
	h.headersCh <- headersResult{resp: resp}

	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		h.bodyCh <- bodyResult{err: &TransportError{Op: "read body", Err: err}}
		return
	}
	h.bodyCh <- bodyResult{data: data}
}

// StreamChunk appends bytes to an open streaming request body. final closes
// the body, finishing the request.
func (c *Conn) StreamChunk(h *Handle, p []byte, final bool) error {
	if h == nil || h.pw == nil {
		return errors.New("conn: handle has no streaming body")
	}
	if len(p) > 0 {
		if _, err := h.pw.Write(p); err != nil {
			return &TransportError{Op: "stream chunk", Err: err}
		}
	}
	if final {
		if err := h.pw.Close(); err != nil {
			return &TransportError{Op: "close stream", Err: err}
		}
	}
	return nil
}

// AwaitResponse blocks until the response arrives or timeout expires. The
// timeout applies separately to the header and body phases, not cumulatively.
// A response whose framing carries no body returns with an empty Body.
func (c *Conn) AwaitResponse(h *Handle, timeout time.Duration) (*Response, error) {
	var hr headersResult
	select {
	case hr = <-h.headersCh:
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w: no headers after %v", ErrTimeout, timeout)
	}
	if hr.err != nil {
		return nil, hr.err
	}

	var br bodyResult
	select {
	case br = <-h.bodyCh:
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w: no body after %v", ErrTimeout, timeout)
	}
	if br.err != nil {
		return nil, br.err
	}

	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()

	return &Response{
		Status:  hr.resp.StatusCode,
		Headers: flattenHeaders(hr.resp.Header),
		Body:    br.data,
	}, nil
}

// Close tears down the connection. An open streaming body is aborted so the
// writer goroutine can exit.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.inflight != nil && c.inflight.pw != nil {
		c.inflight.pw.CloseWithError(net.ErrClosed)
	}
	c.mu.Unlock()
	return c.netConn.Close()
}
