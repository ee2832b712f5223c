package pe4kin

import (
	"github.com/elmirk/pe4kin/internal/conn"
	"github.com/elmirk/pe4kin/internal/endpoint"
	"github.com/elmirk/pe4kin/internal/multipart"
	"github.com/elmirk/pe4kin/internal/pool"
)

// Sentinel errors for errors.Is.
var (
	// ErrMalformedEndpoint reports an unparsable upstream or proxy URI.
	ErrMalformedEndpoint = endpoint.ErrMalformed

	// ErrPoolUnavailable reports that no connection became free within the
	// checkout wait. Surface it immediately; it is not retried internally.
	ErrPoolUnavailable = pool.ErrUnavailable

	// ErrTimeout reports that awaiting response headers or body exceeded
	// the configured request timeout.
	ErrTimeout = conn.ErrTimeout
)

// Error types for errors.As.
type (
	// TunnelError reports a proxy CONNECT that did not complete with a
	// clean, bodyless 200 response.
	TunnelError = conn.TunnelError

	// TransportError wraps a connection-level failure surfaced from the
	// transport.
	TransportError = conn.TransportError

	// FileError reports a file-backed multipart part that could not be
	// read.
	FileError = multipart.FileError
)
