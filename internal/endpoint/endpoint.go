// Package endpoint parses upstream URIs into connectable transport/host/port triples.
package endpoint

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Transport selects the wire security of a connection.
type Transport string

const (
	TransportPlain Transport = "plain"
	TransportTLS   Transport = "tls"
)

const (
	defaultPlainPort = 80
	defaultTLSPort   = 443
)

// ErrMalformed is returned when a URI cannot be parsed into an Endpoint.
var ErrMalformed = errors.New("malformed endpoint")

// Endpoint identifies a connectable upstream. Immutable after Parse.
type Endpoint struct {
	Transport Transport
	Host      string
	Port      int
}

// Addr returns the host:port dial address.
func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// String renders the endpoint back into URI form.
func (e Endpoint) String() string {
	scheme := "http"
	if e.Transport == TransportTLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, e.Host, e.Port)
}

// Parse converts a URI of the form scheme://host[:port] into an Endpoint.
// Recognized schemes are http (plain, default port 80) and https (tls,
// default port 443). Any other scheme, an empty host, or a non-numeric or
// out-of-range port yields an error wrapping ErrMalformed.
func Parse(uri string) (Endpoint, error) {
	var transport Transport
	var port int

	rest := strings.TrimSpace(uri)
	switch {
	case strings.HasPrefix(rest, "https://"):
		transport = TransportTLS
		port = defaultTLSPort
		rest = strings.TrimPrefix(rest, "https://")
	case strings.HasPrefix(rest, "http://"):
		transport = TransportPlain
		port = defaultPlainPort
		rest = strings.TrimPrefix(rest, "http://")
	default:
		return Endpoint{}, fmt.Errorf("%w: unrecognized scheme in %q", ErrMalformed, uri)
	}

	segments := strings.Split(rest, ":")
	switch len(segments) {
	case 1:
		// scheme default port
	case 2:
		parsed, err := strconv.Atoi(segments[1])
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: port %q is not an integer", ErrMalformed, segments[1])
		}
		if parsed < 1 || parsed > 65535 {
			return Endpoint{}, fmt.Errorf("%w: port %d out of range", ErrMalformed, parsed)
		}
		port = parsed
	default:
		return Endpoint{}, fmt.Errorf("%w: too many port segments in %q", ErrMalformed, uri)
	}

	host := segments[0]
	if host == "" {
		return Endpoint{}, fmt.Errorf("%w: empty host in %q", ErrMalformed, uri)
	}

	return Endpoint{Transport: transport, Host: host, Port: port}, nil
}
