package conn

import (
	"net/http"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Response is a fully received upstream response. Body is empty when the
// server framed the response without one.
type Response struct {
	Status  int
	Headers []Header
	Body    []byte
}

// HeaderValue returns the first value of the named header, matched
// case-insensitively, and whether it was present.
func (r *Response) HeaderValue(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// JSONPath extracts a value from a JSON response body using gjson path
// syntax, with $.field accepted as an alias for field. Returns the empty
// string when the path does not resolve.
func (r *Response) JSONPath(path string) string {
	if len(path) > 0 && path[0] == '$' {
		if len(path) > 1 && path[1] == '.' {
			path = path[2:]
		} else if len(path) == 1 {
			path = "@this"
		}
	}

	result := gjson.GetBytes(r.Body, path)
	if !result.Exists() {
		return ""
	}
	return result.String()
}

// flattenHeaders converts a parsed net/http header map into an ordered pair
// list. net/http does not retain cross-name arrival order, so names are
// emitted sorted with per-name value order preserved.
func flattenHeaders(hdr http.Header) []Header {
	names := make([]string, 0, len(hdr))
	for name := range hdr {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Header
	for _, name := range names {
		for _, value := range hdr[name] {
			out = append(out, Header{Name: name, Value: value})
		}
	}
	return out
}
