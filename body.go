package pe4kin

import (
	"net/url"

	"github.com/elmirk/pe4kin/internal/multipart"
)

// Body is the request body of a Post. Construct one with Raw, Form, JSON or
// Multipart; a nil Body sends an empty request.
type Body interface {
	isBody()
}

type rawBody struct {
	data []byte
}

type formBody struct {
	values url.Values
}

type jsonBody struct {
	value any
}

type multipartBody struct {
	parts []multipart.Part
}

func (rawBody) isBody()       {}
func (formBody) isBody()      {}
func (jsonBody) isBody()      {}
func (multipartBody) isBody() {}

// Raw sends the bytes as-is.
func Raw(data []byte) Body {
	return rawBody{data: data}
}

// Form serializes the values to application/x-www-form-urlencoded.
func Form(values url.Values) Body {
	return formBody{values: values}
}

// JSON serializes the value with encoding/json.
func JSON(value any) Body {
	return jsonBody{value: value}
}

// Multipart streams the parts as a multipart/form-data body. The request's
// content-type header must already be present with the exact value
// multipart/form-data; the generated boundary is appended to it.
func Multipart(parts ...Part) Body {
	return multipartBody{parts: parts}
}
