// Package multipart frames heterogeneous parts into a multipart/form-data
// body written incrementally onto an already-open streaming request.
package multipart

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Param is one content-disposition parameter. Order is significant and
// values are emitted verbatim: quotes and backslashes inside values are not
// escaped, for wire-byte compatibility with existing integrations.
type Param struct {
	Key   string
	Value string
}

// Disposition is the content-disposition metadata of one part.
type Disposition struct {
	Type   string
	Params []Param
}

// Encode renders the disposition header value, e.g. `form-data; name="f"`.
func (d Disposition) Encode() string {
	var sb strings.Builder
	sb.WriteString(d.Type)
	for _, p := range d.Params {
		sb.WriteString("; ")
		sb.WriteString(p.Key)
		sb.WriteString(`="`)
		sb.WriteString(p.Value)
		sb.WriteString(`"`)
	}
	return sb.String()
}

// Header is an extra part header beyond content-disposition.
type Header struct {
	Name  string
	Value string
}

// Part is one section of a multipart body. Exactly one of the three concrete
// types below.
type Part interface {
	isPart()
}

// FilePart sends the contents of a file, read fully into memory first.
type FilePart struct {
	Path        string
	Disposition Disposition
	Extra       []Header
}

// InlinePart sends an in-memory payload under an explicit disposition.
type InlinePart struct {
	Name        string
	Payload     []byte
	Disposition Disposition
	Extra       []Header
}

// FieldPart sends a simple name/value form field. Its disposition is
// synthesized as `form-data; name="<name>"` with no extra headers.
type FieldPart struct {
	Name  string
	Value []byte
}

func (FilePart) isPart()   {}
func (InlinePart) isPart() {}
func (FieldPart) isPart()  {}

// FileError reports a file-backed part that could not be read. The whole
// encode fails and the partially streamed request must be abandoned.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("multipart: read %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// ChunkWriter receives framed chunks. Chunks before the last are written with
// final=false; the closing delimiter is written with final=true, closing the
// stream.
type ChunkWriter interface {
	WriteChunk(p []byte, final bool) error
}

// NewBoundary returns a request-scoped random boundary token. Never reused
// across requests.
func NewBoundary() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Encode frames parts in input order onto w: per part a delimiter+headers
// chunk then a content chunk, both non-final, and after all parts the closing
// delimiter as the final chunk.
func Encode(parts []Part, boundary string, w ChunkWriter) error {
	for _, part := range parts {
		header, content, err := render(part)
		if err != nil {
			return err
		}
		if err := w.WriteChunk(frame(boundary, header), false); err != nil {
			return err
		}
		if err := w.WriteChunk(content, false); err != nil {
			return err
		}
	}
	return w.WriteChunk([]byte("\r\n--"+boundary+"--\r\n"), true)
}

func render(part Part) (partHeader, []byte, error) {
	switch p := part.(type) {
	case FilePart:
		content, err := os.ReadFile(p.Path)
		if err != nil {
			return partHeader{}, nil, &FileError{Path: p.Path, Err: err}
		}
		return partHeader{disposition: p.Disposition, extra: p.Extra}, content, nil
	case InlinePart:
		return partHeader{disposition: p.Disposition, extra: p.Extra}, p.Payload, nil
	case FieldPart:
		disp := Disposition{
			Type:   "form-data",
			Params: []Param{{Key: "name", Value: p.Name}},
		}
		return partHeader{disposition: disp}, p.Value, nil
	default:
		return partHeader{}, nil, fmt.Errorf("multipart: unsupported part type %T", part)
	}
}

type partHeader struct {
	disposition Disposition
	extra       []Header
}

// frame renders the boundary delimiter and headers introducing one part.
func frame(boundary string, h partHeader) []byte {
	var sb strings.Builder
	sb.WriteString("\r\n--")
	sb.WriteString(boundary)
	sb.WriteString("\r\n")
	sb.WriteString("content-disposition: ")
	sb.WriteString(h.disposition.Encode())
	sb.WriteString("\r\n")
	for _, extra := range h.extra {
		sb.WriteString(extra.Name)
		sb.WriteString(": ")
		sb.WriteString(extra.Value)
		sb.WriteString("\r\n")
	}
	sb.WriteString("\r\n")
	return []byte(sb.String())
}
