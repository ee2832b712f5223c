package pe4kin

import (
	"github.com/elmirk/pe4kin/internal/conn"
	"github.com/elmirk/pe4kin/internal/multipart"
)

// Header is one request or response header pair. Names are case-insensitive;
// duplicates are allowed and preserved.
type Header = conn.Header

// Response is a fully received upstream response.
type Response = conn.Response

// Part is one section of a multipart body.
type Part = multipart.Part

// FilePart sends the contents of a file, read fully into memory first.
type FilePart = multipart.FilePart

// InlinePart sends an in-memory payload under an explicit disposition.
type InlinePart = multipart.InlinePart

// FieldPart sends a simple name/value form field.
type FieldPart = multipart.FieldPart

// Disposition is the content-disposition metadata of a multipart part.
type Disposition = multipart.Disposition

// Param is one content-disposition parameter.
type Param = multipart.Param

// PartHeader is an extra multipart part header beyond content-disposition.
type PartHeader = multipart.Header
