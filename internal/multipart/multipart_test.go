package multipart

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordingWriter struct {
	chunks []recordedChunk
}

type recordedChunk struct {
	data  []byte
	final bool
}

func (w *recordingWriter) WriteChunk(p []byte, final bool) error {
	w.chunks = append(w.chunks, recordedChunk{data: append([]byte(nil), p...), final: final})
	return nil
}

func TestDispositionEncode(t *testing.T) {
	d := Disposition{Type: "form-data", Params: []Param{{Key: "name", Value: "f"}}}
	if got := d.Encode(); got != `form-data; name="f"` {
		t.Fatalf("Encode() = %q", got)
	}
}

func TestDispositionEncodeMultipleParamsInOrder(t *testing.T) {
	d := Disposition{
		Type: "form-data",
		Params: []Param{
			{Key: "name", Value: "photo"},
			{Key: "filename", Value: "cat.png"},
		},
	}
	if got := d.Encode(); got != `form-data; name="photo"; filename="cat.png"` {
		t.Fatalf("Encode() = %q", got)
	}
}

func TestDispositionEncodeNoEscaping(t *testing.T) {
	// Quotes inside values pass through verbatim; this is a documented
	// limitation, not a bug.
	d := Disposition{Type: "form-data", Params: []Param{{Key: "name", Value: `a"b`}}}
	if got := d.Encode(); got != `form-data; name="a"b"` {
		t.Fatalf("Encode() = %q", got)
	}
}

func TestNewBoundaryUnique(t *testing.T) {
	a := NewBoundary()
	b := NewBoundary()
	if a == "" || a == b {
		t.Fatalf("Expected distinct non-empty boundaries, got %q and %q", a, b)
	}
	if strings.Contains(a, "-") {
		t.Fatalf("Boundary %q contains a dash", a)
	}
}

func TestEncodeOrderAndFraming(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "upload.bin")
	fileContent := []byte("file-bytes")
	if err := os.WriteFile(filePath, fileContent, 0o600); err != nil {
		t.Fatal(err)
	}

	parts := []Part{
		FilePart{
			Path: filePath,
			Disposition: Disposition{
				Type: "form-data",
				Params: []Param{
					{Key: "name", Value: "document"},
					{Key: "filename", Value: "upload.bin"},
				},
			},
			Extra: []Header{{Name: "content-type", Value: "application/octet-stream"}},
		},
		FieldPart{Name: "k", Value: []byte("v")},
		InlinePart{
			Name:        "n",
			Payload:     []byte("inline-bytes"),
			Disposition: Disposition{Type: "form-data", Params: []Param{{Key: "name", Value: "n"}}},
		},
	}

	boundary := "testboundary"
	w := &recordingWriter{}
	if err := Encode(parts, boundary, w); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// 2 chunks per part plus the closing delimiter.
	if len(w.chunks) != 7 {
		t.Fatalf("Expected 7 chunks, got %d", len(w.chunks))
	}
	for i, c := range w.chunks[:6] {
		if c.final {
			t.Errorf("Chunk %d marked final", i)
		}
	}
	if !w.chunks[6].final {
		t.Error("Closing delimiter not marked final")
	}

	wantHeader0 := "\r\n--testboundary\r\n" +
		`content-disposition: form-data; name="document"; filename="upload.bin"` + "\r\n" +
		"content-type: application/octet-stream\r\n\r\n"
	if string(w.chunks[0].data) != wantHeader0 {
		t.Errorf("File part header = %q, want %q", w.chunks[0].data, wantHeader0)
	}
	if !bytes.Equal(w.chunks[1].data, fileContent) {
		t.Errorf("File part content = %q", w.chunks[1].data)
	}

	wantHeader1 := "\r\n--testboundary\r\n" +
		`content-disposition: form-data; name="k"` + "\r\n\r\n"
	if string(w.chunks[2].data) != wantHeader1 {
		t.Errorf("Field part header = %q, want %q", w.chunks[2].data, wantHeader1)
	}
	if string(w.chunks[3].data) != "v" {
		t.Errorf("Field part content = %q", w.chunks[3].data)
	}

	if string(w.chunks[5].data) != "inline-bytes" {
		t.Errorf("Inline part content = %q", w.chunks[5].data)
	}

	if string(w.chunks[6].data) != "\r\n--testboundary--\r\n" {
		t.Errorf("Closing delimiter = %q", w.chunks[6].data)
	}
}

func TestEncodeFileError(t *testing.T) {
	parts := []Part{
		FieldPart{Name: "first", Value: []byte("ok")},
		FilePart{
			Path:        filepath.Join(t.TempDir(), "missing.bin"),
			Disposition: Disposition{Type: "form-data"},
		},
	}

	w := &recordingWriter{}
	err := Encode(parts, "b", w)

	var fileErr *FileError
	if !errors.As(err, &fileErr) {
		t.Fatalf("Expected FileError, got %v", err)
	}
	if fileErr.Path == "" {
		t.Error("Expected FileError to carry the path")
	}

	// The stream was never finished: no final chunk was written.
	for i, c := range w.chunks {
		if c.final {
			t.Errorf("Chunk %d marked final after failed encode", i)
		}
	}
}
