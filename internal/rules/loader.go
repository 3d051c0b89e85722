package rules

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format identifies a rule document encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatMsgpack Format = "msgpack"
)

// ParseFormat accepts a format name or a common alias.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "msgpack", "mpk", "mp":
		return FormatMsgpack, nil
	default:
		return "", fmt.Errorf("unsupported rules format %q", s)
	}
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("cannot infer rules format of %s", path)
	}
	return ParseFormat(ext)
}

// FormatFromContentType maps an HTTP content type to a format.
func FormatFromContentType(ct string) (Format, bool) {
	ct = strings.ToLower(ct)
	switch {
	case strings.Contains(ct, "json"):
		return FormatJSON, true
	case strings.Contains(ct, "yaml"):
		return FormatYAML, true
	case strings.Contains(ct, "msgpack"):
		return FormatMsgpack, true
	default:
		return "", false
	}
}

// ContentType is the MIME type used when serving a document in this format.
func (f Format) ContentType() string {
	switch f {
	case FormatYAML:
		return "application/yaml"
	case FormatMsgpack:
		return "application/msgpack"
	default:
		return "application/json"
	}
}

// Extension is the file extension written for this format.
func (f Format) Extension() string {
	if f == FormatMsgpack {
		return ".msgpack"
	}
	return "." + string(f)
}

// ParseFile reads a rule document, choosing the decoder from the file extension.
func ParseFile(path string) (*Document, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseReader(file, format)
}

// ParseReader reads a rule document from r.
func ParseReader(r io.Reader, format Format) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decode(data, format)
}

// LoadFile reads and merges a rule document from disk.
func (e *Engine) LoadFile(path string) error {
	doc, err := ParseFile(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	if err := e.LoadDocument(doc); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
