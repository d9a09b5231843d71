// Package export renders an idea with its history and contributors into a
// portable document.
package export

import "errors"

// Format represents the export output format
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrUnsupportedFormat indicates the requested format is not available.
	ErrUnsupportedFormat = errors.New("export format unsupported")
)
