// Package export turns a single student into a report artifact on disk.
//
// The batch engine only needs the path an export wrote; everything about the
// artifact's contents lives here. Each Format has an Encoder and a file extension.
package export

import (
	"errors"
	"fmt"
	"strings"
)

// Format names a report representation.
type Format string

// Supported formats. FormatAll is a selector meaning "every supported format".
const (
	FormatCSV    Format = "csv"
	FormatJSON   Format = "json"
	FormatYAML   Format = "yaml"
	FormatBinary Format = "binary"
	FormatText   Format = "text"

	FormatAll Format = "all"
)

// ErrUnknownFormat is returned for format names that are neither a supported
// format nor FormatAll.
var ErrUnknownFormat = errors.New("unknown report format")

// Formats returns every concrete format in a stable order.
func Formats() []Format {
	return []Format{FormatCSV, FormatJSON, FormatYAML, FormatBinary, FormatText}
}

// ParseFormat parses a user supplied format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == FormatAll || f.IsConcrete() {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q (want one of %s, %s)", ErrUnknownFormat, s, joinFormats(), FormatAll)
}

// IsConcrete reports whether f is a single supported format.
func (f Format) IsConcrete() bool {
	for _, known := range Formats() {
		if f == known {
			return true
		}
	}
	return false
}

// Expand returns the concrete formats f stands for.
func (f Format) Expand() []Format {
	if f == FormatAll {
		return Formats()
	}
	return []Format{f}
}

// Extension returns the file extension, including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatCSV:
		return ".csv"
	case FormatJSON:
		return ".json"
	case FormatYAML:
		return ".yaml"
	case FormatBinary:
		return ".bin"
	case FormatText:
		return ".txt"
	default:
		return ""
	}
}

func (f Format) String() string { return string(f) }

func joinFormats() string {
	names := make([]string, 0, len(Formats()))
	for _, f := range Formats() {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}
