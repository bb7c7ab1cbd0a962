// Package intake turns incoming CSV drops into schema-validated rows in the
// raw table tier, resolving each file to its durable entity and rejecting
// batches whose shape drifted from the entity's registered schema.
package intake

import (
	"encoding/csv"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Options control CSV reading and normalization. The zero value is not
// useful; use DefaultOptions as a base.
type Options struct {
	// Encodings is the ordered fallback list tried when decoding source
	// bytes. The first successful decode wins.
	Encodings []string
	// TrimWhitespace trims and collapses whitespace runs in column names.
	TrimWhitespace bool
	// SkipEmptyRows drops rows whose fields are all empty.
	SkipEmptyRows bool
}

// DefaultOptions mirrors the common import settings: UTF-8 first with
// single-byte fallbacks, normalized headers, empty rows dropped.
func DefaultOptions() Options {
	return Options{
		Encodings:      []string{"utf-8", "latin-1", "cp1252"},
		TrimWhitespace: true,
		SkipEmptyRows:  true,
	}
}

// UnreadableSourceError is returned when every candidate encoding failed to
// decode a source file.
type UnreadableSourceError struct {
	Path      string
	Encodings []string
}

func (e *UnreadableSourceError) Error() string {
	return fmt.Sprintf("could not read %s with any of the configured encodings %v", e.Path, e.Encodings)
}

// Dataset is one parsed intake batch: normalized column names and raw cell
// values. Empty cells become NULL at load time.
type Dataset struct {
	Columns []string
	Rows    [][]string
	// Encoding is the name of the encoding that successfully decoded the file.
	Encoding string
}

var whitespaceRunRe = regexp.MustCompile(`\s+`)

// NormalizeColumn trims leading/trailing whitespace and collapses internal
// whitespace runs to a single space.
func NormalizeColumn(name string) string {
	return whitespaceRunRe.ReplaceAllString(strings.TrimSpace(name), " ")
}

// decoderFor maps an encoding name to a decoder. UTF-8 is handled separately
// since it is a validity check rather than a transform.
func decoderFor(name string) (*encoding.Decoder, bool) {
	switch strings.ToLower(name) {
	case "latin-1", "latin1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder(), true
	case "cp1252", "windows-1252":
		return charmap.Windows1252.NewDecoder(), true
	default:
		return nil, false
	}
}

// decode attempts to decode raw bytes with the named encoding. A failed
// decode (invalid bytes for that encoding) returns ok=false so the caller
// can try the next candidate.
func decode(raw []byte, encName string) (string, bool, error) {
	if strings.EqualFold(encName, "utf-8") || strings.EqualFold(encName, "utf8") {
		if !utf8.Valid(raw) {
			return "", false, nil
		}
		return string(raw), true, nil
	}

	dec, ok := decoderFor(encName)
	if !ok {
		return "", false, fmt.Errorf("unknown encoding %q in fallback list", encName)
	}
	out, err := dec.Bytes(raw)
	if err != nil {
		return "", false, nil
	}
	return string(out), true, nil
}

// ReadCSV reads and parses a CSV file, attempting each configured encoding
// in order. Column names are normalized per the options. Returns
// UnreadableSourceError when all encodings are exhausted.
func ReadCSV(path string, opts Options) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source file: %w", err)
	}

	encodings := opts.Encodings
	if len(encodings) == 0 {
		encodings = DefaultOptions().Encodings
	}

	var text string
	var used string
	for _, name := range encodings {
		decoded, ok, err := decode(raw, name)
		if err != nil {
			return nil, err
		}
		if ok {
			text = decoded
			used = name
			break
		}
	}
	if used == "" {
		return nil, &UnreadableSourceError{Path: path, Encodings: encodings}
	}

	r := csv.NewReader(strings.NewReader(text))
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("source file %s has no header row", path)
	}

	cols := records[0]
	if opts.TrimWhitespace {
		for i, c := range cols {
			cols[i] = NormalizeColumn(c)
		}
	}

	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		if opts.SkipEmptyRows && isEmptyRow(rec) {
			continue
		}
		rows = append(rows, rec)
	}

	return &Dataset{Columns: cols, Rows: rows, Encoding: used}, nil
}

func isEmptyRow(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
