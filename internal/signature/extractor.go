package signature

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"

	"github.com/oshokin/patchline-watcher/internal/domain/patchline"
)

// recordFields is the number of null-separated strings following the marker.
const recordFields = 4

var (
	// ErrSignatureNotFound is returned when the marker is absent from the binary.
	ErrSignatureNotFound = errors.New("signature not found")
	// ErrMalformedRecord is returned when the window does not hold exactly four fields.
	ErrMalformedRecord = errors.New("malformed version record")
	// errEmptyMarker is returned by NewExtractor for a blank marker.
	errEmptyMarker = errors.New("marker must not be empty")
	// errBadWindow is returned by NewExtractor for unusable window sizes.
	errBadWindow = errors.New("window must be a positive even number of bytes")
)

// utf16le is the text encoding of the marker and the record.
//
//nolint:gochecknoglobals // Stateless encoding descriptor.
var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Extractor locates the marker and decodes the record that follows it.
// It is safe for concurrent use.
type Extractor struct {
	// marker is the UTF-16LE encoded marker.
	marker []byte
	// window is the number of bytes decoded after the marker.
	window int
	// now returns the extraction timestamp.
	now func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithClock overrides the clock used for VersionRecord.CheckedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExtractor encodes the marker and validates the window size.
func NewExtractor(marker string, window int, opts ...Option) (*Extractor, error) {
	if marker == "" {
		return nil, errEmptyMarker
	}

	if window <= 0 || window%2 != 0 {
		return nil, fmt.Errorf("%w: %d", errBadWindow, window)
	}

	encoded, err := utf16le.NewEncoder().Bytes([]byte(marker))
	if err != nil {
		return nil, fmt.Errorf("encode marker: %w", err)
	}

	e := &Extractor{
		marker: encoded,
		window: window,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Extract decodes the version record from the binary contents.
// It does not modify data and returns the same fields for the same bytes.
func (e *Extractor) Extract(data []byte) (*patchline.VersionRecord, error) {
	idx := bytes.Index(data, e.marker)
	if idx < 0 {
		return nil, ErrSignatureNotFound
	}

	start := idx + len(e.marker)
	end := min(start+e.window, len(data))

	// A trailing half code unit cannot be decoded.
	window := data[start:end]
	window = window[:len(window)&^1]

	decoded, err := utf16le.NewDecoder().Bytes(window)
	if err != nil {
		return nil, fmt.Errorf("%w: decode window: %w", ErrMalformedRecord, err)
	}

	fields := make([]string, 0, recordFields)

	for segment := range strings.SplitSeq(string(decoded), "\x00") {
		if segment != "" {
			fields = append(fields, segment)
		}
	}

	if len(fields) != recordFields {
		return nil, fmt.Errorf("%w: got %d fields, want %d", ErrMalformedRecord, len(fields), recordFields)
	}

	branch, buildDate, buildVer, version := fields[0], fields[1], fields[2], fields[3]

	return &patchline.VersionRecord{
		Branch:     branch,
		BuildDate:  buildDate,
		BuildVer:   buildVer,
		Version:    version,
		APIVersion: patchline.APIVersion(branch, buildVer, version),
		CheckedAt:  e.now().UTC().Truncate(time.Millisecond),
	}, nil
}

// ExtractFile reads the binary at path and extracts its version record.
func (e *Extractor) ExtractFile(path string) (*patchline.VersionRecord, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read binary: %w", err)
	}

	return e.Extract(data)
}
