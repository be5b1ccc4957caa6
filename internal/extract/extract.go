// Package extract turns uploaded bytes into plain text for ingestion.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/tessera-ai/tessera/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// PlainTextExtractor handles the text-native media types locally. Binary
// formats (PDF, Office documents) are the job of an out-of-process extraction
// service and are rejected here.
type PlainTextExtractor struct{}

// NewPlainTextExtractor creates a new PlainTextExtractor instance
func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

// Extract returns the decoded text for a supported media type, or an
// UnsupportedMediaTypeError.
func (e *PlainTextExtractor) Extract(ctx context.Context, data []byte, mediaType string) (string, error) {
	parsed := mediaType
	if mt, _, err := mime.ParseMediaType(mediaType); err == nil {
		parsed = mt
	}
	parsed = strings.ToLower(strings.TrimSpace(parsed))

	if !isTextMediaType(parsed) {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeUnsupportedMedia,
			fmt.Sprintf("media type %q", mediaType), domain.ErrUnsupportedMediaType)
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", domain.NewDomainError(domain.ErrCodeUnsupportedMedia,
			fmt.Sprintf("media type %q declared text but payload is not valid UTF-8", mediaType))
	}

	return string(data), nil
}

func isTextMediaType(mediaType string) bool {
	if strings.HasPrefix(mediaType, "text/") {
		return true
	}
	switch mediaType {
	case "application/json", "application/xml", "application/x-ndjson":
		return true
	}
	return false
}
