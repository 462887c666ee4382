package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/talktrack/internal/core"
)

var _ core.TextExtractor = (*DocconvExtractor)(nil)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DocconvExtractor decodes caption and transcript formats directly and
// hands every other document type to docconv.
type DocconvExtractor struct {
	useReadability bool
}

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

func (e *DocconvExtractor) ExtractText(ctx context.Context, data []byte, contentType, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if isPlainText(contentType, name) {
		data = bytes.TrimPrefix(data, utf8BOM)
		if !utf8.Valid(data) {
			return "", fmt.Errorf("decode %s: invalid utf-8", name)
		}
		return string(data), nil
	}

	res, err := docconv.Convert(bytes.NewReader(data), docconvMime(contentType, name), e.useReadability)
	if err != nil {
		return "", fmt.Errorf("docconv %s (%s): %w", name, contentType, err)
	}
	return res.Body, nil
}

func isPlainText(contentType, name string) bool {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case strings.HasPrefix(mediaType, "text/"), mediaType == "application/json":
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".vtt", ".srt", ".md", ".json":
		return true
	}
	return false
}

// docconvMime prefers the declared type and falls back to the extension
// when the client sent a generic one.
func docconvMime(contentType, name string) string {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType != "" && mediaType != "application/octet-stream" {
		return mediaType
	}
	return docconv.MimeTypeByExtension(name)
}

// EstimateDurationMinutes converts a word count into spoken minutes at
// WordsPerMinute.
func EstimateDurationMinutes(text string) float64 {
	return float64(len(strings.Fields(text))) / WordsPerMinute
}
