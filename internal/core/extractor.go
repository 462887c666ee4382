package core

//go:generate mockgen -source=extractor.go -destination=extractor_mock.go -package=core

import "context"

// TextExtractor turns raw file bytes into plain text.
// The contentType and name hints choose the parsing strategy.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, contentType, name string) (string, error)
}
