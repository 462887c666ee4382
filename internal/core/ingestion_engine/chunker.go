package ingestion_engine

import (
	"strings"
	"unicode"

	"github.com/markdave123-py/talktrack/internal/models"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunker splits text with a sliding window measured in runes.
type Chunker struct {
	size    int
	overlap int
}

type ChunkerOption func(*Chunker)

// WithChunkSize sets the maximum chunk length in runes.
func WithChunkSize(size int) ChunkerOption {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets how many runes consecutive chunks share.
func WithOverlap(overlap int) ChunkerOption {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the chunk texts of text. A window that stops short of the
// end is cut after the last whitespace in its second half, when that still
// leaves room to advance. Whitespace-only input yields no chunks.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)
	out := make([]string, 0, n/(c.size-c.overlap)+1)

	start := 0
	for {
		end := start + c.size
		if end >= n {
			out = append(out, string(runes[start:]))
			return out
		}

		for i := end - 1; i >= start+c.size/2; i-- {
			if unicode.IsSpace(runes[i]) {
				if i+1-c.overlap > start {
					end = i + 1
				}
				break
			}
		}

		out = append(out, string(runes[start:end]))
		start = end - c.overlap
	}
}

// Chunks splits text and tags every piece with its file id and position.
func (c *Chunker) Chunks(fileID, text string) []models.Chunk {
	parts := c.Split(text)
	if len(parts) == 0 {
		return nil
	}
	chunks := make([]models.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = models.Chunk{Index: i, Text: p, FileID: fileID}
	}
	return chunks
}
