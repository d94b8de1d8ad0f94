// Package chunker splits extracted page and document text into line-aligned pieces
// small enough for a single language model call.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/kapu/venue-match-go/internal/constants"
)

// Chunker packs whole lines into chunks of at most maxSize characters.
type Chunker struct {
	maxSize int
}

type Option func(*Chunker)

// WithMaxChunkSize overrides the default limit. Values <= 0 are ignored.
func WithMaxChunkSize(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{maxSize: constants.PipelineConfig.ChunkSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chunker) MaxSize() int {
	return c.maxSize
}

func (c *Chunker) Chunk(text string) []string {
	return Split(text, c.maxSize)
}

// Split greedily packs the lines of text into chunks. A line is appended while the
// accumulator plus the line and its newline stays under maxSize; otherwise the
// accumulator is flushed, trimmed, and a new one starts with that line. A line longer
// than maxSize becomes its own chunk and is never cut. Blank chunks are dropped, so
// empty input yields no chunks. Sizes count characters (runes), not bytes.
func Split(text string, maxSize int) []string {
	if maxSize <= 0 {
		maxSize = constants.PipelineConfig.ChunkSize
	}

	var (
		chunks []string
		acc    strings.Builder
		size   int
	)

	flush := func() {
		if chunk := strings.TrimSpace(acc.String()); chunk != "" {
			chunks = append(chunks, chunk)
		}
		acc.Reset()
		size = 0
	}

	for _, line := range strings.Split(text, "\n") {
		n := utf8.RuneCountInString(line)
		if size > 0 && size+n+1 >= maxSize {
			flush()
		}
		acc.WriteString(line)
		acc.WriteByte('\n')
		size += n + 1
	}
	flush()

	return chunks
}
