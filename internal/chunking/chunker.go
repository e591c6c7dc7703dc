// Package chunking splits document text into overlapping chunks sized for
// embedding.
package chunking

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/docuchat/docuchat/internal/observability"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 100
)

// defaultSeparators are tried in order when choosing a cut point, from
// paragraph breaks down to plain whitespace. The CJK full stop is included
// for Korean and Japanese documents.
var defaultSeparators = []string{"\n\n", "\n", "。", ".", "!", "?", ";", ":", " "}

// Chunk is one piece of a split document.
type Chunk struct {
	ChunkID    string
	DocumentID string
	Content    string
	Index      int
	Metadata   map[string]interface{}
}

// Chunker splits text into chunks of at most Size runes with Overlap runes
// carried over between consecutive chunks.
type Chunker struct {
	size       int
	overlap    int
	separators []string
	logger     observability.Logger
}

// NewChunker creates a chunker. Non-positive size or overlap fall back to the
// defaults (1000/100 runes).
func NewChunker(size, overlap int, logger observability.Logger) *Chunker {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = defaultChunkOverlap
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Chunker{
		size:       size,
		overlap:    overlap,
		separators: defaultSeparators,
		logger:     logger,
	}
}

// ChunkText splits text into chunks under documentID. Blank text yields no
// chunks. Extra metadata is copied onto every chunk.
func (c *Chunker) ChunkText(text, documentID string, metadata map[string]interface{}) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if documentID == "" {
		documentID = shortID()
	}

	pieces := c.split([]rune(text))

	chunks := make([]Chunk, 0, len(pieces))
	for i, piece := range pieces {
		meta := map[string]interface{}{
			"chunk_index":  i,
			"total_chunks": len(pieces),
			"chunk_size":   len([]rune(piece)),
		}
		for k, v := range metadata {
			meta[k] = v
		}
		chunks = append(chunks, Chunk{
			ChunkID:    fmt.Sprintf("%s_chunk_%04d", documentID, i),
			DocumentID: documentID,
			Content:    piece,
			Index:      i,
			Metadata:   meta,
		})
	}

	c.logger.Debug("Text chunked", map[string]interface{}{
		"document_id": documentID,
		"chunks":      len(chunks),
	})
	return chunks
}

// split cuts runes into windows of at most c.size, preferring separator
// boundaries in the back half of each window, with c.overlap runes of
// overlap between consecutive windows.
func (c *Chunker) split(runes []rune) []string {
	if len(runes) <= c.size {
		return []string{string(runes)}
	}

	var pieces []string
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			pieces = append(pieces, string(runes[start:]))
			break
		}

		cut := c.findCut(runes[start:end])
		if cut <= 0 {
			cut = c.size
		}
		pieces = append(pieces, string(runes[start:start+cut]))

		next := start + cut - c.overlap
		if next <= start {
			next = start + cut
		}
		start = next
	}
	return pieces
}

// findCut returns the rune offset just past the best separator in window, or
// 0 when no separator lands in the back half.
func (c *Chunker) findCut(window []rune) int {
	text := string(window)
	half := len(text) / 2
	for _, sep := range c.separators {
		idx := strings.LastIndex(text, sep)
		if idx < half {
			continue
		}
		return len([]rune(text[:idx+len(sep)]))
	}
	return 0
}

var (
	nonWordRe    = regexp.MustCompile(`[^\w\-]`)
	extensionRe  = regexp.MustCompile(`\.[^.]+$`)
	underscoreRe = regexp.MustCompile(`_+`)
)

// DocumentIDFromFilename derives a stable document id from a filename:
// lower-cased, extension stripped, special characters collapsed to
// underscores.
func DocumentIDFromFilename(filename string) string {
	name := extensionRe.ReplaceAllString(strings.ToLower(filename), "")
	name = nonWordRe.ReplaceAllString(name, "_")
	name = underscoreRe.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return shortID()
	}
	return name
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
