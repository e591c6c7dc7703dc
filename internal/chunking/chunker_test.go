package chunking

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextShortDocument(t *testing.T) {
	c := NewChunker(1000, 100, nil)

	chunks := c.ChunkText("짧은 문서입니다.", "doc1", map[string]interface{}{"filename": "doc1.txt"})
	require.Len(t, chunks, 1)
	assert.Equal(t, "doc1_chunk_0000", chunks[0].ChunkID)
	assert.Equal(t, "doc1", chunks[0].DocumentID)
	assert.Equal(t, "짧은 문서입니다.", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Metadata["chunk_index"])
	assert.Equal(t, 1, chunks[0].Metadata["total_chunks"])
	assert.Equal(t, "doc1.txt", chunks[0].Metadata["filename"])
}

func TestChunkTextBlank(t *testing.T) {
	c := NewChunker(1000, 100, nil)
	assert.Nil(t, c.ChunkText("   \n\t ", "doc1", nil))
	assert.Nil(t, c.ChunkText("", "doc1", nil))
}

func TestChunkTextSizeBoundAndCoverage(t *testing.T) {
	c := NewChunker(50, 10, nil)

	var sb strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&sb, "Sentence number %02d. ", i)
	}
	text := sb.String()

	chunks := c.ChunkText(text, "doc1", nil)
	require.Greater(t, len(chunks), 1)

	prevPos := -1
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk.Content)), 50, "chunk %d too long", i)
		assert.Equal(t, i, chunk.Index)
		assert.Equal(t, len(chunks), chunk.Metadata["total_chunks"])

		// Chunks appear in document order.
		pos := strings.Index(text, chunk.Content)
		require.GreaterOrEqual(t, pos, 0, "chunk %d not a substring", i)
		assert.Greater(t, pos, prevPos)
		prevPos = pos
	}
	// No tail is lost.
	last := chunks[len(chunks)-1].Content
	assert.True(t, strings.HasSuffix(text, last))
}

func TestChunkTextPrefersSentenceBoundary(t *testing.T) {
	c := NewChunker(30, 0, nil)

	chunks := c.ChunkText("First sentence here. Second sentence here. Third.", "doc1", nil)
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, "First sentence here.", chunks[0].Content)
}

func TestChunkTextGeneratesDocumentID(t *testing.T) {
	c := NewChunker(1000, 100, nil)

	chunks := c.ChunkText("내용", "", nil)
	require.Len(t, chunks, 1)
	assert.Len(t, chunks[0].DocumentID, 8)
}

func TestDocumentIDFromFilename(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"HR Guide.PDF", "hr_guide"},
		{"notes.txt", "notes"},
		{"my-doc.v2.md", "my-doc_v2"},
		{"  spaced  name .txt", "spaced_name"},
		{"already_clean", "already_clean"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, DocumentIDFromFilename(tt.filename))
		})
	}
}

func TestDocumentIDFromFilenameFallsBackToRandom(t *testing.T) {
	id := DocumentIDFromFilename("???")
	assert.Len(t, id, 8)
}
