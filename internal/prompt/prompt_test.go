package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docuchat/docuchat/internal/vector"
)

func TestBuildRAGPromptWithDocuments(t *testing.T) {
	chunks := []vector.SearchResult{
		{
			ChunkID:    "guide_chunk_0000",
			Content:    "휴가는 연 15일입니다.",
			Similarity: 0.923,
			Metadata:   map[string]interface{}{"filename": "hr-guide.md"},
		},
		{
			ChunkID:    "guide_chunk_0001",
			Content:    "반차는 오전/오후로 나뉩니다.",
			Similarity: 0.81,
		},
	}

	got := BuildRAGPrompt("휴가 규정 알려줘", chunks, nil, "")

	assert.True(t, strings.HasPrefix(got, DefaultSystemPrompt))
	assert.Contains(t, got, "## 참고 문서")
	assert.Contains(t, got, "[문서 1] hr-guide.md (유사도: 0.92)")
	assert.Contains(t, got, "[문서 2] 알 수 없음 (유사도: 0.81)")
	assert.Contains(t, got, "휴가는 연 15일입니다.\n---\n")
	assert.Contains(t, got, "\n## 질문\n휴가 규정 알려줘\n")
	assert.True(t, strings.HasSuffix(got, "\n## 답변\n"))
	assert.NotContains(t, got, "(관련 문서를 찾지 못했습니다.)")
}

func TestBuildRAGPromptNoDocuments(t *testing.T) {
	got := BuildRAGPrompt("안녕", nil, nil, "")

	assert.Contains(t, got, "(관련 문서를 찾지 못했습니다.)")
	assert.NotContains(t, got, "## 참고 문서")
	assert.NotContains(t, got, "## 이전 대화")
}

func TestBuildRAGPromptHistoryTruncatedToSixTurns(t *testing.T) {
	history := make([]Message, 0, 10)
	for i := 0; i < 10; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		history = append(history, Message{Role: role, Content: fmt.Sprintf("turn-%d", i)})
	}

	got := BuildRAGPrompt("질문", nil, history, "")

	assert.Contains(t, got, "## 이전 대화")
	for i := 0; i < 4; i++ {
		assert.NotContains(t, got, fmt.Sprintf("turn-%d", i))
	}
	for i := 4; i < 10; i++ {
		assert.Contains(t, got, fmt.Sprintf("turn-%d", i))
	}
	assert.Contains(t, got, "사용자: turn-4")
	assert.Contains(t, got, "AI: turn-5")
}

func TestBuildRAGPromptDeterministic(t *testing.T) {
	chunks := []vector.SearchResult{{Content: "본문", Similarity: 0.75}}
	history := []Message{{Role: "user", Content: "이전 질문"}}

	first := BuildRAGPrompt("질문", chunks, history, "커스텀 시스템")
	second := BuildRAGPrompt("질문", chunks, history, "커스텀 시스템")
	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(first, "커스텀 시스템"))
}
