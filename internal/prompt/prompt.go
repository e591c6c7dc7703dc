// Package prompt assembles the model prompt from retrieved document context
// and conversation history.
package prompt

import (
	"fmt"
	"strings"

	"github.com/docuchat/docuchat/internal/vector"
)

// DefaultSystemPrompt is the system instruction used when no override is
// configured.
const DefaultSystemPrompt = `당신은 사내 문서를 기반으로 질문에 답변하는 AI 어시스턴트입니다.

다음 규칙을 따라주세요:
1. 제공된 문서 내용을 기반으로 정확하게 답변하세요.
2. 문서에 없는 내용은 추측하지 말고, 모른다고 솔직하게 말하세요.
3. 답변 시 관련 문서의 출처를 언급해주세요.
4. 한국어로 친절하고 명확하게 답변하세요.
5. 필요한 경우 단계별로 설명해주세요.`

// Only the most recent three exchanges are folded into the prompt.
const maxHistoryMessages = 6

// Message is one turn of conversation history.
type Message struct {
	Role    string
	Content string
}

// BuildRAGPrompt composes the full prompt: system instruction, retrieved
// document context, recent conversation history, and the current question.
// The output is deterministic for a given input.
func BuildRAGPrompt(query string, contextChunks []vector.SearchResult, history []Message, systemPrompt string) string {
	var b strings.Builder

	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	b.WriteString(systemPrompt)

	if len(contextChunks) > 0 {
		b.WriteString("\n\n## 참고 문서\n")
		for i, chunk := range contextChunks {
			filename := "알 수 없음"
			if name, ok := chunk.Metadata["filename"].(string); ok && name != "" {
				filename = name
			}
			fmt.Fprintf(&b, "[문서 %d] %s (유사도: %.2f)\n%s\n---\n", i+1, filename, chunk.Similarity, chunk.Content)
		}
	} else {
		b.WriteString("\n\n(관련 문서를 찾지 못했습니다.)\n")
	}

	if len(history) > 0 {
		b.WriteString("\n## 이전 대화\n")
		recent := history
		if len(recent) > maxHistoryMessages {
			recent = recent[len(recent)-maxHistoryMessages:]
		}
		for _, msg := range recent {
			roleName := "AI"
			if msg.Role == "user" {
				roleName = "사용자"
			}
			fmt.Fprintf(&b, "%s: %s\n", roleName, msg.Content)
		}
	}

	fmt.Fprintf(&b, "\n## 질문\n%s\n", query)
	b.WriteString("\n## 답변\n")

	return b.String()
}
