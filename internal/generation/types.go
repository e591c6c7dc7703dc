// Package generation provides the response generation tiers: Bedrock
// Knowledge Base, direct model invocation, and echo.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
)

// Message is one prior turn of the conversation.
type Message struct {
	Role    string
	Content string
}

// Request describes one generation turn. Query is the raw user message.
// Prompt, when set, replaces Query as the model input (used when the caller
// has assembled a retrieval-augmented prompt).
type Request struct {
	SessionID string
	Query     string
	Prompt    string
	History   []Message
}

// Source identifies a document that contributed to a response.
type Source struct {
	Document  string  `json:"document"`
	SourceURI string  `json:"source_uri"`
	Score     float64 `json:"score"`
}

// Usage reports token consumption for a generation.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Result is the complete output of a generation tier.
type Result struct {
	Content string
	Sources []Source
	Usage   Usage
}

// TokenSink receives response tokens in order as they are produced. A sink
// must not block indefinitely; delivery failures are the sink's concern, the
// generation always runs to completion.
type TokenSink func(token string)

// Adapter is a generation tier. Generate streams tokens to sink and returns
// the complete result.
type Adapter interface {
	Name() string
	Generate(ctx context.Context, req Request, sink TokenSink) (*Result, error)
}

// ErrRefused reports that the tier produced a refusal rather than an answer.
// It is a soft failure: the caller should fall back to the next tier.
var ErrRefused = errors.New("model declined to answer")

// Responses beginning with this prefix (trimmed, lower-cased) are treated as
// refusals.
const refusalPrefix = "sorry, i am unable"

// IsRefusal reports whether content is a refusal response.
func IsRefusal(content string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(content)), refusalPrefix)
}

// RateLimitError reports request throttling by the model provider.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string { return fmt.Sprintf("rate limit exceeded: %v", e.Err) }
func (e *RateLimitError) Unwrap() error { return e.Err }

// ConnectionError reports a failure to reach the model provider.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("connection failed: %v", e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// InvocationError reports that the provider rejected the invocation.
type InvocationError struct {
	Err error
}

func (e *InvocationError) Error() string { return fmt.Sprintf("invocation failed: %v", e.Err) }
func (e *InvocationError) Unwrap() error { return e.Err }

// classifyError maps a provider error onto the tier error kinds.
func classifyError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException", "ServiceQuotaExceededException":
			return &RateLimitError{Err: err}
		case "ValidationException", "AccessDeniedException", "ResourceNotFoundException", "ModelNotReadyException":
			return &InvocationError{Err: err}
		default:
			return &InvocationError{Err: err}
		}
	}
	// No service response: dispatch or transport failure.
	return &ConnectionError{Err: err}
}
