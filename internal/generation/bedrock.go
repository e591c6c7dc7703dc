package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/docuchat/docuchat/internal/observability"
)

// DefaultDirectSystemPrompt is used by the direct tier when no retrieval
// context is available.
const DefaultDirectSystemPrompt = `당신은 친절하고 도움이 되는 AI 어시스턴트입니다.
사용자의 질문에 정확하고 유용한 답변을 제공해주세요.
한국어로 질문하면 한국어로 답변하고, 영어로 질문하면 영어로 답변해주세요.`

// StreamAPI is the subset of the Bedrock runtime client used by the direct
// tier.
type StreamAPI interface {
	InvokeModelWithResponseStream(ctx context.Context, params *bedrockruntime.InvokeModelWithResponseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error)
}

// BedrockConfig holds the direct tier settings.
type BedrockConfig struct {
	ModelID        string
	MaxTokens      int
	Temperature    float64
	SystemPrompt   string
	RequestTimeout time.Duration
}

// BedrockAdapter invokes the model directly through the Bedrock runtime
// streaming API.
type BedrockAdapter struct {
	client StreamAPI
	cfg    BedrockConfig
	logger observability.Logger
}

// NewBedrockAdapter creates the direct generation tier.
func NewBedrockAdapter(client StreamAPI, cfg BedrockConfig, logger observability.Logger) *BedrockAdapter {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultDirectSystemPrompt
	}
	return &BedrockAdapter{client: client, cfg: cfg, logger: logger}
}

func (a *BedrockAdapter) Name() string { return "bedrock" }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Temperature      float64            `json:"temperature"`
	Messages         []anthropicMessage `json:"messages"`
}

type streamChunk struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate streams a model response token by token.
func (a *BedrockAdapter) Generate(ctx context.Context, req Request, sink TokenSink) (*Result, error) {
	body, err := json.Marshal(a.buildRequest(req))
	if err != nil {
		return nil, &InvocationError{Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	if a.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.RequestTimeout)
		defer cancel()
	}

	output, err := a.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(a.cfg.ModelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, classifyError(err)
	}

	stream := output.GetStream()
	defer stream.Close()

	result := &Result{}
	content := ""

events:
	for event := range stream.Events() {
		part, ok := event.(*brtypes.ResponseStreamMemberChunk)
		if !ok {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal(part.Value.Bytes, &chunk); err != nil {
			a.logger.Warn("Skipping undecodable stream chunk", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}

		switch chunk.Type {
		case "content_block_delta":
			if chunk.Delta.Text != "" {
				content += chunk.Delta.Text
				sink(chunk.Delta.Text)
			}
		case "message_delta":
			result.Usage.InputTokens = chunk.Usage.InputTokens
			result.Usage.OutputTokens = chunk.Usage.OutputTokens
		case "message_stop":
			break events
		}
	}

	if err := stream.Err(); err != nil {
		return nil, classifyError(err)
	}

	result.Content = content
	a.logger.Info("Direct model response generated", map[string]interface{}{
		"session_id":    req.SessionID,
		"model_id":      a.cfg.ModelID,
		"output_tokens": result.Usage.OutputTokens,
	})
	return result, nil
}

// buildRequest folds the conversation history and the current input into the
// Anthropic messages format. Temperature is sent without top_p: the model
// rejects both at once.
func (a *BedrockAdapter) buildRequest(req Request) anthropicRequest {
	messages := make([]anthropicMessage, 0, len(req.History)+1)
	for _, msg := range req.History {
		if (msg.Role == "user" || msg.Role == "assistant") && msg.Content != "" {
			messages = append(messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
		}
	}

	input := req.Prompt
	if input == "" {
		input = req.Query
	}
	messages = append(messages, anthropicMessage{Role: "user", Content: input})

	return anthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        a.cfg.MaxTokens,
		System:           a.cfg.SystemPrompt,
		Temperature:      a.cfg.Temperature,
		Messages:         messages,
	}
}
