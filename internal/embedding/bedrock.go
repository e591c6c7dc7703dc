// Package embedding generates text embeddings through Amazon Bedrock.
package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cenkalti/backoff/v4"

	"github.com/docuchat/docuchat/internal/observability"
)

// Titan text embeddings reject inputs beyond the model's context window, so
// text is truncated before invocation.
const maxInputRunes = 8000

// Error wraps a failure to produce an embedding.
type Error struct {
	ModelID string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("embedding failed (model %s): %v", e.ModelID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// InvokeAPI is the subset of the Bedrock runtime client used for embeddings.
type InvokeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Config holds the embedding client settings.
type Config struct {
	ModelID    string
	MaxRetries uint64
}

// BedrockEmbedder produces embeddings through the Bedrock runtime API with
// bounded exponential backoff on throttling.
type BedrockEmbedder struct {
	client     InvokeAPI
	modelID    string
	maxRetries uint64
	logger     observability.Logger
}

// NewBedrockEmbedder creates an embedder over the given Bedrock runtime
// client.
func NewBedrockEmbedder(client InvokeAPI, cfg Config, logger observability.Logger) *BedrockEmbedder {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "amazon.titan-embed-text-v2:0"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &BedrockEmbedder{
		client:     client,
		modelID:    cfg.ModelID,
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}
}

type titanRequest struct {
	InputText string `json:"inputText"`
}

type titanResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbedText returns the embedding vector for text. Inputs longer than the
// model limit are truncated.
func (e *BedrockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, &Error{ModelID: e.modelID, Err: errors.New("empty input")}
	}
	runes := []rune(text)
	if len(runes) > maxInputRunes {
		e.logger.Debug("Truncating embedding input", map[string]interface{}{
			"original_length": len(runes),
			"max_length":      maxInputRunes,
		})
		text = string(runes[:maxInputRunes])
	}

	body, err := json.Marshal(titanRequest{InputText: text})
	if err != nil {
		return nil, &Error{ModelID: e.modelID, Err: err}
	}

	var embedding []float32
	operation := func() error {
		output, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(e.modelID),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			if isThrottling(err) {
				e.logger.Warn("Embedding request throttled, retrying", map[string]interface{}{
					"model_id": e.modelID,
				})
				return err
			}
			return backoff.Permanent(err)
		}

		var resp titanResponse
		if err := json.Unmarshal(output.Body, &resp); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		if len(resp.Embedding) == 0 {
			return backoff.Permanent(errors.New("response contained no embedding"))
		}
		embedding = resp.Embedding
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(newExponentialBackoff(), e.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, &Error{ModelID: e.modelID, Err: err}
	}
	return embedding, nil
}

func newExponentialBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}
