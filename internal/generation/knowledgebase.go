package generation

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	agtypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"github.com/docuchat/docuchat/internal/observability"
)

// AgentRuntimeAPI is the subset of the Bedrock agent runtime client used by
// the Knowledge Base tier.
type AgentRuntimeAPI interface {
	RetrieveAndGenerate(ctx context.Context, params *bedrockagentruntime.RetrieveAndGenerateInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveAndGenerateOutput, error)
}

// KnowledgeBaseConfig holds the managed tier settings.
type KnowledgeBaseConfig struct {
	KnowledgeBaseID string
	ModelARN        string
	NumberOfResults int32
	// TokenDelay paces the pseudo-stream. The managed API returns the full
	// answer at once; tokens are replayed word by word.
	TokenDelay time.Duration
}

// KnowledgeBaseAdapter generates responses through the Bedrock Knowledge Base
// RetrieveAndGenerate API. The API is not streaming, so the answer is split
// into word tokens before delivery.
type KnowledgeBaseAdapter struct {
	client AgentRuntimeAPI
	cfg    KnowledgeBaseConfig
	logger observability.Logger
}

// NewKnowledgeBaseAdapter creates the managed generation tier.
func NewKnowledgeBaseAdapter(client AgentRuntimeAPI, cfg KnowledgeBaseConfig, logger observability.Logger) *KnowledgeBaseAdapter {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if cfg.NumberOfResults <= 0 {
		cfg.NumberOfResults = 5
	}
	if cfg.TokenDelay == 0 {
		cfg.TokenDelay = 20 * time.Millisecond
	}
	return &KnowledgeBaseAdapter{client: client, cfg: cfg, logger: logger}
}

func (a *KnowledgeBaseAdapter) Name() string { return "knowledge_base" }

// Generate retrieves and generates through the Knowledge Base. A refusal
// answer returns ErrRefused without streaming any tokens.
func (a *KnowledgeBaseAdapter) Generate(ctx context.Context, req Request, sink TokenSink) (*Result, error) {
	input := &bedrockagentruntime.RetrieveAndGenerateInput{
		Input: &agtypes.RetrieveAndGenerateInput{
			Text: aws.String(req.Query),
		},
		RetrieveAndGenerateConfiguration: &agtypes.RetrieveAndGenerateConfiguration{
			Type: agtypes.RetrieveAndGenerateTypeKnowledgeBase,
			KnowledgeBaseConfiguration: &agtypes.KnowledgeBaseRetrieveAndGenerateConfiguration{
				KnowledgeBaseId: aws.String(a.cfg.KnowledgeBaseID),
				ModelArn:        aws.String(a.cfg.ModelARN),
				RetrievalConfiguration: &agtypes.KnowledgeBaseRetrievalConfiguration{
					VectorSearchConfiguration: &agtypes.KnowledgeBaseVectorSearchConfiguration{
						NumberOfResults: aws.Int32(a.cfg.NumberOfResults),
					},
				},
			},
		},
	}

	output, err := a.client.RetrieveAndGenerate(ctx, input)
	if err != nil {
		return nil, classifyError(err)
	}

	answer := ""
	if output.Output != nil && output.Output.Text != nil {
		answer = *output.Output.Text
	}

	if IsRefusal(answer) {
		a.logger.Info("Knowledge Base declined to answer", map[string]interface{}{
			"session_id": req.SessionID,
		})
		return nil, ErrRefused
	}

	sources := a.extractSources(output.Citations)

	streamWords(ctx, answer, a.cfg.TokenDelay, sink)

	a.logger.Info("Knowledge Base response generated", map[string]interface{}{
		"session_id": req.SessionID,
		"sources":    len(sources),
	})

	return &Result{Content: answer, Sources: sources}, nil
}

// extractSources flattens citation references into sources. The
// RetrieveAndGenerate API does not report relevance scores, so every source
// carries 1.0.
func (a *KnowledgeBaseAdapter) extractSources(citations []agtypes.Citation) []Source {
	sources := make([]Source, 0, len(citations))
	for _, citation := range citations {
		for _, ref := range citation.RetrievedReferences {
			uri := ""
			if ref.Location != nil && ref.Location.S3Location != nil && ref.Location.S3Location.Uri != nil {
				uri = *ref.Location.S3Location.Uri
			}
			document := "unknown"
			if uri != "" {
				parts := strings.Split(uri, "/")
				document = parts[len(parts)-1]
			}
			sources = append(sources, Source{
				Document:  document,
				SourceURI: uri,
				Score:     1.0,
			})
		}
	}
	return sources
}

// streamWords replays content word by word, with a trailing space on every
// token except the last. Delivery stops early if ctx is cancelled; the caller
// already holds the full content.
func streamWords(ctx context.Context, content string, delay time.Duration, sink TokenSink) {
	words := strings.Fields(content)
	for i, word := range words {
		token := word
		if i < len(words)-1 {
			token += " "
		}
		sink(token)
		if delay > 0 && i < len(words)-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}
}
