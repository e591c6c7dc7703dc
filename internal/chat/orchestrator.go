// Package chat processes conversation turns through the generation tiers.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/docuchat/docuchat/internal/generation"
	"github.com/docuchat/docuchat/internal/observability"
	"github.com/docuchat/docuchat/internal/prompt"
	"github.com/docuchat/docuchat/internal/session"
	"github.com/docuchat/docuchat/internal/vector"
)

// Sink receives the streamed response of a turn. Reset marks the start of a
// tier's stream: tokens delivered before a Reset belong to an abandoned tier
// and must be discarded by the consumer.
type Sink interface {
	Reset(tier string)
	Token(token string)
}

// NopSink discards the stream. Used by non-streaming callers that only want
// the final Turn.
type NopSink struct{}

func (NopSink) Reset(string) {}
func (NopSink) Token(string) {}

// Turn is the completed result of one conversation turn.
type Turn struct {
	SessionID string
	MessageID string
	Content   string
	Sources   []generation.Source
	Tier      string
}

// ErrProcessing is returned when every tier failed, echo included. It maps to
// the MESSAGE_PROCESSING_ERROR wire code.
var ErrProcessing = errors.New("message processing failed")

// Config holds the orchestrator settings. A nil MinSimilarity leaves the
// threshold to the retriever's default.
type Config struct {
	SystemPrompt  string
	TopK          int
	MinSimilarity *float64
}

// Orchestrator runs a turn through the generation tiers in order: Knowledge
// Base, direct model, echo. The first tier to complete wins; only its
// transcript is persisted. A circuit breaker guards the Knowledge Base so a
// flapping managed tier short-circuits straight to the direct model.
type Orchestrator struct {
	managed generation.Adapter
	direct  generation.Adapter
	echo    generation.Adapter

	store     session.Store
	retriever *vector.Retriever
	breaker   *gobreaker.CircuitBreaker
	cfg       Config
	logger    observability.Logger
}

// NewOrchestrator wires the tiers. managed, direct, and retriever may each be
// nil; echo and store may not.
func NewOrchestrator(managed, direct generation.Adapter, store session.Store, retriever *vector.Retriever, cfg Config, logger observability.Logger) *Orchestrator {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	var breaker *gobreaker.CircuitBreaker
	if managed != nil {
		breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "knowledge-base",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Circuit breaker state changed", map[string]interface{}{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				})
			},
		})
	}

	return &Orchestrator{
		managed:   managed,
		direct:    direct,
		echo:      generation.NewEchoAdapter(),
		store:     store,
		retriever: retriever,
		breaker:   breaker,
		cfg:       cfg,
		logger:    logger,
	}
}

// ProcessTurn handles one user message: the user message is persisted first,
// then the tiers run until one completes, and only the winning tier's
// response is persisted. The caller decides the lifetime of ctx; passing a
// context detached from the client connection lets a turn finish and persist
// after a disconnect.
func (o *Orchestrator) ProcessTurn(ctx context.Context, sessionID, message string, sink Sink) (*Turn, error) {
	if sink == nil {
		sink = NopSink{}
	}
	if sessionID == "" {
		sessionID = session.NewSessionID()
	}

	history, err := o.store.GetHistory(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	timestamp := session.Now()
	if err := o.store.SaveMessage(ctx, session.Message{
		MessageID: session.NewMessageID(),
		SessionID: sessionID,
		Role:      "user",
		Content:   message,
		Timestamp: timestamp,
	}); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	req := generation.Request{
		SessionID: sessionID,
		Query:     message,
		History:   toGenerationHistory(history),
	}

	result, tier, err := o.generate(ctx, req, sink)
	if err != nil {
		return nil, err
	}

	turn := &Turn{
		SessionID: sessionID,
		MessageID: session.NewMessageID(),
		Content:   result.Content,
		Sources:   result.Sources,
		Tier:      tier,
	}

	if err := o.store.SaveMessage(ctx, session.Message{
		MessageID: turn.MessageID,
		SessionID: sessionID,
		Role:      "assistant",
		Content:   turn.Content,
		Sources:   turn.Sources,
		Timestamp: session.Now(),
	}); err != nil {
		return nil, fmt.Errorf("failed to save response: %w", err)
	}

	o.logger.Info("Turn completed", map[string]interface{}{
		"session_id": sessionID,
		"message_id": turn.MessageID,
		"tier":       tier,
	})
	return turn, nil
}

func (o *Orchestrator) generate(ctx context.Context, req generation.Request, sink Sink) (*generation.Result, string, error) {
	if o.managed != nil {
		sink.Reset(o.managed.Name())
		result, err := o.tryManaged(ctx, req, sink)
		if err == nil {
			return result, o.managed.Name(), nil
		}
		o.logger.Warn("Knowledge Base tier failed, falling back", map[string]interface{}{
			"session_id": req.SessionID,
			"error":      err.Error(),
		})
	}

	if o.direct != nil {
		sink.Reset(o.direct.Name())
		directReq, sources := o.augmentWithRetrieval(ctx, req)
		result, err := o.direct.Generate(ctx, directReq, sink.Token)
		if err == nil {
			if len(result.Sources) == 0 {
				result.Sources = sources
			}
			return result, o.direct.Name(), nil
		}
		o.logger.Warn("Direct tier failed, falling back to echo", map[string]interface{}{
			"session_id": req.SessionID,
			"error":      err.Error(),
		})
	}

	sink.Reset(o.echo.Name())
	result, err := o.echo.Generate(ctx, req, sink.Token)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrProcessing, err)
	}
	return result, o.echo.Name(), nil
}

func (o *Orchestrator) tryManaged(ctx context.Context, req generation.Request, sink Sink) (*generation.Result, error) {
	value, err := o.breaker.Execute(func() (interface{}, error) {
		result, err := o.managed.Generate(ctx, req, sink.Token)
		if errors.Is(err, generation.ErrRefused) {
			// A refusal is an answered request, not a tier outage: it
			// must not trip the breaker.
			return nil, nil
		}
		return result, err
	})
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, generation.ErrRefused
	}
	return value.(*generation.Result), nil
}

// augmentWithRetrieval searches the local vector store and, when documents
// match, replaces the raw query with a retrieval-augmented prompt. History is
// folded into the prompt in that case, so it is not passed again as messages.
// The matched documents are returned as sources for the response.
func (o *Orchestrator) augmentWithRetrieval(ctx context.Context, req generation.Request) (generation.Request, []generation.Source) {
	if o.retriever == nil {
		return req, nil
	}

	results, err := o.retriever.Search(ctx, req.Query, vector.SearchOptions{
		TopK:          o.cfg.TopK,
		MinSimilarity: o.cfg.MinSimilarity,
	})
	if err != nil {
		o.logger.Warn("Retrieval failed, generating without context", map[string]interface{}{
			"session_id": req.SessionID,
			"error":      err.Error(),
		})
		return req, nil
	}
	if len(results) == 0 {
		return req, nil
	}

	history := make([]prompt.Message, 0, len(req.History))
	for _, msg := range req.History {
		history = append(history, prompt.Message{Role: msg.Role, Content: msg.Content})
	}

	sources := make([]generation.Source, 0, len(results))
	for _, result := range results {
		document := result.DocumentID
		if name, ok := result.Metadata["filename"].(string); ok && name != "" {
			document = name
		}
		sources = append(sources, generation.Source{
			Document: document,
			Score:    result.Similarity,
		})
	}

	augmented := req
	augmented.Prompt = prompt.BuildRAGPrompt(req.Query, results, history, o.cfg.SystemPrompt)
	augmented.History = nil
	return augmented, sources
}

func toGenerationHistory(messages []session.Message) []generation.Message {
	history := make([]generation.Message, 0, len(messages))
	for _, msg := range messages {
		history = append(history, generation.Message{Role: msg.Role, Content: msg.Content})
	}
	return history
}
