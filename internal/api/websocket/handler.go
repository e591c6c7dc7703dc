// Package websocket provides the realtime chat channel.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/docuchat/docuchat/internal/chat"
	"github.com/docuchat/docuchat/internal/generation"
	"github.com/docuchat/docuchat/internal/observability"
	"github.com/docuchat/docuchat/internal/session"
)

// Client event types.
const (
	eventChatMessage = "chat_message"
	eventPing        = "ping"
)

// Server event types.
const (
	eventConnectionEstablished = "connection_established"
	eventChatResponseChunk     = "chat_response_chunk"
	eventChatResponseComplete  = "chat_response_complete"
	eventChatError             = "chat_error"
	eventPong                  = "pong"
)

// Config holds the websocket handler settings.
type Config struct {
	AllowedOrigins []string
	// MaxMessageSize caps inbound frames in bytes. It must admit the
	// largest valid chat_message payload: 10000 runes can take 40000
	// bytes in UTF-8, plus the JSON envelope.
	MaxMessageSize int64
	// PingInterval is the server keepalive ping period.
	PingInterval time.Duration
	// WriteTimeout bounds each outbound frame write.
	WriteTimeout time.Duration
	// TurnTimeout bounds one turn's generation. A turn keeps running to
	// completion and is persisted even if the client disconnects.
	TurnTimeout time.Duration
}

// Handler upgrades connections and pumps chat turns over them.
type Handler struct {
	orchestrator *chat.Orchestrator
	cfg          Config
	logger       observability.Logger
}

// NewHandler creates the websocket handler.
func NewHandler(orchestrator *chat.Orchestrator, cfg Config, logger observability.Logger) *Handler {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = 64 * 1024
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.TurnTimeout == 0 {
		cfg.TurnTimeout = 5 * time.Minute
	}
	return &Handler{orchestrator: orchestrator, cfg: cfg, logger: logger}
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outEnvelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type chatMessagePayload struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

type chunkPayload struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
	IsFinal   bool   `json:"is_final"`
}

type completePayload struct {
	SessionID string              `json:"session_id"`
	MessageID string              `json:"message_id"`
	Sources   []generation.Source `json:"sources"`
}

type errorPayload struct {
	SessionID string `json:"session_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.AllowedOrigins,
	})
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	defer conn.Close(websocket.StatusInternalError, "connection closed")
	conn.SetReadLimit(h.cfg.MaxMessageSize)

	ctx := r.Context()

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = session.NewSessionID()
	}

	if h.cfg.PingInterval > 0 {
		go h.keepalive(ctx, conn)
	}

	writer := newConnWriter(conn, h.cfg.WriteTimeout, h.logger)
	writer.send(ctx, eventConnectionEstablished, map[string]interface{}{
		"session_id": sessionID,
		"message":    "연결되었습니다.",
	})

	h.logger.Info("Client connected", map[string]interface{}{
		"session_id": sessionID,
	})

	for {
		var env envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				h.logger.Info("Client disconnected", map[string]interface{}{
					"session_id": sessionID,
				})
			} else {
				h.logger.Warn("Read failed, closing connection", map[string]interface{}{
					"session_id": sessionID,
					"error":      err.Error(),
				})
			}
			return
		}

		switch env.Type {
		case eventPing:
			writer.send(ctx, eventPong, map[string]interface{}{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		case eventChatMessage:
			sessionID = h.handleChatMessage(ctx, writer, sessionID, env.Data)
		default:
			writer.send(ctx, eventChatError, errorPayload{
				SessionID: sessionID,
				Code:      "UNKNOWN_EVENT",
				Message:   fmt.Sprintf("unknown event type: %s", env.Type),
			})
		}
	}
}

// handleChatMessage runs one turn and returns the session id in effect
// afterwards (the payload may switch sessions).
func (h *Handler) handleChatMessage(ctx context.Context, writer *connWriter, sessionID string, data json.RawMessage) string {
	var payload chatMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		writer.send(ctx, eventChatError, errorPayload{
			SessionID: sessionID,
			Code:      "INVALID_MESSAGE",
			Message:   "malformed chat_message payload",
		})
		return sessionID
	}
	if payload.SessionID != "" {
		sessionID = payload.SessionID
	}
	if length := len([]rune(payload.Message)); length < 1 || length > 10000 {
		writer.send(ctx, eventChatError, errorPayload{
			SessionID: sessionID,
			Code:      "INVALID_MESSAGE",
			Message:   "message must be between 1 and 10000 characters",
		})
		return sessionID
	}

	// The turn is detached from the connection context so generation
	// completes and persists even when the client goes away mid-stream.
	turnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.TurnTimeout)
	defer cancel()

	sink := &streamSink{ctx: ctx, writer: writer, sessionID: sessionID}
	turn, err := h.orchestrator.ProcessTurn(turnCtx, sessionID, payload.Message, sink)
	if err != nil {
		h.logger.Error("Turn failed", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		writer.send(ctx, eventChatError, errorPayload{
			SessionID: sessionID,
			Code:      "MESSAGE_PROCESSING_ERROR",
			Message:   err.Error(),
		})
		return sessionID
	}

	writer.send(ctx, eventChatResponseChunk, chunkPayload{
		SessionID: turn.SessionID,
		Content:   "",
		IsFinal:   true,
	})

	sources := turn.Sources
	if sources == nil {
		sources = []generation.Source{}
	}
	writer.send(ctx, eventChatResponseComplete, completePayload{
		SessionID: turn.SessionID,
		MessageID: turn.MessageID,
		Sources:   sources,
	})
	return turn.SessionID
}

// streamSink forwards tokens to the client as chunk events. Delivery is best
// effort: once a write fails the sink goes quiet, the turn itself continues.
type streamSink struct {
	ctx       context.Context
	writer    *connWriter
	sessionID string
}

func (s *streamSink) Reset(string) {}

func (s *streamSink) Token(token string) {
	s.writer.send(s.ctx, eventChatResponseChunk, chunkPayload{
		SessionID: s.sessionID,
		Content:   token,
	})
}

// keepalive pings the connection until ctx ends or a ping fails.
func (h *Handler) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		}
	}
}

// connWriter serializes writes to one connection and swallows write errors
// after logging the first one.
type connWriter struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
	dead    bool
	logger  observability.Logger
}

func newConnWriter(conn *websocket.Conn, timeout time.Duration, logger observability.Logger) *connWriter {
	return &connWriter{conn: conn, timeout: timeout, logger: logger}
}

func (w *connWriter) send(ctx context.Context, event string, data interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dead {
		return
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, w.conn, outEnvelope{Type: event, Data: data}); err != nil {
		w.dead = true
		w.logger.Warn("Write failed, muting connection", map[string]interface{}{
			"event": event,
			"error": err.Error(),
		})
	}
}
