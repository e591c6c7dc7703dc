// Package api exposes the REST surface of the chat service.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docuchat/docuchat/internal/chat"
	"github.com/docuchat/docuchat/internal/generation"
	"github.com/docuchat/docuchat/internal/observability"
	"github.com/docuchat/docuchat/internal/session"
	"github.com/docuchat/docuchat/internal/tools"
)

// Version reported by the root endpoint.
const Version = "1.0.0"

// ChatRequest is the POST /api/chat payload. A missing session id starts a
// new session.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message" binding:"required,min=1,max=10000"`
}

// ChatResponse is the POST /api/chat reply.
type ChatResponse struct {
	SessionID string              `json:"session_id"`
	MessageID string              `json:"message_id"`
	Content   string              `json:"content"`
	Sources   []generation.Source `json:"sources"`
	Timestamp string              `json:"timestamp"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func newErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Config holds the REST server settings.
type Config struct {
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server is the REST surface over the chat orchestrator and session store.
type Server struct {
	engine       *gin.Engine
	orchestrator *chat.Orchestrator
	store        session.Store
	registry     *tools.Registry
	logger       observability.Logger
}

// NewServer builds the gin engine with all routes registered. wsHandler,
// when non-nil, is mounted at /ws.
func NewServer(orchestrator *chat.Orchestrator, store session.Store, registry *tools.Registry, wsHandler http.Handler, cfg Config, logger observability.Logger) *Server {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(logger))
	engine.Use(CORS(cfg.AllowedOrigins))

	s := &Server{
		engine:       engine,
		orchestrator: orchestrator,
		store:        store,
		registry:     registry,
		logger:       logger,
	}

	engine.GET("/", s.root)
	engine.GET("/api/health", s.health)

	api := engine.Group("/api")
	if cfg.RateLimitRPS > 0 {
		api.Use(RateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger))
	}
	api.POST("/chat", s.postChat)
	api.GET("/chat/:session_id/history", s.getHistory)
	api.DELETE("/chat/:session_id", s.deleteSession)
	api.GET("/sessions", s.listSessions)
	api.GET("/tools", s.listTools)

	if wsHandler != nil {
		engine.GET("/ws", gin.WrapH(wsHandler))
	}

	return s
}

// Handler returns the http handler for the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "DocuChat API",
		"version": Version,
		"health":  "/api/health",
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) postChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, newErrorResponse("INVALID_REQUEST", err.Error()))
		return
	}

	turn, err := s.orchestrator.ProcessTurn(c.Request.Context(), req.SessionID, req.Message, chat.NopSink{})
	if err != nil {
		s.logger.Error("Chat processing failed", map[string]interface{}{
			"session_id": req.SessionID,
			"error":      err.Error(),
		})
		c.JSON(http.StatusInternalServerError, newErrorResponse("CHAT_ERROR", err.Error()))
		return
	}

	sources := turn.Sources
	if sources == nil {
		sources = []generation.Source{}
	}
	c.JSON(http.StatusOK, ChatResponse{
		SessionID: turn.SessionID,
		MessageID: turn.MessageID,
		Content:   turn.Content,
		Sources:   sources,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) getHistory(c *gin.Context) {
	sessionID := c.Param("session_id")
	messages, err := s.store.GetMessages(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, newErrorResponse("HISTORY_ERROR", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"messages":   messages,
		"count":      len(messages),
	})
}

func (s *Server) deleteSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	deleted, err := s.store.DeleteSession(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, newErrorResponse("DELETE_ERROR", err.Error()))
		return
	}
	message := "해당 세션을 찾을 수 없습니다."
	if deleted {
		message = "대화 히스토리가 삭제되었습니다."
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    message,
		"session_id": sessionID,
	})
}

func (s *Server) listSessions(c *gin.Context) {
	sessions, err := s.store.ListSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, newErrorResponse("SESSIONS_ERROR", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) listTools(c *gin.Context) {
	if s.registry == nil || !s.registry.Enabled() {
		c.JSON(http.StatusOK, gin.H{
			"enabled": false,
			"servers": []tools.ServerInfo{},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"enabled": true,
		"servers": s.registry.List(),
	})
}
