package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/docuchat/docuchat/internal/observability"
)

const defaultCallTimeout = 10 * time.Second

// HTTPServer is a tool server reached over plain HTTP:
//
//	GET  {base}/health       connectivity probe
//	GET  {base}/tools        tool listing {"tools": [...]}
//	POST {base}/tools/{name} tool invocation, JSON args in, Result out
type HTTPServer struct {
	name    string
	baseURL string
	client  *http.Client
	logger  observability.Logger

	mu     sync.Mutex
	status Status
}

// NewHTTPServer creates a client for one tool server endpoint.
func NewHTTPServer(name, baseURL string, timeout time.Duration, logger observability.Logger) *HTTPServer {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &HTTPServer{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		status:  StatusDisconnected,
	}
}

func (s *HTTPServer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *HTTPServer) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Connect probes the health endpoint and marks the server connected.
func (s *HTTPServer) Connect(ctx context.Context) error {
	s.setStatus(StatusConnecting)
	resp, err := s.get(ctx, "/health")
	if err != nil {
		s.setStatus(StatusError)
		return fmt.Errorf("tool server %s unreachable: %w", s.name, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.setStatus(StatusError)
		return fmt.Errorf("tool server %s health check returned %d", s.name, resp.StatusCode)
	}
	s.setStatus(StatusConnected)
	s.logger.Info("Tool server connected", map[string]interface{}{
		"server": s.name,
		"url":    s.baseURL,
	})
	return nil
}

func (s *HTTPServer) Disconnect(context.Context) error {
	s.setStatus(StatusDisconnected)
	return nil
}

func (s *HTTPServer) ListTools(ctx context.Context) ([]Tool, error) {
	resp, err := s.get(ctx, "/tools")
	if err != nil {
		return nil, fmt.Errorf("failed to list tools on %s: %w", s.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tool listing on %s returned %d", s.name, resp.StatusCode)
	}

	var payload struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode tool listing from %s: %w", s.name, err)
	}
	return payload.Tools, nil
}

func (s *HTTPServer) CallTool(ctx context.Context, name string, args map[string]interface{}) (*Result, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments: %w", err)
	}

	endpoint := s.baseURL + "/tools/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tool call to %s failed: %w", s.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tool %s on %s returned %d: %s", name, s.name, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode tool result from %s: %w", s.name, err)
	}
	if result.ToolName == "" {
		result.ToolName = name
	}
	return &result, nil
}

func (s *HTTPServer) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return s.client.Do(req)
}
