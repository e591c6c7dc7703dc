// Package tools manages external tool server integrations. Tool support is
// optional and disabled by default.
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/docuchat/docuchat/internal/observability"
)

// Status is the connection state of a tool server.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Tool describes one callable tool exposed by a server.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Result is the outcome of one tool invocation.
type Result struct {
	ToolName string      `json:"tool_name"`
	Success  bool        `json:"success"`
	Output   interface{} `json:"result,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// Server is one external tool server.
type Server interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	ListTools(ctx context.Context) ([]Tool, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*Result, error)
	Status() Status
}

// ServerInfo summarizes a registered server for listings.
type ServerInfo struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
}

// Registry holds the registered tool servers. All methods are safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]Server
	enabled bool
	logger  observability.Logger
}

// NewRegistry creates a registry. When enabled is false, registrations are
// ignored and calls fail fast.
func NewRegistry(enabled bool, logger observability.Logger) *Registry {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Registry{
		servers: make(map[string]Server),
		enabled: enabled,
		logger:  logger,
	}
}

// Enabled reports whether tool support is active.
func (r *Registry) Enabled() bool { return r.enabled }

// Register adds a server under name. Registration is ignored while tool
// support is disabled.
func (r *Registry) Register(name string, server Server) {
	if !r.enabled {
		r.logger.Warn("Tool support disabled, ignoring server registration", map[string]interface{}{
			"server": name,
		})
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers[name] = server
	r.logger.Info("Tool server registered", map[string]interface{}{
		"server": name,
	})
}

// Unregister removes a server, reporting whether it existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.servers[name]; !ok {
		return false
	}
	delete(r.servers, name)
	return true
}

// List returns the registered servers and their statuses.
func (r *Registry) List() []ServerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]ServerInfo, 0, len(r.servers))
	for name, server := range r.servers {
		infos = append(infos, ServerInfo{Name: name, Status: server.Status()})
	}
	return infos
}

// ConnectAll connects every registered server, reporting per-server success.
func (r *Registry) ConnectAll(ctx context.Context) map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	results := make(map[string]error, len(r.servers))
	for name, server := range r.servers {
		err := server.Connect(ctx)
		results[name] = err
		if err != nil {
			r.logger.Error("Tool server connection failed", map[string]interface{}{
				"server": name,
				"error":  err.Error(),
			})
		}
	}
	return results
}

// DisconnectAll disconnects every registered server.
func (r *Registry) DisconnectAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, server := range r.servers {
		if err := server.Disconnect(ctx); err != nil {
			r.logger.Warn("Tool server disconnect failed", map[string]interface{}{
				"server": name,
				"error":  err.Error(),
			})
		}
	}
}

// ListAllTools returns the tools of every connected server.
func (r *Registry) ListAllTools(ctx context.Context) map[string][]Tool {
	if !r.enabled {
		return map[string][]Tool{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make(map[string][]Tool)
	for name, server := range r.servers {
		if server.Status() != StatusConnected {
			continue
		}
		tools, err := server.ListTools(ctx)
		if err != nil {
			r.logger.Error("Failed to list tools", map[string]interface{}{
				"server": name,
				"error":  err.Error(),
			})
			tools = []Tool{}
		}
		all[name] = tools
	}
	return all
}

// CallTool invokes a tool on a named server. Failures come back as an
// unsuccessful Result rather than an error so callers get a uniform shape.
func (r *Registry) CallTool(ctx context.Context, serverName, toolName string, args map[string]interface{}) *Result {
	if !r.enabled {
		return &Result{ToolName: toolName, Error: "tool support is disabled"}
	}

	r.mu.RLock()
	server, ok := r.servers[serverName]
	r.mu.RUnlock()
	if !ok {
		return &Result{ToolName: toolName, Error: fmt.Sprintf("unknown server: %s", serverName)}
	}
	if server.Status() != StatusConnected {
		return &Result{ToolName: toolName, Error: fmt.Sprintf("server not connected: %s", serverName)}
	}

	result, err := server.CallTool(ctx, toolName, args)
	if err != nil {
		r.logger.Error("Tool call failed", map[string]interface{}{
			"server": serverName,
			"tool":   toolName,
			"error":  err.Error(),
		})
		return &Result{ToolName: toolName, Error: err.Error()}
	}
	return result
}
