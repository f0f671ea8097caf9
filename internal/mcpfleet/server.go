package mcpfleet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErroredDetail carries the reason a server transitioned to StatusErrored.
type ErroredDetail struct {
	Reason string
}

// ManagedServer owns one subprocess (or HTTP endpoint): its handle, RPC
// channel, and capability snapshot.
type ManagedServer struct {
	cfg    *ServerConfig
	logger *slog.Logger

	transport Transport

	mu         sync.RWMutex
	status     Status
	errored    *ErroredDetail
	snapshot   CapabilitySnapshot
	serverName string
}

// NewManagedServer constructs a server record from its spawn spec. Connect
// must be called before the server is usable.
func NewManagedServer(cfg *ServerConfig, logger *slog.Logger) *ManagedServer {
	return newManagedServerWithTransport(cfg, NewTransport(cfg), logger)
}

// newManagedServerWithTransport is the injection seam used by tests to
// substitute a fake Transport instead of spawning a real process.
func newManagedServerWithTransport(cfg *ServerConfig, transport Transport, logger *slog.Logger) *ManagedServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ManagedServer{
		cfg:       cfg,
		logger:    logger.With("server", cfg.Name),
		transport: transport,
		status:    StatusConnecting,
	}
}

// Name returns the server's configured name.
func (s *ManagedServer) Name() string { return s.cfg.Name }

// Config returns the server's spawn specification.
func (s *ManagedServer) Config() *ServerConfig { return s.cfg }

// Status returns the current lifecycle status.
func (s *ManagedServer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LastError returns the recorded error detail, if status is Errored.
func (s *ManagedServer) LastError() *ErroredDetail {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errored
}

// Capabilities returns the cached capability snapshot.
func (s *ManagedServer) Capabilities() CapabilitySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

func (s *ManagedServer) setStatus(st Status, detail *ErroredDetail) {
	s.mu.Lock()
	s.status = st
	s.errored = detail
	s.mu.Unlock()
}

// Connect spawns the process/endpoint, performs the initialize handshake
// with a 15s timeout, and fetches the tool catalog. A
// failed tools/list call does not tear the connection down: the server is
// retained as live-but-toolless.
func (s *ManagedServer) Connect(ctx context.Context) error {
	if err := s.transport.Connect(ctx); err != nil {
		s.setStatus(StatusErrored, &ErroredDetail{Reason: err.Error()})
		return fmt.Errorf("connect: %w", err)
	}

	hsCtx, cancel := context.WithTimeout(ctx, DefaultHandshakeTimeout)
	defer cancel()

	result, err := s.transport.Call(hsCtx, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "agentcore", "version": "1.0.0"},
	}, DefaultHandshakeTimeout)
	if err != nil {
		s.transport.Close()
		s.setStatus(StatusErrored, &ErroredDetail{Reason: err.Error()})
		return fmt.Errorf("initialize: %w", err)
	}

	var initResult struct {
		ServerInfo struct {
			Name string `json:"name"`
		} `json:"serverInfo"`
	}
	if err := json.Unmarshal(result, &initResult); err == nil {
		s.serverName = initResult.ServerInfo.Name
	}

	if err := s.transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		s.logger.Warn("failed to send initialized notification", "error", err)
	}

	if err := s.RefreshCapabilities(ctx); err != nil {
		s.logger.Warn("tools/list failed, server remains connected with an empty tool set", "error", err)
	}

	s.setStatus(StatusConnected, nil)
	s.logger.Info("connected to mcp server", "name", s.serverName)
	return nil
}

// RefreshCapabilities re-fetches the tool catalog via tools/list; resources
// and prompts are not fetched.
func (s *ManagedServer) RefreshCapabilities(ctx context.Context) error {
	result, err := s.transport.Call(ctx, "tools/list", nil, 0)
	if err != nil {
		return err
	}
	var listResult ListToolsResult
	if err := json.Unmarshal(result, &listResult); err != nil {
		return fmt.Errorf("parse tools/list result: %w", err)
	}
	s.mu.Lock()
	s.snapshot.Tools = listResult.Tools
	s.mu.Unlock()
	return nil
}

// Invoke calls tools/call and returns the raw result content plus isError
// flag. Rendering fragments to a string for the model is
// the Conversation Engine's policy.
func (s *ManagedServer) Invoke(ctx context.Context, toolName string, args json.RawMessage, timeout time.Duration) (*ToolCallResult, error) {
	if timeout <= 0 {
		timeout = DefaultToolCallTimeout
	}
	params := CallToolParams{Name: toolName, Arguments: args}
	result, err := s.transport.Call(ctx, "tools/call", params, timeout)
	if err != nil {
		return nil, err
	}
	var callResult ToolCallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, fmt.Errorf("parse tools/call result: %w", err)
	}
	return &callResult, nil
}

// Close is idempotent and tears down the underlying transport.
func (s *ManagedServer) Close() error {
	s.setStatus(StatusDisconnected, nil)
	return s.transport.Close()
}

// Connected reports whether the underlying transport believes itself live.
func (s *ManagedServer) Connected() bool { return s.transport.Connected() }
