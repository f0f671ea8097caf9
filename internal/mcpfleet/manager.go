package mcpfleet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Manager is the Server Manager: a fleet of Managed Servers,
// connect-all / retry-failed, tool-name -> server index, and concurrent
// tool dispatch.
type Manager struct {
	logger *slog.Logger

	mu      sync.RWMutex
	configs map[string]*ServerConfig
	servers map[string]*ManagedServer

	catalogMu      sync.Mutex
	catalogAt      time.Time
	catalogServers map[string][]ToolDescriptor

	newServer func(cfg *ServerConfig, logger *slog.Logger) *ManagedServer
}

// NewManager creates an empty fleet from the given configs.
func NewManager(configs []*ServerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cfgIndex := make(map[string]*ServerConfig, len(configs))
	for _, c := range configs {
		cfgIndex[c.Name] = c
	}
	return &Manager{
		logger:    logger.With("component", "mcp"),
		configs:   cfgIndex,
		servers:   make(map[string]*ManagedServer),
		newServer: NewManagedServer,
	}
}

// ConnectAll spawns every configured server concurrently. Failures are
// recorded per-server, not raised; the returned slice lists the
// names that connected successfully.
func (m *Manager) ConnectAll(ctx context.Context) []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.configs))
	for name := range m.configs {
		names = append(names, name)
	}
	m.mu.RUnlock()

	type outcome struct {
		name string
		ok   bool
	}
	results := make(chan outcome, len(names))
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			err := m.connectOne(ctx, name)
			results <- outcome{name: name, ok: err == nil}
		}(name)
	}
	wg.Wait()
	close(results)

	var connected []string
	for r := range results {
		if r.ok {
			connected = append(connected, r.name)
		}
	}
	m.invalidateCatalog()
	sort.Strings(connected)
	return connected
}

// RetryFailed re-runs connect for every server whose status is not
// Connected.
func (m *Manager) RetryFailed(ctx context.Context) []string {
	m.mu.RLock()
	var stale []string
	for name, cfg := range m.configs {
		srv, ok := m.servers[name]
		if !ok || srv.Status() != StatusConnected {
			_ = cfg
			stale = append(stale, name)
		}
	}
	m.mu.RUnlock()

	var reconnected []string
	for _, name := range stale {
		if err := m.connectOne(ctx, name); err == nil {
			reconnected = append(reconnected, name)
		}
	}
	m.invalidateCatalog()
	sort.Strings(reconnected)
	return reconnected
}

func (m *Manager) connectOne(ctx context.Context, name string) error {
	m.mu.RLock()
	cfg, ok := m.configs[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("server %q not found in config", name)
	}

	srv := m.newServer(cfg, m.logger)
	err := srv.Connect(ctx)

	m.mu.Lock()
	m.servers[name] = srv
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("failed to connect to mcp server", "server", name, "error", err)
		return err
	}
	return nil
}

// ServerSnapshot is one row of a fleet status report.
type ServerSnapshot struct {
	Name      string
	Status    Status
	LastError string
}

// StatusSnapshot returns {name -> {status, last_error?}} across the fleet.
func (m *Manager) StatusSnapshot() map[string]ServerSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]ServerSnapshot, len(m.configs))
	for name := range m.configs {
		snap := ServerSnapshot{Name: name, Status: StatusDisconnected}
		if srv, ok := m.servers[name]; ok {
			snap.Status = srv.Status()
			if detail := srv.LastError(); detail != nil {
				snap.LastError = detail.Reason
			}
		}
		out[name] = snap
	}
	return out
}

// AllTools returns the union of capability snapshots across connected
// servers, cached with a 10-minute TTL. The cache is invalidated when
// ConnectAll or RetryFailed runs; a server that disconnects afterwards does
// not invalidate it, and its tools stay listed until the cache is rebuilt.
func (m *Manager) AllTools() map[string][]ToolDescriptor {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	if m.catalogServers != nil && time.Since(m.catalogAt) < ToolCatalogTTL {
		return m.catalogServers
	}

	m.mu.RLock()
	out := make(map[string][]ToolDescriptor, len(m.servers))
	for name, srv := range m.servers {
		if srv.Status() != StatusConnected {
			continue
		}
		if tools := srv.Capabilities().Tools; len(tools) > 0 {
			out[name] = tools
		}
	}
	m.mu.RUnlock()

	m.catalogServers = out
	m.catalogAt = time.Now()
	return out
}

func (m *Manager) invalidateCatalog() {
	m.catalogMu.Lock()
	m.catalogServers = nil
	m.catalogMu.Unlock()
}

// FindToolProvider returns the first connected server (by sorted server
// name, for a deterministic tie-break) whose snapshot contains the named
// tool, or ("", false) if no server exposes it.
func (m *Manager) FindToolProvider(name string) (string, bool) {
	all := m.AllTools()
	var candidates []string
	for serverName, tools := range all {
		for _, t := range tools {
			if t.Name == name {
				candidates = append(candidates, serverName)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	return candidates[0], true
}

// ExecuteTool forwards to a specific server, resolving via FindToolProvider
// when server is empty. A missing provider or server is returned as an
// error; it never panics, and the engine turns any returned error into a
// ToolResult text so dispatch is not fatal to the turn.
func (m *Manager) ExecuteTool(ctx context.Context, server, name string, args json.RawMessage, timeout time.Duration) (*ToolCallResult, error) {
	if server == "" {
		found, ok := m.FindToolProvider(name)
		if !ok {
			return nil, fmt.Errorf("no server found providing tool %q", name)
		}
		server = found
	}

	m.mu.RLock()
	srv, ok := m.servers[server]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("server %q not connected", server)
	}

	return srv.Invoke(ctx, name, args, timeout)
}

// Shutdown closes every managed server. Errors are logged, not aggregated,
// since Close is required to be idempotent and best-effort.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, srv := range m.servers {
		if err := srv.Close(); err != nil {
			m.logger.Error("failed to close mcp server", "server", name, "error", err)
		}
	}
}
