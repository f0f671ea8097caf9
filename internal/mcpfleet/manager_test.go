package mcpfleet

import (
	"context"
	"log/slog"
	"testing"
)

func newTestManager(t *testing.T, servers map[string]*fakeTransport) *Manager {
	t.Helper()
	var cfgs []*ServerConfig
	for name := range servers {
		cfgs = append(cfgs, &ServerConfig{Name: name, Command: "ignored"})
	}
	m := NewManager(cfgs, slog.Default())
	m.newServer = func(cfg *ServerConfig, logger *slog.Logger) *ManagedServer {
		return newManagedServerWithTransport(cfg, servers[cfg.Name], logger)
	}
	return m
}

func TestFindToolProvider_DeterministicTieBreak(t *testing.T) {
	servers := map[string]*fakeTransport{
		"zebra": {tools: []ToolDescriptor{{Name: "search"}}},
		"alpha": {tools: []ToolDescriptor{{Name: "search"}}},
		"mango": {tools: []ToolDescriptor{{Name: "other"}}},
	}
	m := newTestManager(t, servers)
	connected := m.ConnectAll(context.Background())
	if len(connected) != 3 {
		t.Fatalf("expected 3 connected servers, got %v", connected)
	}

	server, ok := m.FindToolProvider("search")
	if !ok {
		t.Fatal("expected to find provider for 'search'")
	}
	if server != "alpha" {
		t.Errorf("expected lexicographically-first server 'alpha', got %q", server)
	}

	// Deterministic across repeated calls.
	for i := 0; i < 5; i++ {
		again, ok := m.FindToolProvider("search")
		if !ok || again != "alpha" {
			t.Fatalf("FindToolProvider not deterministic: got %q, ok=%v", again, ok)
		}
	}
}

func TestFindToolProvider_NotFound(t *testing.T) {
	m := newTestManager(t, map[string]*fakeTransport{"a": {}})
	m.ConnectAll(context.Background())
	if _, ok := m.FindToolProvider("missing"); ok {
		t.Error("expected not found")
	}
}

func TestConnectAll_PartialFailureIsNotFatal(t *testing.T) {
	servers := map[string]*fakeTransport{
		"good": {},
		"bad":  {failConnect: true},
	}
	m := newTestManager(t, servers)
	connected := m.ConnectAll(context.Background())
	if len(connected) != 1 || connected[0] != "good" {
		t.Fatalf("expected only 'good' connected, got %v", connected)
	}

	snap := m.StatusSnapshot()
	if snap["good"].Status != StatusConnected {
		t.Errorf("good should be connected, got %s", snap["good"].Status)
	}
	if snap["bad"].Status != StatusErrored {
		t.Errorf("bad should be errored, got %s", snap["bad"].Status)
	}
}

func TestRefreshCapabilities_FailureKeepsServerToolless(t *testing.T) {
	servers := map[string]*fakeTransport{"flaky": {failList: true}}
	m := newTestManager(t, servers)
	connected := m.ConnectAll(context.Background())
	if len(connected) != 1 {
		t.Fatalf("server should remain connected despite tools/list failure, got %v", connected)
	}
	tools := m.AllTools()
	if len(tools["flaky"]) != 0 {
		t.Errorf("expected empty tool set, got %v", tools["flaky"])
	}
}

func TestExecuteTool_NoProvider(t *testing.T) {
	m := newTestManager(t, map[string]*fakeTransport{"a": {}})
	m.ConnectAll(context.Background())
	_, err := m.ExecuteTool(context.Background(), "", "nope", nil, 0)
	if err == nil {
		t.Fatal("expected error for missing tool provider")
	}
}

func TestExecuteTool_Dispatch(t *testing.T) {
	servers := map[string]*fakeTransport{
		"a": {tools: []ToolDescriptor{{Name: "echo"}},
			callResults: map[string]*ToolCallResult{
				"echo": {Content: []ContentFragment{{Type: "text", Text: "hi"}}},
			}},
	}
	m := newTestManager(t, servers)
	m.ConnectAll(context.Background())

	result, err := m.ExecuteTool(context.Background(), "", "echo", []byte(`{"message":"hi"}`), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if RenderContent(result.Content) != "hi" {
		t.Errorf("got %q", RenderContent(result.Content))
	}
}
