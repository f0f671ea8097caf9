package mcpfleet

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agentcore/agentcore/internal/rpc"
)

// fakeTransport is an in-memory Transport used across mcpfleet tests: it
// answers "initialize" and "tools/list" deterministically and lets tests
// script tools/call results.
type fakeTransport struct {
	tools       []ToolDescriptor
	callResults map[string]*ToolCallResult
	callErr     map[string]error
	connected   bool
	failConnect bool
	failList    bool
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	if f.failConnect {
		return context.DeadlineExceeded
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	switch method {
	case "initialize":
		return json.Marshal(map[string]any{"serverInfo": map[string]any{"name": "fake"}})
	case "tools/list":
		if f.failList {
			return nil, context.DeadlineExceeded
		}
		return json.Marshal(ListToolsResult{Tools: f.tools})
	case "tools/call":
		p := params.(CallToolParams)
		if err, ok := f.callErr[p.Name]; ok {
			return nil, err
		}
		if res, ok := f.callResults[p.Name]; ok {
			return json.Marshal(res)
		}
		return json.Marshal(&ToolCallResult{Content: []ContentFragment{{Type: "text", Text: "ok"}}})
	}
	return json.Marshal(map[string]any{})
}

func (f *fakeTransport) Notify(ctx context.Context, method string, params any) error { return nil }
func (f *fakeTransport) Events() <-chan *rpc.Notification                           { return make(chan *rpc.Notification) }
func (f *fakeTransport) Connected() bool                                            { return f.connected }
func (f *fakeTransport) Close() error                                               { f.connected = false; return nil }
