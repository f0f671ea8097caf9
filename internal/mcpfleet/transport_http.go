package mcpfleet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore/agentcore/internal/rpc"
)

// HTTPTransport reaches an MCP server over HTTP: each Call is a single POST
// of a JSON-RPC request object, expecting a JSON-RPC response object back.
// RPC framing semantics (timeouts, error shape) are identical to the stdio
// case, only the wire differs.
type HTTPTransport struct {
	cfg    *ServerConfig
	logger *slog.Logger
	client *http.Client

	connected atomic.Bool
	events    chan *rpc.Notification
}

// NewHTTPTransport creates an HTTP transport for cfg.
func NewHTTPTransport(cfg *ServerConfig) *HTTPTransport {
	return &HTTPTransport{
		cfg:    cfg,
		logger: slog.Default().With("mcp_server", cfg.Name, "transport", "http"),
		client: &http.Client{Timeout: rpc.DefaultRequestTimeout},
		events: make(chan *rpc.Notification),
	}
}

// Connect only checks that a URL is configured; it sends no request, so
// reachability is first tested by the "initialize" Call like any other server.
func (t *HTTPTransport) Connect(ctx context.Context) error {
	if t.cfg.URL == "" {
		return fmt.Errorf("http transport: url is required")
	}
	t.connected.Store(true)
	return nil
}

// Call POSTs a single JSON-RPC request and parses the JSON-RPC response.
func (t *HTTPTransport) Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, rpc.ErrTransportClosed
	}
	if timeout <= 0 {
		timeout = rpc.DefaultRequestTimeout
	}

	req := rpc.Request{JSONRPC: "2.0", ID: int64(uuid.New().ID()), Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		req.Params = raw
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range t.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, rpc.ErrTimeout
		}
		return nil, fmt.Errorf("http transport: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http transport: read body: %w", err)
	}

	var rpcResp rpc.Response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return nil, fmt.Errorf("http transport: malformed response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// Notify POSTs a JSON-RPC notification without waiting for a body.
func (t *HTTPTransport) Notify(ctx context.Context, method string, params any) error {
	if !t.connected.Load() {
		return rpc.ErrTransportClosed
	}
	notif := rpc.Notification{JSONRPC: "2.0", Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return err
		}
		notif.Params = raw
	}
	body, err := json.Marshal(notif)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// Events returns the server-initiated notification channel, which is always
// empty for this request/response HTTP transport.
func (t *HTTPTransport) Events() <-chan *rpc.Notification { return t.events }

// Connected reports whether Connect succeeded and Close has not been called.
func (t *HTTPTransport) Connected() bool { return t.connected.Load() }

// Close marks the transport disconnected. There is no persistent connection
// to tear down.
func (t *HTTPTransport) Close() error {
	t.connected.Store(false)
	return nil
}
