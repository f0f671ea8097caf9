package mcpfleet

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agentcore/agentcore/internal/rpc"
)

// Transport is the wire-agnostic request/response contract of a Managed
// Server. StdioTransport (built on rpc.Framer) and HTTPTransport both satisfy
// it so the Managed Server never branches on wire format.
type Transport interface {
	Connect(ctx context.Context) error
	Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error)
	Notify(ctx context.Context, method string, params any) error
	Events() <-chan *rpc.Notification
	Connected() bool
	Close() error
}

// NewTransport constructs the transport matching cfg.Transport.
func NewTransport(cfg *ServerConfig) Transport {
	switch cfg.effectiveTransport() {
	case TransportHTTP:
		return NewHTTPTransport(cfg)
	default:
		return NewStdioTransport(cfg)
	}
}
