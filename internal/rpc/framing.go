package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentcore/agentcore/internal/retry"
)

// DefaultRequestTimeout is the per-request timeout applied when a caller does
// not override it.
const DefaultRequestTimeout = 120 * time.Second

// NotificationSink receives server-initiated notifications (requests and
// notifications with no id expected to complete synchronously are routed
// here instead of the pending table).
type NotificationSink func(n *Notification)

// RequestSink receives server-initiated requests (method calls that DO carry
// an id and expect a response, e.g. MCP's sampling/createMessage). Framing
// itself never answers these; the caller must call Respond.
type RequestSink func(req *Request)

// Framer multiplexes JSON-RPC requests/responses over a pair of line-oriented
// streams (one per direction). It owns: a writer assigning monotonically
// increasing ids, a reader demultiplexing responses by id, a pending-request
// table, and per-request timeouts. It knows nothing about how the underlying
// process was spawned — that is the Managed Server's job.
type Framer struct {
	w  io.Writer
	wMu sync.Mutex

	logger *slog.Logger

	pending   map[int64]chan *Response
	pendingMu sync.Mutex
	nextID    atomic.Int64

	onNotify  NotificationSink
	onRequest RequestSink

	resend retry.Policy

	closed   atomic.Bool
	closeCh  chan struct{}
	closeMu  sync.Mutex
}

// NewFramer creates a Framer that writes requests to w. Call Start to begin
// reading responses/notifications from r; the two are separate because
// stdio transports expose distinct pipes for each direction. The zero-value
// resend policy runs every request exactly once; call SetResendPolicy to
// enable bounded resends of a request that fails to write while the child
// process is mid-(re)spawn.
func NewFramer(w io.Writer, logger *slog.Logger) *Framer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Framer{
		w:       w,
		logger:  logger.With("component", "rpc"),
		pending: make(map[int64]chan *Response),
		closeCh: make(chan struct{}),
	}
}

// SetResendPolicy overrides the resend policy applied to Call's write step.
// Disabled (zero-value) by default, matching the read/write framing contract
// that a failed write surfaces as an error rather than being retried
// silently; callers that front a respawning child process may opt in.
func (f *Framer) SetResendPolicy(p retry.Policy) { f.resend = p }

// isRetryableWriteError reports whether a write failure is worth resending:
// any error reaching here already excludes a closed Framer, so the
// remaining cases are transient pipe errors from a child mid-respawn.
func isRetryableWriteError(err error) bool { return err != nil }

// OnNotification registers the sink for server-initiated notifications.
func (f *Framer) OnNotification(sink NotificationSink) { f.onNotify = sink }

// OnRequest registers the sink for server-initiated requests.
func (f *Framer) OnRequest(sink RequestSink) { f.onRequest = sink }

// Start launches the read loop over r. It returns once r is exhausted or the
// Framer is closed, at which point every pending request is resolved with
// ErrTransportClosed.
func (f *Framer) Start(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		if f.closed.Load() {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		f.processLine(line)
	}

	f.failAllPending()
}

// processLine classifies and dispatches a single line: a response (has a
// non-null id and either result or error), a server-initiated request (has
// an id and a method), or a notification (no id). Malformed lines are
// logged and discarded.
func (f *Framer) processLine(line []byte) {
	var sniff rawMessage
	if err := json.Unmarshal(line, &sniff); err != nil {
		f.logger.Warn("malformed rpc line, discarding", "error", err)
		return
	}

	hasID := len(sniff.ID) > 0 && string(sniff.ID) != "null"

	if hasID && sniff.Method == "" {
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			f.logger.Warn("malformed rpc response, discarding", "error", err)
			return
		}
		f.deliverResponse(&resp)
		return
	}

	if hasID && sniff.Method != "" {
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			f.logger.Warn("malformed rpc request, discarding", "error", err)
			return
		}
		if f.onRequest != nil {
			f.onRequest(&req)
		}
		return
	}

	var notif Notification
	if err := json.Unmarshal(line, &notif); err != nil || notif.Method == "" {
		f.logger.Warn("malformed rpc notification, discarding")
		return
	}
	if f.onNotify != nil {
		f.onNotify(&notif)
	}
}

func (f *Framer) deliverResponse(resp *Response) {
	if resp.ID == nil {
		return
	}
	id := *resp.ID
	f.pendingMu.Lock()
	ch, ok := f.pending[id]
	if ok {
		delete(f.pending, id)
	}
	f.pendingMu.Unlock()

	if !ok {
		f.logger.Warn("response for unknown or already-resolved id", "id", id)
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

// Call issues method with params and blocks until a response arrives, the
// context is cancelled, the timeout elapses, or the Framer is closed.
// No two concurrent calls may share an id; Call allocates ids itself so this
// invariant always holds.
func (f *Framer) Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if f.closed.Load() {
		return nil, ErrTransportClosed
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	id := f.nextID.Add(1)
	req := Request{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("rpc: marshal params: %w", err)
		}
		req.Params = raw
	}

	respCh := make(chan *Response, 1)
	f.pendingMu.Lock()
	if _, exists := f.pending[id]; exists {
		f.pendingMu.Unlock()
		return nil, ErrIDInUse
	}
	f.pending[id] = respCh
	f.pendingMu.Unlock()

	defer func() {
		f.pendingMu.Lock()
		delete(f.pending, id)
		f.pendingMu.Unlock()
	}()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal request: %w", err)
	}

	line := append(data, '\n')
	werr := f.resend.Do(ctx, isRetryableWriteError, func() error {
		f.wMu.Lock()
		_, err := f.w.Write(line)
		f.wMu.Unlock()
		return err
	})
	if werr != nil {
		return nil, fmt.Errorf("rpc: write request: %w", werr)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-respCh:
		if !ok {
			return nil, ErrTransportClosed
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrTimeout
	case <-f.closeCh:
		return nil, ErrTransportClosed
	}
}

// Notify sends a one-way notification; no response is awaited.
func (f *Framer) Notify(method string, params any) error {
	if f.closed.Load() {
		return ErrTransportClosed
	}
	notif := Notification{JSONRPC: "2.0", Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("rpc: marshal params: %w", err)
		}
		notif.Params = raw
	}
	data, err := json.Marshal(notif)
	if err != nil {
		return err
	}
	f.wMu.Lock()
	defer f.wMu.Unlock()
	_, err = f.w.Write(append(data, '\n'))
	return err
}

// Respond answers a server-initiated request (id from RequestSink).
func (f *Framer) Respond(id json.RawMessage, result any, rpcErr *Error) error {
	if f.closed.Load() {
		return ErrTransportClosed
	}
	resp := struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  json.RawMessage `json:"result,omitempty"`
		Error   *Error          `json:"error,omitempty"`
	}{JSONRPC: "2.0", ID: id}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return err
		}
		resp.Result = raw
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	f.wMu.Lock()
	defer f.wMu.Unlock()
	_, err = f.w.Write(append(data, '\n'))
	return err
}

// Close marks the Framer closed and fails every outstanding request with
// ErrTransportClosed. Safe to call more than once.
func (f *Framer) Close() {
	f.closeMu.Lock()
	defer f.closeMu.Unlock()
	if f.closed.Swap(true) {
		return
	}
	close(f.closeCh)
	f.failAllPending()
}

// failAllPending closes every pending response channel; Call reports a
// closed channel as ErrTransportClosed.
func (f *Framer) failAllPending() {
	f.pendingMu.Lock()
	pending := f.pending
	f.pending = make(map[int64]chan *Response)
	f.pendingMu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
}
