package mcpfleet

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentcore/agentcore/internal/rpc"
)

// StdioTransport spawns the configured command and speaks newline-delimited
// JSON-RPC over its stdin/stdout. This is the default transport; HTTPTransport
// reaches servers over the network instead of a local process.
type StdioTransport struct {
	cfg    *ServerConfig
	logger *slog.Logger

	framer *rpc.Framer

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	events chan *rpc.Notification

	connected atomic.Bool
	wg        sync.WaitGroup
}

// NewStdioTransport creates a transport for cfg. Connect must be called
// before use.
func NewStdioTransport(cfg *ServerConfig) *StdioTransport {
	return &StdioTransport{
		cfg:    cfg,
		logger: slog.Default().With("mcp_server", cfg.Name, "transport", "stdio"),
		events: make(chan *rpc.Notification, 100),
	}
}

// Connect spawns the child process and starts the RPC read loop.
func (t *StdioTransport) Connect(ctx context.Context) error {
	if t.cfg.Command == "" {
		return fmt.Errorf("stdio transport: command is required")
	}

	cmd := exec.Command(t.cfg.Command, t.cfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range t.cfg.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	if t.cfg.WorkDir != "" {
		cmd.Dir = t.cfg.WorkDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdio transport: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdio transport: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stdio transport: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("stdio transport: start: %w", err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.framer = rpc.NewFramer(stdin, t.logger)
	t.framer.OnNotification(func(n *rpc.Notification) {
		select {
		case t.events <- n:
		default:
			t.logger.Warn("notification channel full, dropping")
		}
	})
	t.connected.Store(true)
	t.logger.Info("started mcp server process", "command", t.cfg.Command, "pid", cmd.Process.Pid)

	t.wg.Add(2)
	go func() {
		defer t.wg.Done()
		t.framer.Start(stdout)
		t.connected.Store(false)
	}()
	go func() {
		defer t.wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				t.logger.Debug("server stderr", "message", line)
			}
		}
	}()

	return nil
}

// Call delegates to the shared Framer.
func (t *StdioTransport) Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, rpc.ErrTransportClosed
	}
	return t.framer.Call(ctx, method, params, timeout)
}

// Notify delegates to the shared Framer.
func (t *StdioTransport) Notify(ctx context.Context, method string, params any) error {
	if !t.connected.Load() {
		return rpc.ErrTransportClosed
	}
	return t.framer.Notify(method, params)
}

// Events returns the notification channel.
func (t *StdioTransport) Events() <-chan *rpc.Notification { return t.events }

// Connected reports whether the child process is believed alive.
func (t *StdioTransport) Connected() bool { return t.connected.Load() }

// Close is idempotent: it sends no RPC, closes stdin, waits up to 5 seconds
// for the process to exit, kills it if it is still running, and then waits
// for the read loops to finish.
func (t *StdioTransport) Close() error {
	if !t.connected.Swap(false) {
		return nil
	}
	if t.framer != nil {
		t.framer.Close()
	}
	if t.stdin != nil {
		t.stdin.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		done := make(chan struct{})
		go func() {
			t.cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.cmd.Process.Kill()
		}
	}
	t.wg.Wait()
	return nil
}
