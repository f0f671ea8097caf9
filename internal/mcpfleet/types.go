// Package mcpfleet implements the Subprocess Fleet Supervisor: lifecycle and
// capability discovery for tool-provider subprocesses, and the fan-out
// dispatcher the Conversation Engine calls to invoke their tools.
package mcpfleet

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// TransportKind selects the wire format used to reach a server.
type TransportKind string

const (
	TransportStdio TransportKind = "stdio"
	TransportHTTP  TransportKind = "http"
)

// ServerConfig configures one entry of the fleet config document.
type ServerConfig struct {
	Name      string            `yaml:"name" json:"name"`
	Transport TransportKind     `yaml:"transport" json:"transport,omitempty"`
	Command   string            `yaml:"command" json:"command,omitempty"`
	Args      []string          `yaml:"args" json:"args,omitempty"`
	Env       map[string]string `yaml:"env" json:"env,omitempty"`
	WorkDir   string            `yaml:"workdir" json:"workdir,omitempty"`
	URL       string            `yaml:"url" json:"url,omitempty"`
	Headers   map[string]string `yaml:"headers" json:"headers,omitempty"`
	AutoStart bool              `yaml:"auto_start" json:"auto_start,omitempty"`
}

// Validate rejects configs with path traversal or shell-injection-shaped
// arguments before a process is ever spawned.
func (c *ServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("server name is required")
	}
	switch c.effectiveTransport() {
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("%s: command is required for stdio transport", c.Name)
		}
		if err := validatePath(c.Command); err != nil {
			return fmt.Errorf("%s: command: %w", c.Name, err)
		}
		if c.WorkDir != "" {
			if err := validatePath(c.WorkDir); err != nil {
				return fmt.Errorf("%s: workdir: %w", c.Name, err)
			}
		}
		for i, arg := range c.Args {
			if containsShellMetachars(arg) {
				return fmt.Errorf("%s: arg[%d] contains suspicious shell metacharacters: %q", c.Name, i, arg)
			}
		}
	case TransportHTTP:
		if c.URL == "" {
			return fmt.Errorf("%s: url is required for http transport", c.Name)
		}
		if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
			return fmt.Errorf("%s: url must start with http:// or https://", c.Name)
		}
	}
	return nil
}

func (c *ServerConfig) effectiveTransport() TransportKind {
	if c.Transport == "" {
		return TransportStdio
	}
	return c.Transport
}

func validatePath(path string) error {
	if path == "" {
		return nil
	}
	if strings.Contains(filepath.Clean(path), "..") {
		return fmt.Errorf("contains path traversal: %q", path)
	}
	return nil
}

func containsShellMetachars(s string) bool {
	for _, pattern := range []string{"$(", "${", "`", "&&", "||", ";", "|", ">", "<", "\n", "\r"} {
		if strings.Contains(s, pattern) {
			return true
		}
	}
	return false
}

// ToolDescriptor is the Tool Descriptor value object.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ResourceDescriptor mirrors the MCP resources/list shape, carried through
// for completeness even though the core's dispatch path only needs tools.
type ResourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PromptDescriptor mirrors MCP prompts/list.
type PromptDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CapabilitySnapshot is the cached capability catalog of one server. Only
// Tools is populated (from tools/list); resources/list and prompts/list are
// never called, so Resources and Prompts stay empty.
type CapabilitySnapshot struct {
	Tools     []ToolDescriptor
	Resources []ResourceDescriptor
	Prompts   []PromptDescriptor
}

// Status is the lifecycle state of a Managed Server.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusErrored      Status = "errored"
)

// ContentFragment is one element of a tools/call result's content array:
// text, image, audio, or an opaque structured object.
type ContentFragment struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	MimeType string          `json:"mimeType,omitempty"`
	Data     string          `json:"data,omitempty"`
	Object   json.RawMessage `json:"object,omitempty"`
}

// ToolCallResult is the raw result of a tools/call RPC.
type ToolCallResult struct {
	Content []ContentFragment `json:"content"`
	IsError bool              `json:"isError,omitempty"`
}

// CallToolParams is the tools/call request payload.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ListToolsResult is the tools/list response payload.
type ListToolsResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

// DefaultHandshakeTimeout is the handshake timeout.
const DefaultHandshakeTimeout = 15 * time.Second

// DefaultToolCallTimeout is the default tool-call timeout.
const DefaultToolCallTimeout = 300 * time.Second

// ToolCatalogTTL is the cache TTL for the aggregated tool catalog.
const ToolCatalogTTL = 10 * time.Minute
