package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agentcore/agentcore/internal/conversation"
	"github.com/agentcore/agentcore/internal/mcpfleet"
	"github.com/agentcore/agentcore/internal/rpc"
)

// fakeClient implements llm.Client with a scripted queue of responses,
// consumed in order across every Generate call (criteria, turn text,
// verification, etc).
type fakeClient struct {
	responses []string
	calls     int
	errs      map[int]error
}

func (f *fakeClient) Generate(ctx context.Context, messages []conversation.Message, tools []mcpfleet.ToolDescriptor) (string, error) {
	i := f.calls
	f.calls++
	if err, ok := f.errs[i]; ok {
		return "", err
	}
	if i >= len(f.responses) {
		return "", nil
	}
	return f.responses[i], nil
}

func (f *fakeClient) ModelName() string    { return "fake-model" }
func (f *fakeClient) ProviderName() string { return "fake" }

func newTestEngine(client *fakeClient) *Engine {
	fleet := mcpfleet.NewManager(nil, slog.Default())
	state := conversation.New(slog.Default())
	return New(client, fleet, state, nil, slog.Default())
}

func TestProcessUserMessage_SimpleTurnNoToolCalls(t *testing.T) {
	client := &fakeClient{
		responses: []string{
			"- answer must name the capital",      // S1 CRITERIA
			"The capital of France is Paris.",      // S4 GENERATE
			`{"passes": true, "feedback": ""}`,     // S8 VERIFY
		},
	}
	e := newTestEngine(client)
	out, err := e.ProcessUserMessage(context.Background(), "What is the capital of France?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "The capital of France is Paris." {
		t.Errorf("got %q", out)
	}
}

func TestProcessUserMessage_VerificationFailureTriggersOneCorrection(t *testing.T) {
	client := &fakeClient{
		responses: []string{
			"- must mention Paris",
			"I don't know.",
			`{"passes": false, "feedback": "does not answer the question"}`,
			"The capital of France is Paris.",
		},
	}
	e := newTestEngine(client)
	out, err := e.ProcessUserMessage(context.Background(), "capital of France?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "The capital of France is Paris." {
		t.Errorf("got %q", out)
	}
}

func TestProcessUserMessage_MalformedVerdictDefaultsToPass(t *testing.T) {
	client := &fakeClient{
		responses: []string{
			"- criteria",
			"final answer",
			"not json at all",
		},
	}
	e := newTestEngine(client)
	out, err := e.ProcessUserMessage(context.Background(), "question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "final answer" {
		t.Errorf("got %q", out)
	}
}

func TestProcessUserMessage_ToolCallWithNoProviderSynthesizesError(t *testing.T) {
	client := &fakeClient{
		responses: []string{
			"- criteria",
			`Let me check. <<<TOOL_CALL>>>{"name":"search","arguments":{"q":"x"}}<<<END_TOOL_CALL>>>`,
			"The tool returned nothing useful.",
			`{"passes": true, "feedback": ""}`,
		},
	}
	e := newTestEngine(client)
	out, err := e.ProcessUserMessage(context.Background(), "search something")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "The tool returned nothing useful." {
		t.Errorf("got %q", out)
	}

	body := e.state.Body()
	foundErrorResult := false
	for _, m := range body {
		if m.Role == conversation.RoleToolResult && strings.Contains(m.Content, "No server found providing tool") {
			foundErrorResult = true
		}
	}
	if !foundErrorResult {
		t.Error("expected a synthesized ToolResult for the missing provider")
	}
}

func TestProcessUserMessage_ModelFailureReturnsErrorTextWithoutRaising(t *testing.T) {
	client := &fakeClient{
		responses: []string{"- criteria"},
		errs:      map[int]error{1: context.DeadlineExceeded},
	}
	e := newTestEngine(client)
	out, err := e.ProcessUserMessage(context.Background(), "question")
	if err != nil {
		t.Fatalf("engine must never raise for a per-call failure, got %v", err)
	}
	if !strings.HasPrefix(out, "Error: ") {
		t.Errorf("expected synthesized error text, got %q", out)
	}
}

func TestProcessUserMessage_RejectsConcurrentTurnsWithBusy(t *testing.T) {
	client := &fakeClient{responses: []string{"- c", "answer", `{"passes": true, "feedback": ""}`}}
	e := newTestEngine(client)
	e.busy.Store(true)
	_, err := e.ProcessUserMessage(context.Background(), "hi")
	if err != ErrBusy {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestProcessUserMessage_RoundCapStopsAfterFiveDispatches(t *testing.T) {
	toolCall := `Checking. <<<TOOL_CALL>>>{"name":"search","arguments":{"q":"x"}}<<<END_TOOL_CALL>>>`
	client := &fakeClient{
		responses: []string{
			"- criteria",
			toolCall, toolCall, toolCall, toolCall, toolCall,
			`{"passes": true, "feedback": ""}`,
		},
	}
	e := newTestEngine(client)
	if _, err := e.ProcessUserMessage(context.Background(), "search repeatedly"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 1 criteria call + MaxRounds generate/dispatch rounds + 1 verify call.
	if want := MaxRounds + 2; client.calls != want {
		t.Errorf("expected %d model calls (criteria + %d rounds + verify), got %d", want, MaxRounds, client.calls)
	}
}

func TestProcessUserMessage_MalformedToolCallTriggersOneFormatRetry(t *testing.T) {
	malformed := `<<<TOOL_CALL>>>this is not json<<<END_TOOL_CALL>>>`
	client := &fakeClient{
		responses: []string{
			"- criteria",
			malformed,
			"Here is the answer without any tool call.",
			`{"passes": true, "feedback": ""}`,
		},
	}
	e := newTestEngine(client)
	out, err := e.ProcessUserMessage(context.Background(), "question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Here is the answer without any tool call." {
		t.Errorf("got %q", out)
	}

	foundRetryPrompt := false
	for _, m := range e.state.Body() {
		if m.Role == conversation.RoleUser && strings.Contains(m.Content, "malformed tool call block") {
			foundRetryPrompt = true
		}
	}
	if !foundRetryPrompt {
		t.Error("expected the invalid-format correction prompt to be appended")
	}
}

func TestProcessUserMessage_MalformedToolCallExhaustsRetryAndFallsThroughToVerify(t *testing.T) {
	malformed := `<<<TOOL_CALL>>>this is not json<<<END_TOOL_CALL>>>`
	stillMalformed := `<<<TOOL_CALL>>>still not json<<<END_TOOL_CALL>>>`
	client := &fakeClient{
		responses: []string{
			"- criteria",
			malformed,
			stillMalformed,
			`{"passes": true, "feedback": ""}`,
		},
	}
	e := newTestEngine(client)
	out, err := e.ProcessUserMessage(context.Background(), "question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != stillMalformed {
		t.Errorf("expected the last AI text verbatim once MaxRetryFormat is exhausted, got %q", out)
	}
}

func TestProcessUserMessage_ConcurrentDispatchPreservesAnnouncementOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpc.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding rpc request: %v", err)
			return
		}
		respond := func(result any) {
			raw, _ := json.Marshal(result)
			_ = json.NewEncoder(w).Encode(rpc.Response{JSONRPC: "2.0", ID: &req.ID, Result: raw})
		}
		switch req.Method {
		case "initialize":
			respond(map[string]any{"serverInfo": map[string]any{"name": "bench"}})
		case "tools/list":
			respond(mcpfleet.ListToolsResult{Tools: []mcpfleet.ToolDescriptor{{Name: "slow"}, {Name: "fast"}}})
		case "tools/call":
			var params mcpfleet.CallToolParams
			_ = json.Unmarshal(req.Params, &params)
			if params.Name == "slow" {
				time.Sleep(50 * time.Millisecond)
			}
			respond(&mcpfleet.ToolCallResult{Content: []mcpfleet.ContentFragment{{Type: "text", Text: params.Name + "-done"}}})
		default:
			respond(map[string]any{})
		}
	}))
	defer srv.Close()

	fleet := mcpfleet.NewManager([]*mcpfleet.ServerConfig{
		{Name: "bench", Transport: mcpfleet.TransportHTTP, URL: srv.URL},
	}, slog.Default())
	if connected := fleet.ConnectAll(context.Background()); len(connected) != 1 {
		t.Fatalf("expected the fake server to connect, got %v", connected)
	}

	// "slow" is announced first and finishes last; "fast" is announced
	// second and finishes first. The ToolResult order must follow
	// announcement, not completion.
	toolCalls := `<<<TOOL_CALL>>>{"name":"slow","arguments":{}}<<<END_TOOL_CALL>>>` +
		`<<<TOOL_CALL>>>{"name":"fast","arguments":{}}<<<END_TOOL_CALL>>>`
	client := &fakeClient{
		responses: []string{
			"- criteria",
			toolCalls,
			"done",
			`{"passes": true, "feedback": ""}`,
		},
	}
	state := conversation.New(slog.Default())
	e := New(client, fleet, state, nil, slog.Default())

	if _, err := e.ProcessUserMessage(context.Background(), "run both tools"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var order []string
	for _, m := range e.state.Body() {
		if m.Role == conversation.RoleToolResult {
			order = append(order, m.ToolName)
		}
	}
	if len(order) != 2 || order[0] != "slow" || order[1] != "fast" {
		t.Fatalf("expected ToolResults in announcement order [slow fast], got %v", order)
	}
}

func TestProcessUserMessage_SecondTurnSkipsCriteria(t *testing.T) {
	client := &fakeClient{
		responses: []string{
			"- criteria",
			"first answer",
			`{"passes": true, "feedback": ""}`,
			"second answer",
			`{"passes": true, "feedback": ""}`,
		},
	}
	e := newTestEngine(client)
	if _, err := e.ProcessUserMessage(context.Background(), "first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := e.ProcessUserMessage(context.Background(), "second")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "second answer" {
		t.Errorf("got %q", out)
	}
}
