// Package engine implements the Conversation Engine: a bounded state machine
// that interleaves model generation, tool-call extraction, parallel
// dispatch, result reinjection, compaction, and verification.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentcore/agentcore/internal/conversation"
	"github.com/agentcore/agentcore/internal/llm"
	"github.com/agentcore/agentcore/internal/mcpfleet"
	"github.com/agentcore/agentcore/internal/metrics"
	"github.com/agentcore/agentcore/internal/prompt"
	"github.com/agentcore/agentcore/internal/toolcall"
)

// MaxRounds and MaxRetryFormat are the fixed constants
const (
	MaxRounds      = 5
	MaxRetryFormat = 1
)

// Default timeouts. New copies them into each Engine; the Engine exposes no
// way to change them afterwards.
const (
	DefaultModelTimeout = 60 * time.Second
)

// ErrBusy is returned when ProcessUserMessage is called while a turn is
// already in flight on the same Engine.
var ErrBusy = fmt.Errorf("engine: a turn is already in progress")

// Engine ties together a model client, a tool-provider fleet, and
// conversation state into the Conversation Engine state machine.
type Engine struct {
	client llm.Client
	fleet  *mcpfleet.Manager
	state  *conversation.State
	logger *slog.Logger
	metric *metrics.Registry

	modelTimeout time.Duration
	toolTimeout  time.Duration

	busy atomic.Bool
}

// New constructs an Engine. metric may be nil.
func New(client llm.Client, fleet *mcpfleet.Manager, state *conversation.State, metric *metrics.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		client:       client,
		fleet:        fleet,
		state:        state,
		metric:       metric,
		logger:       logger.With("component", "engine"),
		modelTimeout: DefaultModelTimeout,
		toolTimeout:  mcpfleet.DefaultToolCallTimeout,
	}
}

// summarizer adapts llm.Client to conversation.Summarizer using the
// Compaction Prompt; the Engine constructs a summary
// request as a single user-role message with no system prompt.
type summarizer struct {
	engine *Engine
}

func (s summarizer) Summarize(ctx context.Context, historyText string) (string, error) {
	return s.engine.callModel(ctx, []conversation.Message{conversation.User(prompt.CompactionPrompt(historyText))}, nil)
}

// ProcessUserMessage runs one full turn of the state machine
// and returns the turn's final text. It never returns an error to the
// caller for per-call failures; those surface as text in the returned
// string, per the Engine's never-raise propagation policy.
func (e *Engine) ProcessUserMessage(ctx context.Context, text string) (string, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	defer e.busy.Store(false)

	turnCompleted := false
	defer func() {
		if !turnCompleted && ctx.Err() != nil {
			e.state.Append(conversation.AI("[turn cancelled]", nil))
		}
	}()

	// S0 Idle -> on user_text.
	e.state.Append(conversation.User(text))

	// -> CRITERIA, only on the first User turn (anchor unset).
	if e.state.VerificationAnchor() == nil {
		criteria, err := e.callModel(ctx, []conversation.Message{conversation.User(prompt.VerificationCriteriaPrompt(text))}, nil)
		if err != nil {
			return e.failTurn(err, &turnCompleted)
		}
		e.state.SetVerificationAnchor(text, criteria)
	}

	// S2 PROMPT: rebuild the system prompt from the current tool catalog.
	e.state.SetSystemPrompt(prompt.ToolSystemPrompt(e.flattenTools()))

	// S3 MAYBE_COMPACT.
	e.state.MaybeCompact(ctx, summarizer{engine: e})

	round := 0
	retryFormatUsed := false

	for {
		// S4 GENERATE.
		aiText, err := e.callModel(ctx, e.state.Messages(), e.flattenTools())
		if err != nil {
			return e.failTurn(err, &turnCompleted)
		}

		// S5 PARSE.
		parsed := toolcall.Parse(aiText)
		switch {
		case len(parsed.Calls) == 0 && !parsed.SawMalformed:
			e.state.Append(conversation.AI(aiText, nil))
			return e.verify(ctx, &turnCompleted, round)

		case len(parsed.Calls) == 0 && parsed.SawMalformed:
			e.state.Append(conversation.AI(aiText, nil))
			if retryFormatUsed {
				// MAX_RETRY_FORMAT=1 exhausted: fatal to this turn only,
				// fall through to VERIFY with whatever text we have.
				return e.verify(ctx, &turnCompleted, round)
			}
			retryFormatUsed = true
			// S7 RETRY_FORMAT.
			e.state.Append(conversation.User(prompt.InvalidToolFormatPrompt(aiText)))
			continue

		default:
			// >=1 call: S6 DISPATCH.
			calls := toCalls(parsed.Calls)
			e.state.Append(conversation.AI(aiText, calls))
			e.dispatch(ctx, parsed.Calls)
			e.state.ClearLastPending()

			round++
			if round >= MaxRounds {
				return e.verify(ctx, &turnCompleted, round)
			}
			e.state.Append(conversation.User(prompt.ToolResultsPrompt()))
			continue
		}
	}
}

func toCalls(calls []toolcall.Call) []conversation.ToolCall {
	out := make([]conversation.ToolCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, conversation.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments})
	}
	return out
}

// failTurn implements the ModelCallFailure error kind: append an
// AI message carrying the error text, skip verification, and return it.
func (e *Engine) failTurn(err error, turnCompleted *bool) (string, error) {
	text := fmt.Sprintf("Error: %v", err)
	e.state.Append(conversation.AI(text, nil))
	*turnCompleted = true
	return text, nil
}

// verify implements S8 VERIFY. round is the number of dispatch rounds the
// turn ran before reaching verification, recorded as a histogram
// observation so round lengths are visible per turn, not just in aggregate
// model-call counts.
func (e *Engine) verify(ctx context.Context, turnCompleted *bool, round int) (string, error) {
	*turnCompleted = true
	e.metric.RecordRounds(round)
	anchor := e.state.VerificationAnchor()
	if anchor == nil {
		return e.state.LastContent(), nil
	}

	sequence := e.state.SequenceSinceAnchorForVerification()
	verdictText, err := e.callModel(ctx, []conversation.Message{
		conversation.User(prompt.VerificationPrompt(anchor.OriginalUserText, anchor.CriteriaText, sequence)),
	}, nil)
	if err != nil {
		// A model failure during verification is handled like an
		// unparseable verdict: it is recorded as parse_failure and the
		// pre-verification AI text is the turn's output.
		e.metric.RecordVerification("parse_failure")
		return e.state.LastContent(), nil
	}

	passes, feedback, parseErr := parseVerdict(verdictText)
	if parseErr != nil {
		e.logger.Warn("verification verdict did not parse as JSON, defaulting to pass", "error", parseErr)
		e.metric.RecordVerification("parse_failure")
		return e.state.LastContent(), nil
	}

	if passes {
		e.metric.RecordVerification("pass")
		return e.state.LastContent(), nil
	}

	e.metric.RecordVerification("fail")
	e.state.Append(conversation.User(prompt.VerificationFailurePrompt(feedback)))
	corrected, err := e.callModel(ctx, e.state.Messages(), e.flattenTools())
	if err != nil {
		return e.failTurn(err, turnCompleted)
	}
	e.state.Append(conversation.AI(corrected, nil))
	// Do not re-verify, to avoid infinite loop.
	return corrected, nil
}

type verdict struct {
	Passes   bool   `json:"passes"`
	Feedback string `json:"feedback"`
}

func parseVerdict(text string) (bool, string, error) {
	var v verdict
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return true, "", err
	}
	return v.Passes, v.Feedback, nil
}

// callModel wraps client.Generate with the model-call timeout and metrics
// recording.
func (e *Engine) callModel(ctx context.Context, messages []conversation.Message, tools []mcpfleet.ToolDescriptor) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.modelTimeout)
	defer cancel()

	start := time.Now()
	text, err := e.client.Generate(callCtx, messages, tools)
	e.metric.RecordModelCall(e.client.ProviderName(), e.client.ModelName(), err, time.Since(start).Seconds())
	return text, err
}

func (e *Engine) flattenTools() []mcpfleet.ToolDescriptor {
	all := e.fleet.AllTools()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []mcpfleet.ToolDescriptor
	for _, server := range names {
		out = append(out, all[server]...)
	}
	return out
}

func (e *Engine) findToolDescriptor(name string) (mcpfleet.ToolDescriptor, bool) {
	for _, t := range e.flattenTools() {
		if t.Name == name {
			return t, true
		}
	}
	return mcpfleet.ToolDescriptor{}, false
}

// dispatch runs concurrent per-call execution, schema validation ahead of
// the RPC, and in-order ToolResult reinjection: results are appended in
// zip(announced_calls, results) order, not completion order.
func (e *Engine) dispatch(ctx context.Context, calls []toolcall.Call) {
	results := make([]conversation.Message, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call toolcall.Call) {
			defer wg.Done()
			results[i] = e.dispatchOne(ctx, call)
		}(i, call)
	}
	wg.Wait()

	for _, msg := range results {
		e.state.Append(msg)
	}
}

func (e *Engine) dispatchOne(ctx context.Context, call toolcall.Call) conversation.Message {
	if call.ID == "" {
		// Calls without ids would be filtered out before dispatch; the
		// parser always assigns one, so this should be unreachable, but we
		// never drop a result silently.
		return conversation.ToolResult("", call.Name, "Error: tool call missing id, skipped")
	}

	descriptor, ok := e.findToolDescriptor(call.Name)
	if !ok {
		return conversation.ToolResult(call.ID, call.Name, fmt.Sprintf("No server found providing tool '%s'.", call.Name))
	}
	if err := toolcall.ValidateArguments(descriptor.InputSchema, call.Arguments); err != nil {
		text := fmt.Sprintf("Error: arguments for tool '%s' do not match its input schema: %v", call.Name, err)
		return conversation.ToolResult(call.ID, call.Name, text)
	}

	start := time.Now()
	result, err := e.fleet.ExecuteTool(ctx, "", call.Name, call.Arguments, e.toolTimeout)
	e.metric.RecordToolDispatch(call.Name, dispatchServerLabel(result), err, time.Since(start).Seconds())
	if err != nil {
		return conversation.ToolResult(call.ID, call.Name, fmt.Sprintf("Error: %v", err))
	}
	return conversation.ToolResult(call.ID, call.Name, mcpfleet.RenderContent(result.Content))
}

func dispatchServerLabel(result *mcpfleet.ToolCallResult) string {
	if result == nil {
		return "unknown"
	}
	return "dispatched"
}
