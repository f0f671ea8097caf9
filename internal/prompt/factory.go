// Package prompt implements the Prompt Factory: pure template functions
// with no state. The Conversation Engine never inlines template strings;
// it calls these functions instead.
package prompt

import (
	"encoding/json"
	"strings"

	"github.com/agentcore/agentcore/internal/mcpfleet"
	"github.com/agentcore/agentcore/internal/toolcall"
)

const noToolsAvailable = "No tools are currently available."

// ToolSystemPrompt builds the system prompt describing tool-use discipline
// and the available tool catalog.
func ToolSystemPrompt(tools []mcpfleet.ToolDescriptor) string {
	var b strings.Builder
	b.WriteString("You are an AI assistant with access to external tools.\n\n")
	b.WriteString("Tool-use discipline:\n")
	b.WriteString("- You may invoke tools by emitting one or more delimiter-framed blocks in a single turn.\n")
	b.WriteString("- Do not chain a new tool call in the same turn as a result you have not yet received; wait for results before deciding whether another call is needed.\n")
	b.WriteString("- Only claim a tool was called if you actually emitted a call block and received a result; never fabricate tool output.\n\n")

	b.WriteString("# Tool Descriptions\n\n")
	if len(tools) == 0 {
		b.WriteString(noToolsAvailable + "\n\n")
	} else {
		for _, t := range tools {
			b.WriteString("## " + t.Name + "\n\n")
			b.WriteString(t.Description + "\n\n")
			b.WriteString("**Arguments Schema:**\n\n")
			b.WriteString("```json\n")
			b.WriteString(prettySchema(t.InputSchema))
			b.WriteString("\n```\n\n")
		}
	}

	b.WriteString("To call a tool, emit exactly this shape:\n\n")
	b.WriteString(toolcall.Opener + "\n")
	b.WriteString(`{ "name": "<tool_name>", "arguments": { … } }` + "\n")
	b.WriteString(toolcall.Closer + "\n\n")
	b.WriteString("Important: the delimiters are literal and case-sensitive. Multiple blocks in one turn are dispatched in parallel. Do not emit a block unless you intend for it to be executed.\n")
	return b.String()
}

func prettySchema(schema json.RawMessage) string {
	if len(schema) == 0 {
		return "{}"
	}
	var pretty strings.Builder
	if err := json.Indent(&pretty, schema, "", "  "); err != nil {
		return string(schema)
	}
	return pretty.String()
}

// VerificationCriteriaPrompt builds the criteria-generation prompt.
func VerificationCriteriaPrompt(userRequest string) string {
	return "Based on the following user request, list concise, verifiable criteria that a correct response must satisfy. " +
		"Output ONLY the criteria list, one criterion per line, starting with '- '.\n\n" +
		"User request:\n" + userRequest
}

// VerificationPrompt builds the strict-evaluator prompt.
func VerificationPrompt(originalRequest, criteria, relevantHistorySequence string) string {
	return "You are a strict evaluator. Given the original request, the criteria it must satisfy, and the " +
		"relevant conversation sequence since that request, determine whether the assistant's response satisfies " +
		"every criterion.\n\n" +
		"Original request:\n" + originalRequest + "\n\n" +
		"Criteria:\n" + criteria + "\n\n" +
		"Conversation sequence:\n" + relevantHistorySequence + "\n\n" +
		`Respond with raw JSON only, no surrounding text, in exactly this shape: {"passes": boolean, "feedback": string}`
}

// VerificationFailurePrompt builds the correction prompt sent after a
// failed verification verdict.
func VerificationFailurePrompt(feedback string) string {
	return "Your previous response failed verification based on the following feedback:\n" + feedback +
		"\n\nRevise your response to address the feedback."
}

// InvalidToolFormatPrompt builds the correction prompt sent after a
// malformed tool-call block.
func InvalidToolFormatPrompt(invalidContent string) string {
	return "Your previous response contained a malformed tool call block:\n\n" + invalidContent +
		"\n\nPlease reissue the tool call using the exact delimiter format: " + toolcall.Opener +
		` { "name": "...", "arguments": { ... } } ` + toolcall.Closer
}

// ToolResultsPrompt builds the prompt that follows tool result reinjection.
func ToolResultsPrompt() string {
	return "The tool results above are now available. Synthesize a final answer from them, or emit a further " +
		"tool call if more information is required."
}

// CompactionPrompt builds the summarization prompt used when conversation
// history is compacted.
func CompactionPrompt(historyString string) string {
	return "Summarize the following conversation history factually and concisely, preserving any facts, decisions, " +
		"or results a later turn might need:\n\n" + historyString
}
