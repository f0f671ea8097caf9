package prompt

import (
	"strings"
	"testing"

	"github.com/agentcore/agentcore/internal/mcpfleet"
	"github.com/agentcore/agentcore/internal/toolcall"
)

func TestToolSystemPrompt_NoToolsPlaceholder(t *testing.T) {
	got := ToolSystemPrompt(nil)
	if !strings.Contains(got, noToolsAvailable) {
		t.Errorf("expected no-tools placeholder, got %q", got)
	}
}

func TestToolSystemPrompt_ListsEachTool(t *testing.T) {
	tools := []mcpfleet.ToolDescriptor{
		{Name: "search", Description: "search the web", InputSchema: []byte(`{"type":"object"}`)},
	}
	got := ToolSystemPrompt(tools)
	if !strings.Contains(got, "## search") {
		t.Errorf("expected tool heading, got %q", got)
	}
	if !strings.Contains(got, "search the web") {
		t.Error("expected description present")
	}
	if !strings.Contains(got, toolcall.Opener) || !strings.Contains(got, toolcall.Closer) {
		t.Error("expected delimiter usage example present")
	}
}

func TestVerificationPrompt_RequestsRawJSON(t *testing.T) {
	got := VerificationPrompt("req", "criteria", "history")
	if !strings.Contains(got, `{"passes": boolean, "feedback": string}`) {
		t.Errorf("expected raw JSON instruction, got %q", got)
	}
}

func TestVerificationCriteriaPrompt_EmbedsUserRequest(t *testing.T) {
	got := VerificationCriteriaPrompt("what is the capital of France")
	if !strings.Contains(got, "what is the capital of France") {
		t.Error("expected user request embedded")
	}
	if !strings.Contains(got, "starting with '- '") {
		t.Error("expected criteria formatting instruction")
	}
}

func TestVerificationFailurePrompt_EmbedsFeedback(t *testing.T) {
	got := VerificationFailurePrompt("missing the capital city name")
	if !strings.Contains(got, "missing the capital city name") {
		t.Error("expected feedback embedded")
	}
}

func TestCompactionPrompt_EmbedsHistory(t *testing.T) {
	got := CompactionPrompt("User: hi\nAssistant: hello")
	if !strings.Contains(got, "User: hi\nAssistant: hello") {
		t.Error("expected history embedded")
	}
}
