package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubSummarizer struct {
	summary string
	err     error
}

func (s *stubSummarizer) Summarize(ctx context.Context, historyText string) (string, error) {
	return s.summary, s.err
}

func fillBody(s *State, n int) {
	for i := 0; i < n; i++ {
		s.Append(User("msg"))
	}
}

func TestAppend_TurnCounterTracksUserMessages(t *testing.T) {
	s := New(nil)
	s.Append(User("hi"))
	s.Append(AI("hello", nil))
	s.Append(User("again"))
	if s.Turn() != 2 {
		t.Errorf("turn = %d, want 2", s.Turn())
	}
}

func TestClear_ResetsTurnCounterAndAnchor(t *testing.T) {
	s := New(nil)
	s.Append(User("hi"))
	s.SetVerificationAnchor("hi", "criteria")
	s.Clear()
	if s.Turn() != 0 {
		t.Errorf("turn = %d, want 0", s.Turn())
	}
	if s.VerificationAnchor() != nil {
		t.Error("expected anchor cleared")
	}
}

func TestSetVerificationAnchor_OnlySetsOnce(t *testing.T) {
	s := New(nil)
	s.Append(User("first"))
	s.SetVerificationAnchor("first", "c1")
	s.Append(User("second"))
	s.SetVerificationAnchor("second", "c2")

	anchor := s.VerificationAnchor()
	if anchor.OriginalUserText != "first" {
		t.Errorf("anchor should stick to first call, got %q", anchor.OriginalUserText)
	}
}

func TestMessages_PrefixesSystemPrompt(t *testing.T) {
	s := New(nil)
	s.SetSystemPrompt("sys")
	s.Append(User("hi"))
	msgs := s.Messages()
	if len(msgs) != 2 || msgs[0].Role != RoleSystem {
		t.Fatalf("expected system-prefixed messages, got %+v", msgs)
	}
}

func TestMessages_NoSystemPromptOmitsPrefix(t *testing.T) {
	s := New(nil)
	s.Append(User("hi"))
	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
}

func TestMaybeCompact_NoOpBelowThreshold(t *testing.T) {
	s := New(nil)
	s.SetSystemPrompt("orig")
	fillBody(s, TailSize)
	s.MaybeCompact(context.Background(), &stubSummarizer{summary: "should not be used"})
	if len(s.Body()) != TailSize {
		t.Fatalf("expected no-op compaction, got %d messages", len(s.Body()))
	}
	if s.Messages()[0].Content != "orig" {
		t.Error("system prompt should be unchanged")
	}
}

func TestMaybeCompact_ReplacesHeadWithSummary(t *testing.T) {
	s := New(nil)
	s.SetSystemPrompt("orig")
	fillBody(s, CompactionThreshold)
	s.MaybeCompact(context.Background(), &stubSummarizer{summary: "the gist"})

	body := s.Body()
	if len(body) != TailSize {
		t.Fatalf("expected body trimmed to %d, got %d", TailSize, len(body))
	}
	msgs := s.Messages()
	if !strings.HasPrefix(msgs[0].Content, "[Previous conversation summary:") {
		t.Errorf("system prompt = %q", msgs[0].Content)
	}
	if !strings.Contains(msgs[0].Content, "the gist") {
		t.Error("expected summary text embedded in system prompt")
	}
	if !strings.HasSuffix(msgs[0].Content, "orig") {
		t.Error("expected original system prompt preserved as suffix")
	}
}

func TestMaybeCompact_PreservesTurnCounter(t *testing.T) {
	s := New(nil)
	s.SetSystemPrompt("orig")
	fillBody(s, CompactionThreshold)
	before := s.Turn()
	s.MaybeCompact(context.Background(), &stubSummarizer{summary: "gist"})
	if s.Turn() != before {
		t.Errorf("turn_counter changed across compaction: %d -> %d", before, s.Turn())
	}
}

func TestMaybeCompact_FailureKeepsTailOnlyNoSummaryPrefix(t *testing.T) {
	s := New(nil)
	s.SetSystemPrompt("orig")
	fillBody(s, CompactionThreshold)
	s.MaybeCompact(context.Background(), &stubSummarizer{err: errors.New("boom")})

	if len(s.Body()) != TailSize {
		t.Fatalf("expected body trimmed to tail, got %d", len(s.Body()))
	}
	if s.Messages()[0].Content != "orig" {
		t.Errorf("expected original system prompt preserved verbatim, got %q", s.Messages()[0].Content)
	}
}

func TestSequenceSinceAnchorForVerification_RendersLabeledTranscript(t *testing.T) {
	s := New(nil)
	s.Append(User("question"))
	s.SetVerificationAnchor("question", "criteria")
	s.Append(AI("answer", nil))
	s.Append(ToolResult("id1", "search", "result text"))

	got := s.SequenceSinceAnchorForVerification()
	if !strings.Contains(got, "User: question") || !strings.Contains(got, "Assistant: answer") || !strings.Contains(got, "Tool (search) Result: result text") {
		t.Errorf("got %q", got)
	}
}
