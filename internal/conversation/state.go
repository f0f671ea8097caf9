package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// CompactionThreshold and TailSize are the fixed constants
const (
	CompactionThreshold = 14
	TailSize            = 10
)

// Anchor is the verification_anchor: the original request,
// the generated criteria, and the body index of the User message that
// established it.
type Anchor struct {
	OriginalUserText string
	CriteriaText     string
	TurnIndex        int
}

// Summarizer is the single model-call seam compaction needs. It is kept
// narrow and defined here (rather than depending on the llm package) so
// that conversation state has no outward dependency on model-client
// concerns; the Engine wires a concrete implementation in.
type Summarizer interface {
	Summarize(ctx context.Context, historyText string) (string, error)
}

// State is the pure in-memory Conversation State
type State struct {
	systemPrompt        string
	originalSystemText  string
	body                []Message
	turnCounter         int
	anchor              *Anchor
	compactedBeforeBody bool

	logger *slog.Logger
}

// New creates an empty conversation state.
func New(logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	return &State{logger: logger.With("component", "conversation")}
}

// Append adds a message to the body, incrementing turn_counter on User
// messages.
func (s *State) Append(msg Message) {
	if msg.Role == RoleUser {
		s.turnCounter++
	}
	s.body = append(s.body, msg)
}

// ClearLastPending flips Pending to false on the most recently appended AI
// message, once all of its announced calls have been resolved.
func (s *State) ClearLastPending() {
	for i := len(s.body) - 1; i >= 0; i-- {
		if s.body[i].Role == RoleAI {
			s.body[i].Pending = false
			return
		}
	}
}

// LastContent returns the content of the last appended message, or "" if
// the body is empty.
func (s *State) LastContent() string {
	if len(s.body) == 0 {
		return ""
	}
	return s.body[len(s.body)-1].Content
}

// SetSystemPrompt installs (or rewrites) the system prompt slot.
func (s *State) SetSystemPrompt(text string) {
	s.systemPrompt = text
	s.originalSystemText = text
}

// Clear resets the state entirely, including turn_counter and the anchor.
func (s *State) Clear() {
	s.systemPrompt = ""
	s.originalSystemText = ""
	s.body = nil
	s.turnCounter = 0
	s.anchor = nil
	s.compactedBeforeBody = false
}

// Messages returns the system prompt (if any) prefixed to the body.
func (s *State) Messages() []Message {
	if s.systemPrompt == "" {
		out := make([]Message, len(s.body))
		copy(out, s.body)
		return out
	}
	out := make([]Message, 0, len(s.body)+1)
	out = append(out, System(s.systemPrompt))
	out = append(out, s.body...)
	return out
}

// Body returns the non-system message list.
func (s *State) Body() []Message {
	out := make([]Message, len(s.body))
	copy(out, s.body)
	return out
}

// Turn returns the current turn_counter.
func (s *State) Turn() int { return s.turnCounter }

// SetVerificationAnchor sets the anchor at most once per conversation; later
// calls are no-ops so that the first User turn's anchor sticks.
func (s *State) SetVerificationAnchor(userText, criteria string) {
	if s.anchor != nil {
		return
	}
	s.anchor = &Anchor{
		OriginalUserText: userText,
		CriteriaText:     criteria,
		TurnIndex:        len(s.body) - 1,
	}
}

// VerificationAnchor returns the anchor, or nil if unset.
func (s *State) VerificationAnchor() *Anchor { return s.anchor }

// ClearVerificationAnchor drops the anchor, e.g. on model-client switch.
func (s *State) ClearVerificationAnchor() { s.anchor = nil }

// SequenceSinceAnchorForVerification renders the post-anchor messages to a
// labeled transcript string for the Verification Prompt.
func (s *State) SequenceSinceAnchorForVerification() string {
	if s.anchor == nil {
		return renderTranscript(s.body)
	}
	if s.compactedBeforeBody && s.anchor.TurnIndex < 0 {
		note := "[earlier context was compacted]\n"
		return note + renderTranscript(s.body)
	}
	start := s.anchor.TurnIndex
	if start < 0 || start >= len(s.body) {
		return renderTranscript(s.body)
	}
	return renderTranscript(s.body[start:])
}

func renderTranscript(msgs []Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		switch m.Role {
		case RoleUser:
			b.WriteString("User: " + m.Content)
		case RoleAI:
			b.WriteString("Assistant: " + m.Content)
		case RoleToolResult:
			b.WriteString(fmt.Sprintf("Tool (%s) Result: %s", m.ToolName, m.Content))
		case RoleSystem:
			b.WriteString("System: " + m.Content)
		}
	}
	return b.String()
}

// MaybeCompact runs compaction when len(body) >= CompactionThreshold. A
// history already at or below TailSize is a no-op.
func (s *State) MaybeCompact(ctx context.Context, summarizer Summarizer) {
	if len(s.body) < CompactionThreshold {
		return
	}

	head := s.body[:len(s.body)-TailSize]
	tail := s.body[len(s.body)-TailSize:]

	summary, err := summarizer.Summarize(ctx, renderTranscript(head))
	if err != nil {
		s.logger.Warn("compaction summarization failed, dropping head only", "error", err)
		s.applyCompaction(tail, len(head), s.originalSystemText)
		return
	}

	prefixed := "[Previous conversation summary:\n" + summary + "\n]\n\n" + s.originalSystemText
	s.applyCompaction(tail, len(head), prefixed)
}

func (s *State) applyCompaction(tail []Message, headLen int, systemPrompt string) {
	s.systemPrompt = systemPrompt
	s.body = append([]Message{}, tail...)
	s.compactedBeforeBody = false
	if s.anchor != nil {
		if s.anchor.TurnIndex < headLen {
			// Anchor fell inside the summarized region; flag so rendering
			// knows the pre-compaction sequence is gone.
			s.anchor.TurnIndex = -1
			s.compactedBeforeBody = true
		} else {
			s.anchor.TurnIndex -= headLen
		}
	}
}
