// Package toolcall implements the Tool-Call Protocol: extracting
// delimiter-framed JSON tool invocations embedded in free-form model text.
package toolcall

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
)

// Opener and Closer are the literal, case-sensitive delimiters framing one
// tool call block.
const (
	Opener = "<<<TOOL_CALL>>>"
	Closer = "<<<END_TOOL_CALL>>>"
)

// Call is a parsed tool invocation.
type Call struct {
	ID        string
	Name      string
	Arguments json.RawMessage
	Start     int
	End       int
}

// rawCall is the JSON shape required between the delimiters.
type rawCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

var idCounter atomic.Int64

// IDGenerator produces synthetic call ids; overridable in tests for
// deterministic output. The default produces a "call-<timestamp>-<counter>"
// shape.
var IDGenerator = func() string {
	return fmt.Sprintf("call-%d-%d", nowUnixNano(), idCounter.Add(1))
}

// Result is the outcome of parsing one model turn.
type Result struct {
	Calls []Call

	// SawMalformed is true when at least one opener was found whose block
	// failed to parse or validate as a call, or which had no closer — as
	// opposed to no opener appearing at all. The engine uses this to distinguish
	// "no tool call intended" from "attempted and malformed"; only the
	// latter triggers a format-retry round.
	SawMalformed bool
}

// ContainsAny reports whether any well-formed call was found.
func (r Result) ContainsAny() bool { return len(r.Calls) > 0 }

// Parse scans text left to right for opener/closer pairs and extracts
// well-formed calls, per the deterministic recovery rule:
// on a malformed or wrong-shaped block, scanning resumes strictly after the
// closer — never by seeking a different closer for the same opener. A
// dangling opener with no matching closer ends the scan with zero calls
// for that block and is not an error, though it sets SawMalformed.
func Parse(text string) Result {
	var result Result
	cursor := 0

	for {
		openIdx := strings.Index(text[cursor:], Opener)
		if openIdx < 0 {
			break
		}
		openIdx += cursor
		contentStart := openIdx + len(Opener)

		closeIdx := strings.Index(text[contentStart:], Closer)
		if closeIdx < 0 {
			// Dangling opener: no closer anywhere after it. Stop scanning;
			// no call is emitted for this or any later opener, since a
			// single unmatched opener makes the remainder unparseable
			// under this grammar.
			result.SawMalformed = true
			break
		}
		closeIdx += contentStart
		blockEnd := closeIdx + len(Closer)

		inner := strings.TrimSpace(text[contentStart:closeIdx])

		var raw rawCall
		if err := json.Unmarshal([]byte(inner), &raw); err != nil {
			result.SawMalformed = true
			cursor = blockEnd
			continue
		}
		if !isValidShape(inner, raw) {
			result.SawMalformed = true
			cursor = blockEnd
			continue
		}

		result.Calls = append(result.Calls, Call{
			ID:        IDGenerator(),
			Name:      raw.Name,
			Arguments: raw.Arguments,
			Start:     openIdx,
			End:       blockEnd,
		})
		cursor = blockEnd
	}

	return result
}

// isValidShape enforces: name is a non-empty string, arguments is a JSON
// object (not array, not null, not a scalar).
func isValidShape(rawJSON string, c rawCall) bool {
	if c.Name == "" {
		return false
	}
	if len(c.Arguments) == 0 {
		return false
	}
	var probe any
	if err := json.Unmarshal(c.Arguments, &probe); err != nil {
		return false
	}
	_, isObject := probe.(map[string]any)
	return isObject
}

// ExtractAndReplace returns text with each well-formed call block replaced
// by a "[Tool Call: <name>]" placeholder, for display layers.
func ExtractAndReplace(text string) (string, Result) {
	result := Parse(text)
	if len(result.Calls) == 0 {
		return text, result
	}

	var b strings.Builder
	prev := 0
	for _, c := range result.Calls {
		b.WriteString(text[prev:c.Start])
		b.WriteString("[Tool Call: " + c.Name + "]")
		prev = c.End
	}
	b.WriteString(text[prev:])
	return b.String(), result
}
