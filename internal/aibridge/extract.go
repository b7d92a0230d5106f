package aibridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/thinkblock/internal/apperr"
)

// rawPrefixLen bounds how much model output a ParseError keeps.
const rawPrefixLen = 500

// ParseError reports model output that holds no decodable JSON payload.
type ParseError struct {
	Raw string // leading part of the model text
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable AI response: %v", e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{apperr.ErrAIService, e.Err} }

func newParseError(text string, err error) *ParseError {
	raw := text
	if len(raw) > rawPrefixLen {
		raw = raw[:rawPrefixLen]
	}
	return &ParseError{Raw: raw, Err: err}
}

var (
	jsonFence = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	anyFence  = regexp.MustCompile("(?s)```\\s*(.*?)\\s*```")
)

// ExtractJSON pulls the single JSON object or array out of free-form model
// text and returns its raw bytes.
//
// A ```json fence wins over any other fence; a bare fence has a leading
// "json" tag stripped. The first '{' then starts a string-aware balanced
// scan. An array is taken instead only when the body opens with '[' or the
// array holds objects, so bracketed prose like "[1]" is never the payload.
// A segment that does not decode goes through repairTruncated once; if that
// fails too a *ParseError is returned.
func ExtractJSON(text string) (json.RawMessage, error) {
	body := stripFences(strings.TrimSpace(text))

	first, firstErr := decodeSegment(body, "{[")
	if firstErr == nil && (first[0] == '{' || strings.HasPrefix(body, "[") || isObjectArray(first)) {
		return first, nil
	}

	obj, err := decodeSegment(body, "{")
	if err != nil {
		if firstErr != nil {
			err = firstErr
		}
		return nil, newParseError(text, err)
	}
	return obj, nil
}

// decodeSegment returns the balanced value starting at the first of openers,
// repaired if it was cut off.
func decodeSegment(body, openers string) (json.RawMessage, error) {
	candidate, err := balancedSegment(body, openers)
	if err != nil {
		return nil, err
	}
	if json.Valid([]byte(candidate)) {
		return json.RawMessage(candidate), nil
	}

	var v any
	decodeErr := json.Unmarshal([]byte(candidate), &v)
	if repaired, ok := repairTruncated(candidate, errorOffset(decodeErr, len(candidate))); ok {
		return json.RawMessage(repaired), nil
	}
	return nil, decodeErr
}

func isObjectArray(raw json.RawMessage) bool {
	var items []map[string]any
	return json.Unmarshal(raw, &items) == nil && len(items) > 0
}

func stripFences(text string) string {
	if strings.Contains(text, "```json") {
		if m := jsonFence.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
		rest := strings.SplitN(text, "```json", 2)[1]
		return strings.TrimSpace(strings.SplitN(rest, "```", 2)[0])
	}
	if strings.Contains(text, "```") {
		inner := ""
		if m := anyFence.FindStringSubmatch(text); m != nil {
			inner = strings.TrimSpace(m[1])
		} else {
			inner = strings.TrimSpace(strings.SplitN(text, "```", 3)[1])
		}
		if strings.HasPrefix(inner, "json") {
			inner = strings.TrimSpace(inner[len("json"):])
		}
		return inner
	}
	return text
}

// balancedSegment returns the first top-level value in s that opens with one
// of openers. When no balancing close exists it falls back to the last
// matching close character, or to the remainder of s.
func balancedSegment(s, openers string) (string, error) {
	start := strings.IndexAny(s, openers)
	if start < 0 {
		return "", errors.New("no JSON object found")
	}
	open := s[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1]), nil
			}
		}
	}

	if last := strings.LastIndexByte(s, closer); last > start {
		return strings.TrimSpace(s[start : last+1]), nil
	}
	return strings.TrimSpace(s[start:]), nil
}

func errorOffset(err error, fallback int) int {
	var syn *json.SyntaxError
	if errors.As(err, &syn) && syn.Offset > 0 && int(syn.Offset) <= fallback {
		return int(syn.Offset)
	}
	var typ *json.UnmarshalTypeError
	if errors.As(err, &typ) && typ.Offset > 0 && int(typ.Offset) <= fallback {
		return int(typ.Offset)
	}
	return fallback
}

// repairTruncated closes a payload cut off mid-stream. It first closes the
// open brackets as they stand; failing that it drops everything from the
// last comma before offset (the incomplete trailing element) and closes
// again.
func repairTruncated(s string, offset int) (string, bool) {
	if offset > len(s) {
		offset = len(s)
	}
	if offset == len(s) {
		if repaired, ok := closeOpen(s); ok {
			return repaired, true
		}
	}
	cut := lastStructuralComma(s[:offset])
	if cut < 0 {
		return "", false
	}
	return closeOpen(s[:cut])
}

func closeOpen(s string) (string, bool) {
	prefix := strings.TrimRight(s, " \t\r\n")
	stack, ok := openBrackets(prefix)
	if !ok || len(stack) == 0 {
		return "", false
	}
	var b strings.Builder
	b.WriteString(prefix)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte('\n')
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	repaired := b.String()
	if !json.Valid([]byte(repaired)) {
		return "", false
	}
	return repaired, true
}

// lastStructuralComma finds the last comma outside string literals.
func lastStructuralComma(s string) int {
	last := -1
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case ch == ',' && !inString:
			last = i
		}
	}
	return last
}

// openBrackets returns the unclosed '{' / '[' of s in order. It fails when s
// ends inside a string literal.
func openBrackets(s string) ([]byte, bool) {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '{', '[':
			stack = append(stack, ch)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return stack, !inString
}
