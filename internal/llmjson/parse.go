// Package llmjson recovers a line-item document from free-form model output.
//
// Model output is untrusted: it may be wrapped in markdown fences, surrounded
// by prose, written with Python literal syntax, carry trailing commas, or be
// cut off mid-object. Parse never fails; the worst case is an empty item list.
package llmjson

import (
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Stage names the step of the recovery chain that produced a document.
type Stage string

const (
	StageStrict    Stage = "strict"
	StageRepaired  Stage = "repaired"
	StageTruncated Stage = "truncated"
	StageLiteral   Stage = "python_literal"
	StageNone      Stage = "none"
)

// Document is the recovered payload. Items is never nil; its elements are
// whatever the model emitted and are validated downstream.
type Document struct {
	Items []any
	Stage Stage
}

var (
	reFenceOpen     = regexp.MustCompile("^```[A-Za-z0-9_-]*[ \t]*\r?\n?")
	reFenceClose    = regexp.MustCompile("\\s*```\\s*$")
	reTrailingComma = regexp.MustCompile(`,\s*([}\]])`)
	reTrue          = regexp.MustCompile(`\bTrue\b`)
	reFalse         = regexp.MustCompile(`\bFalse\b`)
	reNone          = regexp.MustCompile(`\bNone\b`)
)

// StripFences removes a leading ``` or ```lang fence and a trailing ``` fence.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	s = reFenceOpen.ReplaceAllString(s, "")
	s = reFenceClose.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Parse runs the recovery chain and stops at the first step that yields an
// object.
func Parse(text string) Document {
	stripped := StripFences(text)

	if obj, ok := decodeObject(stripped); ok {
		return Document{Items: extractItems(obj), Stage: StageStrict}
	}

	fragment, hasFragment := braceSlice(stripped)
	if hasFragment {
		if obj, ok := decodeObject(repair(fragment)); ok {
			return Document{Items: extractItems(obj), Stage: StageRepaired}
		}
	}

	if closed, ok := closeTruncated(stripped); ok {
		if obj, ok := decodeObject(repair(closed)); ok {
			return Document{Items: extractItems(obj), Stage: StageTruncated}
		}
	}

	for _, candidate := range []string{strings.TrimSpace(text), stripped, fragment} {
		if candidate == "" {
			continue
		}
		if v, err := ParseLiteral(candidate); err == nil {
			if obj, ok := v.(map[string]any); ok {
				return Document{Items: extractItems(obj), Stage: StageLiteral}
			}
		}
	}

	if strings.TrimSpace(text) != "" {
		zap.L().Warn("llmjson: no recoverable object in model output",
			zap.Int("length", len(text)),
		)
	}
	return Document{Items: []any{}, Stage: StageNone}
}

func decodeObject(s string) (map[string]any, bool) {
	if s == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

// braceSlice returns the span from the first '{' to the last '}'.
func braceSlice(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// repair applies the textual fixes for the most common model mistakes.
func repair(s string) string {
	s = reTrailingComma.ReplaceAllString(s, "$1")
	s = reTrue.ReplaceAllString(s, "true")
	s = reFalse.ReplaceAllString(s, "false")
	s = reNone.ReplaceAllString(s, "null")
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		s = strings.ReplaceAll(s, "'", `"`)
	}
	return s
}

// closeTruncated cuts s back to the last complete value nested inside the
// root object and appends the closers that were still open. It returns false
// when s holds no object or nothing complete was found.
func closeTruncated(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start < 0 {
		return "", false
	}
	s = s[start:]

	var (
		stack    []byte
		inString bool
		quote    byte
		escaped  bool
		cut      = -1
		cutStack []byte
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				inString = false
			}
			continue
		}
		switch c {
		case '"', '\'':
			inString = true
			quote = c
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				// Root closed; nothing to repair.
				return "", false
			}
			cut = i + 1
			cutStack = append(cutStack[:0], stack...)
		}
	}
	if cut < 0 {
		return "", false
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(strings.TrimSpace(s[:cut]), ","))
	for i := len(cutStack) - 1; i >= 0; i-- {
		b.WriteByte(cutStack[i])
	}
	return b.String(), true
}

// extractItems pulls the item list from the places models tend to put it.
func extractItems(obj map[string]any) []any {
	if items, ok := obj["items"].([]any); ok {
		return items
	}
	if result, ok := obj["result"].(map[string]any); ok {
		if items, ok := result["items"].([]any); ok {
			return items
		}
	}
	if data, ok := obj["data"].([]any); ok {
		return data
	}
	return []any{}
}
