package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// thinkTagPattern matches a <think>...</think> block at the start of a
// response. Reasoning models emit these before the actual answer.
var thinkTagPattern = regexp.MustCompile(`(?s)^[\s]*<think>.*?</think>[\s]*`)

// codeFencePattern matches a response that is one fenced code block.
var codeFencePattern = regexp.MustCompile("(?s)^\\s*```(?:json)?\\s*\\n?(.*?)\\n?\\s*```\\s*$")

// StripThinkTags removes a leading <think> block from a model response.
func StripThinkTags(response string) string {
	return thinkTagPattern.ReplaceAllString(response, "")
}

// StripCodeFence unwraps a response wrapped in a single markdown code fence.
func StripCodeFence(response string) string {
	if m := codeFencePattern.FindStringSubmatch(response); len(m) == 2 {
		return m[1]
	}
	return response
}

// ExtractJSON digs the first complete JSON object or array out of a
// response that may contain think tags, code fences, or surrounding prose.
func ExtractJSON(response string) (string, error) {
	cleaned := StripCodeFence(StripThinkTags(response))

	// Prefer the object form when both appear.
	if jsonStr, ok := extractBalancedJSON(cleaned, '{', '}'); ok && json.Valid([]byte(jsonStr)) {
		return jsonStr, nil
	}
	if jsonStr, ok := extractBalancedJSON(cleaned, '[', ']'); ok && json.Valid([]byte(jsonStr)) {
		return jsonStr, nil
	}

	// Last resort: the entire cleaned response may already be valid JSON.
	trimmed := strings.TrimSpace(cleaned)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	return "", fmt.Errorf("no valid JSON found in response")
}

// extractBalancedJSON finds the first balanced JSON structure starting with
// openChar, counting bracket depth and skipping string contents.
func extractBalancedJSON(s string, openChar, closeChar byte) (string, bool) {
	start := strings.IndexByte(s, openChar)
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}

		if c == '\\' && inString {
			escaped = true
			continue
		}

		if c == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		if c == openChar {
			depth++
		} else if c == closeChar {
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}
