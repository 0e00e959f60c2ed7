package ai

import (
	"encoding/json"
	"errors"
)

var ErrNoJSONObject = errors.New("no complete JSON object in text")

// ExtractJSONObject returns the first balanced {...} span of text that is
// valid JSON. Braces inside string literals are ignored. Candidates that
// balance but fail to parse are skipped and the search resumes at the next
// opening brace.
func ExtractJSONObject(text string) (string, error) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		end, ok := matchBrace(text, start)
		if !ok {
			continue
		}
		if candidate := text[start : end+1]; json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}
	return "", ErrNoJSONObject
}

// matchBrace finds the index of the brace closing text[start].
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
