// Package wake runs the voice loop: wait for a wake phrase, extract or
// solicit the command, and hand it to the dispatcher.
package wake

import "strings"

var textModePhrases = map[string]struct{}{
	"switch to typing":    {},
	"switch to text mode": {},
	"go to text mode":     {},
	"typing mode":         {},
	"text mode":           {},
	"stop listening":      {},
	"type mode":           {},
	"switch typing":       {},
	"switch typing mode":  {},
}

// IsTextModePhrase reports whether text asks to switch to typed input.
func IsTextModePhrase(text string) bool {
	_, ok := textModePhrases[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

// MatchWake finds a wake phrase in text. When several match, the one listed
// last in phrases wins.
func MatchWake(text string, phrases []string) (string, bool) {
	text = strings.ToLower(text)
	matched := ""
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && strings.Contains(text, p) {
			matched = p
		}
	}
	return matched, matched != ""
}

// TrailingCommand returns what follows the last occurrence of phrase, with
// surrounding whitespace and recognizer punctuation trimmed.
func TrailingCommand(text, phrase string) string {
	text = strings.ToLower(text)
	idx := strings.LastIndex(text, strings.ToLower(phrase))
	if idx < 0 {
		return ""
	}
	return strings.Trim(text[idx+len(phrase):], " \t\n,.!?;:")
}

// Extract combines MatchWake and TrailingCommand.
func Extract(text string, phrases []string) (command string, woke bool) {
	phrase, ok := MatchWake(text, phrases)
	if !ok {
		return "", false
	}
	return TrailingCommand(text, phrase), true
}
