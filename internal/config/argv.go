package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

var (
	errOpenQuote  = errors.New("unterminated quote")
	errOpenEscape = errors.New("unterminated escape sequence")
)

// ParseCommand splits a speech command string into argv. Quotes and
// backslash escapes work as in a POSIX shell without expansion, except that
// a leading ~/ or $VAR in the executable is resolved so synthesizers living
// in the user's home can be configured portably. A string starting with #
// is treated as disabled and yields an empty command.
func ParseCommand(raw string) (CommandConfig, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return CommandConfig{}, nil
	}

	argv, err := splitWords(raw)
	if err != nil {
		return CommandConfig{}, fmt.Errorf("%w in command %q", err, raw)
	}
	argv[0] = expandExecutable(argv[0])
	return CommandConfig{Raw: raw, Argv: argv}, nil
}

func mustParseCommand(raw string) CommandConfig {
	cmd, err := ParseCommand(raw)
	if err != nil {
		panic(err)
	}
	return cmd
}

// wordSplitter accumulates runes into words.
type wordSplitter struct {
	words   []string
	word    strings.Builder
	inWord  bool
	quote   rune
	escaped bool
}

func (s *wordSplitter) add(r rune) {
	s.word.WriteRune(r)
	s.inWord = true
}

func (s *wordSplitter) end() {
	if !s.inWord {
		return
	}
	s.words = append(s.words, s.word.String())
	s.word.Reset()
	s.inWord = false
}

func splitWords(input string) ([]string, error) {
	var s wordSplitter
	for _, r := range input {
		switch {
		case s.escaped:
			s.add(r)
			s.escaped = false
		case r == '\\' && s.quote != '\'':
			s.escaped = true
		case s.quote != 0 && r == s.quote:
			s.quote = 0
		case s.quote != 0:
			s.add(r)
		case r == '\'' || r == '"':
			s.quote = r
			// "" is still a word.
			s.inWord = true
		case unicode.IsSpace(r):
			s.end()
		default:
			s.add(r)
		}
	}

	switch {
	case s.escaped:
		return nil, errOpenEscape
	case s.quote != 0:
		return nil, errOpenQuote
	}
	s.end()
	return s.words, nil
}

func expandExecutable(bin string) string {
	if strings.HasPrefix(bin, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, bin[2:])
		}
		return bin
	}
	if strings.HasPrefix(bin, "$") {
		return os.ExpandEnv(bin)
	}
	return bin
}
