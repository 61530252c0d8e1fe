package speech

import (
	"context"
	"log/slog"
	"strings"
)

// History records transcript lines for display.
type History interface {
	AddHistory(line string)
}

// Enqueuer accepts lines for asynchronous speech.
type Enqueuer interface {
	Enqueue(text string) bool
}

// Speaker is the single entry point components use to talk.
type Speaker struct {
	name    string
	queue   Enqueuer
	history History
	logger  *slog.Logger
}

func NewSpeaker(name string, queue Enqueuer, history History, logger *slog.Logger) *Speaker {
	if strings.TrimSpace(name) == "" {
		name = "Jarvis"
	}
	return &Speaker{name: name, queue: queue, history: history, logger: logger}
}

// Say logs the line, appends it to history, and queues it for speech.
func (s *Speaker) Say(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if s.logger != nil {
		s.logger.LogAttrs(context.Background(), slog.LevelInfo, "assistant reply",
			slog.String("speaker", s.name),
			slog.String("text", text),
		)
	}
	if s.history != nil {
		s.history.AddHistory(s.name + ": " + text)
	}
	if s.queue != nil {
		s.queue.Enqueue(text)
	}
}
