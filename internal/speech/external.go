package speech

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const externalTimeout = 30 * time.Second

// CommandTier runs an OS speech command with the text as its final argument.
type CommandTier struct {
	Argv []string
}

func (c CommandTier) Speak(ctx context.Context, text string) error {
	if len(c.Argv) == 0 {
		return errors.New("speech command argv cannot be empty")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, externalTimeout)
	defer cancel()

	args := append(append([]string(nil), c.Argv[1:]...), text)
	out, err := exec.CommandContext(ctx, c.Argv[0], args...).CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return fmt.Errorf("speech command %s: %w", c.Argv[0], err)
		}
		return fmt.Errorf("speech command %s: %w (%s)", c.Argv[0], err, trimmed)
	}
	return nil
}
