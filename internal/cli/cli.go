// Package cli parses the jarvis command line.
package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Command string

const (
	CommandRun     Command = "run"
	CommandText    Command = "text"
	CommandSay     Command = "say"
	CommandMode    Command = "mode"
	CommandStatus  Command = "status"
	CommandStop    Command = "stop"
	CommandRemind  Command = "remind"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandRun:     {},
	CommandText:    {},
	CommandSay:     {},
	CommandMode:    {},
	CommandStatus:  {},
	CommandStop:    {},
	CommandRemind:  {},
	CommandDevices: {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

// Parsed is the command plus its operands. Text holds the say text, the
// mode name, or the reminder text; Minutes is set for remind.
type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
	Text       string
	Minutes    int
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			if err := parseOperands(&parsed, args[i+1:]); err != nil {
				return Parsed{}, err
			}
			return parsed, nil
		}
	}

	return parsed, nil
}

func parseOperands(parsed *Parsed, rest []string) error {
	switch parsed.Command {
	case CommandSay:
		text := strings.TrimSpace(strings.Join(rest, " "))
		if text == "" {
			return errors.New("say requires command text")
		}
		parsed.Text = text
	case CommandMode:
		if len(rest) != 1 {
			return errors.New("mode requires exactly one of: voice, text")
		}
		mode := strings.ToLower(strings.TrimSpace(rest[0]))
		if mode != "voice" && mode != "text" {
			return fmt.Errorf("unknown mode %q (expected voice or text)", rest[0])
		}
		parsed.Text = mode
	case CommandRemind:
		if len(rest) < 2 {
			return errors.New("remind requires MINUTES and TEXT")
		}
		minutes, err := strconv.Atoi(rest[0])
		if err != nil || minutes <= 0 {
			return fmt.Errorf("remind minutes must be a positive integer, got %q", rest[0])
		}
		text := strings.TrimSpace(strings.Join(rest[1:], " "))
		if text == "" {
			return errors.New("remind requires TEXT")
		}
		parsed.Minutes = minutes
		parsed.Text = text
	default:
		if len(rest) > 0 {
			return fmt.Errorf("unexpected arguments after command %q", parsed.Command)
		}
	}
	return nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command> [args]

Commands:
  run                   Start the assistant in voice mode
  text                  Start the assistant in text mode
  say TEXT              Send a command to the running assistant
  mode voice|text       Switch the running assistant's input mode
  status                Print the running assistant's mode and state
  stop                  Stop the running assistant
  remind MINUTES TEXT   Add a reminder directly to the store
  devices               List available input devices
  doctor                Run configuration and environment checks
  version               Print version information
  help                  Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/jarvis/config.yaml)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
