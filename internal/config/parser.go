package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

type yamlConfig struct {
	Assistant   *yamlAssistant   `yaml:"assistant"`
	Audio       *yamlAudio       `yaml:"audio"`
	Recognition *yamlRecognition `yaml:"recognition"`
	Recognizer  *yamlRecognizer  `yaml:"recognizer"`
	TTS         *yamlTTS         `yaml:"tts"`
	Indicator   *yamlIndicator   `yaml:"indicator"`
	Store       *yamlStore       `yaml:"store"`
	Ops         *yamlOps         `yaml:"ops"`
	Log         *yamlLog         `yaml:"log"`
}

type yamlAssistant struct {
	Name                  *string         `yaml:"name"`
	UserName              *string         `yaml:"user_name"`
	WakeWords             *yamlStringList `yaml:"wake_words"`
	IdlePromptSeconds     *int            `yaml:"idle_prompt_seconds"`
	MaxTimeoutsBeforeText *int            `yaml:"max_timeouts_before_text"`
	StartMode             *string         `yaml:"start_mode"`
}

type yamlAudio struct {
	Backend                *string  `yaml:"backend"`
	Input                  *string  `yaml:"input"`
	Fallback               *string  `yaml:"fallback"`
	RecorderDevice         *int     `yaml:"recorder_device"`
	RecorderSeconds        *float64 `yaml:"recorder_seconds"`
	CommandRecorderSeconds *float64 `yaml:"command_recorder_seconds"`
	SampleRate             *int     `yaml:"sample_rate"`
}

type yamlRecognition struct {
	DynamicEnergy          *bool    `yaml:"dynamic_energy"`
	EnergyThreshold        *int     `yaml:"energy_threshold"`
	PauseThreshold         *float64 `yaml:"pause_threshold"`
	NonSpeakingDuration    *float64 `yaml:"non_speaking_duration"`
	AdjustDuration         *float64 `yaml:"adjust_duration"`
	PhraseTimeLimit        *float64 `yaml:"phrase_time_limit"`
	CommandPhraseTimeLimit *float64 `yaml:"command_phrase_time_limit"`
	ListenTimeout          *float64 `yaml:"listen_timeout"`
}

type yamlRecognizer struct {
	URL        *string `yaml:"url"`
	Language   *string `yaml:"language"`
	TimeoutMS  *int    `yaml:"timeout_ms"`
	GRPCHealth *string `yaml:"grpc_health"`
}

type yamlTTS struct {
	Rate          *int     `yaml:"rate"`
	Volume        *float64 `yaml:"volume"`
	Voice         *string  `yaml:"voice"`
	SynthCmd      *string  `yaml:"synth_cmd"`
	SpeakCmd      *string  `yaml:"speak_cmd"`
	ForceFallback *bool    `yaml:"force_fallback"`
}

type yamlIndicator struct {
	SoundEnable    *bool   `yaml:"sound_enable"`
	CueFile        *string `yaml:"cue_file"`
	DesktopNotify  *bool   `yaml:"desktop_notify"`
	DesktopAppName *string `yaml:"desktop_app_name"`
}

type yamlStore struct {
	Path *string `yaml:"path"`
}

type yamlOps struct {
	Listen *string `yaml:"listen"`
}

type yamlLog struct {
	Level *string `yaml:"level"`
}

// yamlStringList accepts either a sequence or a comma-delimited scalar.
type yamlStringList []string

func (l *yamlStringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*l = list
		return nil
	case yaml.ScalarNode:
		*l = splitList(node.Value)
		return nil
	default:
		return fmt.Errorf("line %d: expected string list or comma-delimited string", node.Line)
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// Parse reads YAML configuration content and overlays it on base.
//
// Unknown keys are rejected so typos surface at startup instead of silently
// falling back to defaults.
func Parse(content string, base Config) (Config, []Warning, error) {
	if strings.TrimSpace(content) == "" {
		validatedWarnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, validatedWarnings, nil
	}

	decoder := yaml.NewDecoder(strings.NewReader(content))
	decoder.KnownFields(true)

	var payload yamlConfig
	if err := decoder.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			validatedWarnings, vErr := Validate(base)
			if vErr != nil {
				return Config{}, nil, vErr
			}
			return base, validatedWarnings, nil
		}
		return Config{}, nil, fmt.Errorf("invalid yaml: %w", err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func (payload yamlConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if a := payload.Assistant; a != nil {
		if a.Name != nil {
			cfg.Assistant.Name = strings.TrimSpace(*a.Name)
		}
		if a.UserName != nil {
			cfg.Assistant.UserName = strings.TrimSpace(*a.UserName)
		}
		if a.WakeWords != nil {
			words := make([]string, 0, len(*a.WakeWords))
			for _, word := range *a.WakeWords {
				word = strings.ToLower(strings.TrimSpace(word))
				if word == "" {
					continue
				}
				words = append(words, word)
			}
			cfg.Assistant.WakeWords = words
		}
		if a.IdlePromptSeconds != nil {
			cfg.Assistant.IdlePromptSeconds = *a.IdlePromptSeconds
		}
		if a.MaxTimeoutsBeforeText != nil {
			cfg.Assistant.MaxTimeoutsBeforeText = *a.MaxTimeoutsBeforeText
		}
		if a.StartMode != nil {
			cfg.Assistant.StartMode = strings.ToLower(strings.TrimSpace(*a.StartMode))
		}
	}

	if a := payload.Audio; a != nil {
		if a.Backend != nil {
			cfg.Audio.Backend = strings.ToLower(strings.TrimSpace(*a.Backend))
		}
		if a.Input != nil {
			cfg.Audio.Input = *a.Input
		}
		if a.Fallback != nil {
			cfg.Audio.Fallback = *a.Fallback
		}
		if a.RecorderDevice != nil {
			cfg.Audio.RecorderDevice = *a.RecorderDevice
		}
		if a.RecorderSeconds != nil {
			cfg.Audio.RecorderSeconds = *a.RecorderSeconds
		}
		if a.CommandRecorderSeconds != nil {
			cfg.Audio.CommandRecorderSeconds = *a.CommandRecorderSeconds
		}
		if a.SampleRate != nil {
			cfg.Audio.SampleRate = *a.SampleRate
		}
	}

	if r := payload.Recognition; r != nil {
		if r.DynamicEnergy != nil {
			cfg.Recognition.DynamicEnergy = *r.DynamicEnergy
		}
		if r.EnergyThreshold != nil {
			cfg.Recognition.EnergyThreshold = *r.EnergyThreshold
		}
		if r.PauseThreshold != nil {
			cfg.Recognition.PauseThreshold = *r.PauseThreshold
		}
		if r.NonSpeakingDuration != nil {
			cfg.Recognition.NonSpeakingDuration = *r.NonSpeakingDuration
		}
		if r.AdjustDuration != nil {
			cfg.Recognition.AdjustDuration = *r.AdjustDuration
		}
		if r.PhraseTimeLimit != nil {
			cfg.Recognition.PhraseTimeLimit = *r.PhraseTimeLimit
		}
		if r.CommandPhraseTimeLimit != nil {
			cfg.Recognition.CommandPhraseTimeLimit = *r.CommandPhraseTimeLimit
		}
		if r.ListenTimeout != nil {
			cfg.Recognition.ListenTimeout = *r.ListenTimeout
		}
	}

	if r := payload.Recognizer; r != nil {
		if r.URL != nil {
			cfg.Recognizer.URL = strings.TrimSpace(*r.URL)
		}
		if r.Language != nil {
			cfg.Recognizer.Language = strings.TrimSpace(*r.Language)
		}
		if r.TimeoutMS != nil {
			cfg.Recognizer.TimeoutMS = *r.TimeoutMS
		}
		if r.GRPCHealth != nil {
			cfg.Recognizer.GRPCHealth = strings.TrimSpace(*r.GRPCHealth)
		}
	}

	if t := payload.TTS; t != nil {
		if t.Rate != nil {
			cfg.TTS.Rate = *t.Rate
		}
		if t.Volume != nil {
			cfg.TTS.Volume = *t.Volume
		}
		if t.Voice != nil {
			cfg.TTS.Voice = strings.TrimSpace(*t.Voice)
		}
		if t.SynthCmd != nil {
			cmd, err := ParseCommand(*t.SynthCmd)
			if err != nil {
				return nil, fmt.Errorf("tts.synth_cmd: %w", err)
			}
			cfg.TTS.Synth = cmd
		}
		if t.SpeakCmd != nil {
			cmd, err := ParseCommand(*t.SpeakCmd)
			if err != nil {
				return nil, fmt.Errorf("tts.speak_cmd: %w", err)
			}
			cfg.TTS.Speak = cmd
		}
		if t.ForceFallback != nil {
			cfg.TTS.ForceFallback = *t.ForceFallback
		}
	}

	if i := payload.Indicator; i != nil {
		if i.SoundEnable != nil {
			cfg.Indicator.SoundEnable = *i.SoundEnable
		}
		if i.CueFile != nil {
			cfg.Indicator.CueFile = strings.TrimSpace(*i.CueFile)
		}
		if i.DesktopNotify != nil {
			cfg.Indicator.DesktopNotify = *i.DesktopNotify
		}
		if i.DesktopAppName != nil {
			cfg.Indicator.DesktopAppName = strings.TrimSpace(*i.DesktopAppName)
		}
	}

	if payload.Store != nil && payload.Store.Path != nil {
		cfg.Store.Path = strings.TrimSpace(*payload.Store.Path)
	}
	if payload.Ops != nil && payload.Ops.Listen != nil {
		cfg.Ops.Listen = strings.TrimSpace(*payload.Ops.Listen)
	}
	if payload.Log != nil && payload.Log.Level != nil {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(*payload.Log.Level))
	}

	if cfg.TTS.ForceFallback && len(cfg.TTS.Speak.Argv) == 0 {
		warnings = append(warnings, Warning{Message: "tts.force_fallback is set but tts.speak_cmd is empty; speech will be logged only"})
	}

	return warnings, nil
}
