package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if len(cfg.Assistant.WakeWords) == 0 {
		return nil, fmt.Errorf("assistant.wake_words must not be empty")
	}
	if cfg.Assistant.IdlePromptSeconds < 0 {
		return nil, fmt.Errorf("assistant.idle_prompt_seconds must be >= 0")
	}
	if cfg.Assistant.IdlePromptSeconds > 0 && cfg.Assistant.IdlePromptSeconds < 5 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("assistant.idle_prompt_seconds=%d is below 5; using 5", cfg.Assistant.IdlePromptSeconds)})
	}
	// Zero keeps listening forever instead of switching to text mode.
	if cfg.Assistant.MaxTimeoutsBeforeText < 0 {
		return nil, fmt.Errorf("assistant.max_timeouts_before_text must be >= 0")
	}
	switch cfg.Assistant.StartMode {
	case ModeVoice, ModeText:
	default:
		return nil, fmt.Errorf("assistant.start_mode must be one of: voice, text")
	}

	switch cfg.Audio.Backend {
	case BackendPrimary, BackendAlternate:
	default:
		return nil, fmt.Errorf("audio.backend must be one of: primary, alternate")
	}
	if cfg.Audio.RecorderDevice < -1 {
		return nil, fmt.Errorf("audio.recorder_device must be >= -1")
	}
	if cfg.Audio.RecorderSeconds <= 0 || cfg.Audio.CommandRecorderSeconds <= 0 {
		return nil, fmt.Errorf("audio.recorder_seconds and audio.command_recorder_seconds must be > 0")
	}
	if cfg.Audio.SampleRate <= 0 {
		return nil, fmt.Errorf("audio.sample_rate must be > 0")
	}

	r := cfg.Recognition
	if r.EnergyThreshold < 0 {
		return nil, fmt.Errorf("recognition.energy_threshold must be >= 0")
	}
	if r.PauseThreshold <= 0 {
		return nil, fmt.Errorf("recognition.pause_threshold must be > 0")
	}
	if r.NonSpeakingDuration < 0 || r.AdjustDuration < 0 {
		return nil, fmt.Errorf("recognition durations must be >= 0")
	}
	if r.NonSpeakingDuration > r.PauseThreshold {
		warnings = append(warnings, Warning{Message: "recognition.non_speaking_duration exceeds pause_threshold"})
	}
	if r.PhraseTimeLimit <= 0 || r.CommandPhraseTimeLimit <= 0 {
		return nil, fmt.Errorf("recognition phrase time limits must be > 0")
	}
	if r.ListenTimeout <= 0 {
		return nil, fmt.Errorf("recognition.listen_timeout must be > 0")
	}

	if strings.TrimSpace(cfg.Recognizer.URL) == "" {
		return nil, fmt.Errorf("recognizer.url must not be empty")
	}
	parsed, err := url.Parse(cfg.Recognizer.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("recognizer.url must be an absolute http(s) URL")
	}
	if cfg.Recognizer.TimeoutMS <= 0 {
		return nil, fmt.Errorf("recognizer.timeout_ms must be > 0")
	}

	if cfg.TTS.Rate <= 0 {
		return nil, fmt.Errorf("tts.rate must be > 0")
	}
	if cfg.TTS.Volume < 0 || cfg.TTS.Volume > 1 {
		return nil, fmt.Errorf("tts.volume must be within [0, 1]")
	}
	if len(cfg.TTS.Synth.Argv) == 0 && len(cfg.TTS.Speak.Argv) == 0 {
		warnings = append(warnings, Warning{Message: "no speech commands configured; speech will be logged only"})
	}

	if cfg.Indicator.DesktopNotify && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.desktop_notify=true")
	}

	if strings.TrimSpace(cfg.Store.Path) == "" {
		return nil, fmt.Errorf("store.path must not be empty")
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	return warnings, nil
}

// EffectiveIdlePrompt clamps the configured idle prompt to a minimum of five
// seconds. Zero disables idle prompts.
func (c AssistantConfig) EffectiveIdlePrompt() int {
	if c.IdlePromptSeconds <= 0 {
		return 0
	}
	if c.IdlePromptSeconds < 5 {
		return 5
	}
	return c.IdlePromptSeconds
}
