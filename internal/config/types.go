// Package config resolves, parses, validates, and defaults jarvis configuration.
package config

import "time"

// Config is the fully materialized static configuration used by jarvis.
// Runtime overrides live in runtimecfg and are layered on top of these values.
type Config struct {
	Assistant   AssistantConfig
	Audio       AudioConfig
	Recognition RecognitionConfig
	Recognizer  RecognizerConfig
	TTS         TTSConfig
	Indicator   IndicatorConfig
	Store       StoreConfig
	Ops         OpsConfig
	Log         LogConfig
}

// AssistantConfig controls identity, wake phrases, and voice-loop thresholds.
type AssistantConfig struct {
	Name                  string
	UserName              string
	WakeWords             []string
	IdlePromptSeconds     int
	MaxTimeoutsBeforeText int
	StartMode             string
}

// AudioConfig controls capture backend choice and device preferences.
type AudioConfig struct {
	Backend                string
	Input                  string
	Fallback               string
	RecorderDevice         int
	RecorderSeconds        float64
	CommandRecorderSeconds float64
	SampleRate             int
}

// RecognitionConfig is the static phrase-detection tuning for the primary backend.
type RecognitionConfig struct {
	DynamicEnergy          bool
	EnergyThreshold        int
	PauseThreshold         float64
	NonSpeakingDuration    float64
	AdjustDuration         float64
	PhraseTimeLimit        float64
	CommandPhraseTimeLimit float64
	ListenTimeout          float64
}

// RecognizerConfig points at the speech-to-text service.
type RecognizerConfig struct {
	URL        string
	Language   string
	TimeoutMS  int
	GRPCHealth string
}

// Timeout returns the request timeout as a duration.
func (c RecognizerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// TTSConfig controls the synthesizer and external speech commands.
type TTSConfig struct {
	Rate          int
	Volume        float64
	Voice         string
	Synth         CommandConfig
	Speak         CommandConfig
	ForceFallback bool
}

// IndicatorConfig controls audio cues and desktop status notifications.
type IndicatorConfig struct {
	SoundEnable    bool
	CueFile        string
	DesktopNotify  bool
	DesktopAppName string
}

// StoreConfig locates the reminder/note database.
type StoreConfig struct {
	Path string
}

// OpsConfig controls the optional metrics/health HTTP listener.
type OpsConfig struct {
	Listen string
}

// LogConfig controls log verbosity.
type LogConfig struct {
	Level string
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
