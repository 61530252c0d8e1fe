package config

// Backend selector values shared by config and runtime overrides.
const (
	BackendPrimary   = "primary"
	BackendAlternate = "alternate"
)

// Start mode values.
const (
	ModeVoice = "voice"
	ModeText  = "text"
)

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	synth := "espeak-ng --stdout"
	speak := "spd-say --wait"

	return Config{
		Assistant: AssistantConfig{
			Name:     "Jarvis",
			UserName: "sir",
			WakeWords: []string{
				"hey jarvis",
				"hi jarvis",
				"ok jarvis",
				"okay jarvis",
			},
			IdlePromptSeconds:     15,
			MaxTimeoutsBeforeText: 6,
			StartMode:             ModeVoice,
		},
		Audio: AudioConfig{
			Backend:                BackendPrimary,
			Input:                  "default",
			Fallback:               "default",
			RecorderDevice:         -1,
			RecorderSeconds:        3.0,
			CommandRecorderSeconds: 7.0,
			SampleRate:             16000,
		},
		Recognition: RecognitionConfig{
			DynamicEnergy:          true,
			EnergyThreshold:        300,
			PauseThreshold:         1.0,
			NonSpeakingDuration:    0.5,
			AdjustDuration:         0.8,
			PhraseTimeLimit:        12.0,
			CommandPhraseTimeLimit: 12.0,
			ListenTimeout:          5.0,
		},
		Recognizer: RecognizerConfig{
			URL:       "http://127.0.0.1:8080",
			Language:  "en",
			TimeoutMS: 15000,
		},
		TTS: TTSConfig{
			Rate:   185,
			Volume: 1.0,
			Synth:  mustParseCommand(synth),
			Speak:  mustParseCommand(speak),
		},
		Indicator: IndicatorConfig{
			SoundEnable:    true,
			DesktopNotify:  false,
			DesktopAppName: "jarvis",
		},
		Store: StoreConfig{Path: "jarvis.db"},
		Log:   LogConfig{Level: "info"},
	}
}
