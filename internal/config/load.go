package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// envOverlay holds process-environment overrides applied after the file.
// Empty values leave the file/default value untouched.
type envOverlay struct {
	RecognizerURL string `env:"JARVIS_RECOGNIZER_URL"`
	GRPCHealth    string `env:"JARVIS_RECOGNIZER_GRPC_HEALTH"`
	AudioBackend  string `env:"JARVIS_AUDIO_BACKEND"`
	AudioInput    string `env:"JARVIS_AUDIO_INPUT"`
	StorePath     string `env:"JARVIS_STORE_PATH"`
	OpsListen     string `env:"JARVIS_OPS_LISTEN"`
	LogLevel      string `env:"JARVIS_LOG_LEVEL"`
	StartMode     string `env:"JARVIS_START_MODE"`
	UserName      string `env:"JARVIS_USER_NAME"`
	ForceFallback string `env:"JARVIS_TTS_FORCE_FALLBACK"`
}

// Load resolves, reads, parses, and validates the runtime configuration.
//
// A .env file next to the config file is loaded into the process environment
// (without overriding existing variables) before JARVIS_* overrides apply.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	loadDotEnv(filepath.Join(filepath.Dir(resolvedPath), ".env"))

	base := Default()
	content, err := os.ReadFile(resolvedPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
		}

		cfg, envWarnings, err := applyEnv(base)
		if err != nil {
			return Loaded{}, err
		}
		warnings := []Warning{{
			Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
		}}
		return Loaded{
			Path:     resolvedPath,
			Config:   cfg,
			Warnings: append(warnings, envWarnings...),
			Exists:   false,
		}, nil
	}

	cfg, warnings, err := Parse(string(content), base)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}

	cfg, envWarnings, err := applyEnv(cfg)
	if err != nil {
		return Loaded{}, err
	}

	return Loaded{
		Path:     resolvedPath,
		Config:   cfg,
		Warnings: append(warnings, envWarnings...),
		Exists:   true,
	}, nil
}

func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

func applyEnv(cfg Config) (Config, []Warning, error) {
	var overlay envOverlay
	if err := env.Parse(&overlay); err != nil {
		return Config{}, nil, fmt.Errorf("parse environment: %w", err)
	}

	if overlay.isEmpty() {
		return cfg, nil, nil
	}

	warnings := make([]Warning, 0)
	set := func(dst *string, value string) {
		if v := strings.TrimSpace(value); v != "" {
			*dst = v
		}
	}

	set(&cfg.Recognizer.URL, overlay.RecognizerURL)
	set(&cfg.Recognizer.GRPCHealth, overlay.GRPCHealth)
	set(&cfg.Audio.Backend, strings.ToLower(overlay.AudioBackend))
	set(&cfg.Audio.Input, overlay.AudioInput)
	set(&cfg.Store.Path, overlay.StorePath)
	set(&cfg.Ops.Listen, overlay.OpsListen)
	set(&cfg.Log.Level, strings.ToLower(overlay.LogLevel))
	set(&cfg.Assistant.StartMode, strings.ToLower(overlay.StartMode))
	set(&cfg.Assistant.UserName, overlay.UserName)

	if raw := strings.TrimSpace(overlay.ForceFallback); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("ignoring JARVIS_TTS_FORCE_FALLBACK=%q: not a boolean", raw)})
		} else {
			cfg.TTS.ForceFallback = value
		}
	}

	validated, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, fmt.Errorf("environment override: %w", err)
	}
	return cfg, append(warnings, validated...), nil
}

func (o envOverlay) isEmpty() bool {
	return o == envOverlay{}
}
