// Package runtimecfg holds process-wide overrides that commands can change
// while jarvis is running. Unset overrides fall through to static config.
package runtimecfg

import (
	"sync"

	"github.com/rbright/jarvis/internal/config"
	"github.com/rbright/jarvis/internal/fsm"
)

// Runtime is safe for concurrent use. The zero value is not usable; call New.
type Runtime struct {
	mu     sync.RWMutex
	static config.Config

	backend         *string
	primaryDevice   *int
	alternateDevice *int

	dynamicEnergy   *bool
	energyThreshold *int
	adjustDuration  *float64
	pauseThreshold  *float64
	nonSpeaking     *float64
	phraseTimeLimit *float64

	forceFallback *bool
	pendingMode   fsm.Mode

	changes chan struct{}
}

// Snapshot is a point-in-time copy of effective runtime values.
type Snapshot struct {
	Backend         string
	PrimaryDevice   int
	AlternateDevice int
	ForceFallback   bool
	PendingMode     fsm.Mode
	Recognition     config.RecognitionConfig
}

func New(static config.Config) *Runtime {
	return &Runtime{
		static:  static,
		changes: make(chan struct{}, 1),
	}
}

// Static returns the static configuration the overrides are layered on.
func (r *Runtime) Static() config.Config {
	return r.static
}

// Changes fires (coalesced) whenever a mode request is raised.
func (r *Runtime) Changes() <-chan struct{} {
	return r.changes
}

func (r *Runtime) notify() {
	select {
	case r.changes <- struct{}{}:
	default:
	}
}

// Backend returns the effective capture backend selector.
func (r *Runtime) Backend() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.backend != nil {
		return *r.backend
	}
	return r.static.Audio.Backend
}

func (r *Runtime) SetBackend(backend string) {
	r.mu.Lock()
	r.backend = &backend
	r.mu.Unlock()
}

// PrimaryDevice returns the device-stream source index override, if any.
func (r *Runtime) PrimaryDevice() (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.primaryDevice == nil {
		return 0, false
	}
	return *r.primaryDevice, true
}

func (r *Runtime) SetPrimaryDevice(index int) {
	r.mu.Lock()
	r.primaryDevice = &index
	r.mu.Unlock()
}

func (r *Runtime) ClearPrimaryDevice() {
	r.mu.Lock()
	r.primaryDevice = nil
	r.mu.Unlock()
}

// AlternateDevice returns the recorder device index; -1 means system default.
func (r *Runtime) AlternateDevice() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.alternateDevice != nil {
		return *r.alternateDevice
	}
	return r.static.Audio.RecorderDevice
}

func (r *Runtime) SetAlternateDevice(index int) {
	r.mu.Lock()
	r.alternateDevice = &index
	r.mu.Unlock()
}

func (r *Runtime) SetDynamicEnergy(enabled bool) {
	r.mu.Lock()
	r.dynamicEnergy = &enabled
	r.mu.Unlock()
}

func (r *Runtime) SetEnergyThreshold(value int) {
	r.mu.Lock()
	r.energyThreshold = &value
	r.mu.Unlock()
}

func (r *Runtime) ClearEnergyThreshold() {
	r.mu.Lock()
	r.energyThreshold = nil
	r.mu.Unlock()
}

// EnergyThresholdOverride reports the threshold override, if any.
func (r *Runtime) EnergyThresholdOverride() (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.energyThreshold == nil {
		return 0, false
	}
	return *r.energyThreshold, true
}

func (r *Runtime) SetAdjustDuration(seconds float64) {
	r.mu.Lock()
	r.adjustDuration = &seconds
	r.mu.Unlock()
}

func (r *Runtime) SetPauseThreshold(seconds float64) {
	r.mu.Lock()
	r.pauseThreshold = &seconds
	r.mu.Unlock()
}

func (r *Runtime) PauseThresholdOverride() (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.pauseThreshold == nil {
		return 0, false
	}
	return *r.pauseThreshold, true
}

func (r *Runtime) SetNonSpeakingDuration(seconds float64) {
	r.mu.Lock()
	r.nonSpeaking = &seconds
	r.mu.Unlock()
}

func (r *Runtime) SetPhraseTimeLimit(seconds float64) {
	r.mu.Lock()
	r.phraseTimeLimit = &seconds
	r.mu.Unlock()
}

func (r *Runtime) PhraseTimeLimitOverride() (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.phraseTimeLimit == nil {
		return 0, false
	}
	return *r.phraseTimeLimit, true
}

// Recognition resolves effective phrase-detection parameters.
func (r *Runtime) Recognition() config.RecognitionConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recognitionLocked()
}

func (r *Runtime) recognitionLocked() config.RecognitionConfig {
	eff := r.static.Recognition
	if r.dynamicEnergy != nil {
		eff.DynamicEnergy = *r.dynamicEnergy
	}
	if r.energyThreshold != nil {
		eff.EnergyThreshold = *r.energyThreshold
	}
	if r.adjustDuration != nil {
		eff.AdjustDuration = *r.adjustDuration
	}
	if r.pauseThreshold != nil {
		eff.PauseThreshold = *r.pauseThreshold
	}
	if r.nonSpeaking != nil {
		eff.NonSpeakingDuration = *r.nonSpeaking
	}
	if r.phraseTimeLimit != nil {
		eff.PhraseTimeLimit = *r.phraseTimeLimit
		eff.CommandPhraseTimeLimit = *r.phraseTimeLimit
	}
	return eff
}

// ForceFallback reports whether speech should go straight to the OS command.
func (r *Runtime) ForceFallback() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.forceFallback != nil {
		return *r.forceFallback
	}
	return r.static.TTS.ForceFallback
}

func (r *Runtime) SetForceFallback(enabled bool) {
	r.mu.Lock()
	r.forceFallback = &enabled
	r.mu.Unlock()
}

// RequestMode records a pending mode switch, applied at the next check-point.
func (r *Runtime) RequestMode(mode fsm.Mode) {
	r.mu.Lock()
	r.pendingMode = mode
	r.mu.Unlock()
	r.notify()
}

// PendingMode returns the requested mode, if any.
func (r *Runtime) PendingMode() (fsm.Mode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pendingMode, r.pendingMode != ""
}

func (r *Runtime) ClearModeRequest() {
	r.mu.Lock()
	r.pendingMode = ""
	r.mu.Unlock()
}

func (r *Runtime) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Backend:         r.static.Audio.Backend,
		PrimaryDevice:   -1,
		AlternateDevice: r.static.Audio.RecorderDevice,
		ForceFallback:   r.static.TTS.ForceFallback,
		PendingMode:     r.pendingMode,
		Recognition:     r.recognitionLocked(),
	}
	if r.backend != nil {
		snap.Backend = *r.backend
	}
	if r.primaryDevice != nil {
		snap.PrimaryDevice = *r.primaryDevice
	}
	if r.alternateDevice != nil {
		snap.AlternateDevice = *r.alternateDevice
	}
	if r.forceFallback != nil {
		snap.ForceFallback = *r.forceFallback
	}
	return snap
}
