// Package audio handles device discovery, selection, and PCM capture streams.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	appName = "jarvis"

	// DefaultSampleRate is the capture rate the recognizer expects.
	DefaultSampleRate = 16000
)

// Device describes one Pulse input source. Index is its position in the
// server's source list and is what "use microphone N" refers to.
type Device struct {
	Index       int
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

// ListDevices returns available Pulse input sources with default/availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			Index:       len(devices),
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
		})
	}
	return devices, nil
}

// SelectDevice resolves audio.input/audio.fallback preferences against live devices.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

// SelectDeviceIndex resolves a source by list index; a negative index means the default source.
func SelectDeviceIndex(ctx context.Context, index int) (Device, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Device{}, err
	}
	return deviceAt(devices, index)
}

func deviceAt(devices []Device, index int) (Device, error) {
	if len(devices) == 0 {
		return Device{}, errors.New("no audio input devices found")
	}
	if index < 0 {
		for _, dev := range devices {
			if dev.Default {
				return dev, nil
			}
		}
		return Device{}, errors.New("default audio source is unavailable")
	}
	if index >= len(devices) {
		return Device{}, fmt.Errorf("audio device index %d out of range (have %d)", index, len(devices))
	}
	dev := devices[index]
	if !dev.Available {
		return Device{}, fmt.Errorf("audio device %d (%s) is not available", index, dev.ID)
	}
	return dev, nil
}

func newClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(appName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// selectDeviceFromList picks audio.input, or audio.fallback when the input
// is muted or unplugged. "default" and "" both name the server default.
func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}

	primary, err := resolveDevice(devices, input)
	if err != nil {
		return Selection{}, fmt.Errorf("audio.input %w", err)
	}
	reason := unusableReason(primary)
	if reason == "" {
		return Selection{Device: primary}, nil
	}

	alt, err := resolveDevice(devices, fallback)
	if err != nil {
		return Selection{}, fmt.Errorf("primary input %q is %s and audio.fallback %w", primary.ID, reason, err)
	}
	if altReason := unusableReason(alt); altReason != "" {
		return Selection{}, fmt.Errorf("audio fallback device %q is %s", alt.ID, altReason)
	}
	return Selection{
		Device:   alt,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, reason, alt.ID),
		Fallback: alt.ID != primary.ID,
	}, nil
}

func resolveDevice(devices []Device, term string) (Device, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	for _, dev := range devices {
		if term == "" || term == "default" {
			if dev.Default {
				return dev, nil
			}
			continue
		}
		if deviceMatches(dev, term) {
			return dev, nil
		}
	}
	if term == "" || term == "default" {
		return Device{}, errors.New("default source is unavailable")
	}
	return Device{}, fmt.Errorf("%q did not match any device", term)
}

func unusableReason(dev Device) string {
	switch {
	case dev.Muted:
		return "muted"
	case !dev.Available:
		return "unavailable"
	default:
		return ""
	}
}

// deviceMatches reports whether a search term matches a device id or description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	id := strings.ToLower(device.ID)
	desc := strings.ToLower(device.Description)
	return strings.Contains(id, term) || strings.Contains(desc, term)
}

// sourceStateString maps Pulse source state constants to human-readable values.
func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse source port availability to a simple boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
