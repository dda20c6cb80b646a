// Package audio implements device identity, the per-device capture
// driver and the ffmpeg clip encoder.
package audio

import (
	"fmt"
	"strings"

	"github.com/gen2brain/malgo"
)

// DeviceKind distinguishes microphones from playback devices captured
// in loopback.
type DeviceKind int

const (
	KindInput DeviceKind = iota
	KindOutput
)

func (k DeviceKind) String() string {
	if k == KindOutput {
		return "output"
	}
	return "input"
}

// AudioDevice identifies one addressable OS audio endpoint.
type AudioDevice struct {
	Name string
	Kind DeviceKind
}

// String renders the canonical "<name> (input|output)" form that
// ParseDevice accepts back.
func (d AudioDevice) String() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Kind)
}

// ParseDevice parses the canonical display form. The name must be
// non-empty and carry an "(input)" or "(output)" suffix.
func ParseDevice(name string) (AudioDevice, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return AudioDevice{}, fmt.Errorf("device name cannot be empty")
	}
	lower := strings.ToLower(trimmed)
	switch {
	case strings.HasSuffix(lower, "(input)"):
		base := strings.TrimSpace(trimmed[:len(trimmed)-len("(input)")])
		if base == "" {
			return AudioDevice{}, fmt.Errorf("device name cannot be empty")
		}
		return AudioDevice{Name: base, Kind: KindInput}, nil
	case strings.HasSuffix(lower, "(output)"):
		base := strings.TrimSpace(trimmed[:len(trimmed)-len("(output)")])
		if base == "" {
			return AudioDevice{}, fmt.Errorf("device name cannot be empty")
		}
		return AudioDevice{Name: base, Kind: KindOutput}, nil
	default:
		return AudioDevice{}, fmt.Errorf("device kind (input/output) not specified in %q", name)
	}
}

// SanitizeDeviceName makes a device display string safe for use in a
// file name.
func SanitizeDeviceName(name string) string {
	return strings.NewReplacer("/", "_", "\\", "_").Replace(name)
}

// Devices enumerates every capture device as Input and every playback
// device as Output.
func Devices() ([]AudioDevice, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	var devices []AudioDevice
	captures, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("list capture devices: %w", err)
	}
	for _, info := range captures {
		devices = append(devices, AudioDevice{Name: info.Name(), Kind: KindInput})
	}
	playbacks, err := mctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("list playback devices: %w", err)
	}
	for _, info := range playbacks {
		devices = append(devices, AudioDevice{Name: info.Name(), Kind: KindOutput})
	}
	return devices, nil
}

// DefaultInputDevice resolves the host default microphone.
func DefaultInputDevice() (AudioDevice, error) {
	return defaultDevice(malgo.Capture, KindInput)
}

// DefaultOutputDevice resolves the host default playback device,
// which the driver captures in loopback.
func DefaultOutputDevice() (AudioDevice, error) {
	return defaultDevice(malgo.Playback, KindOutput)
}

func defaultDevice(devType malgo.DeviceType, kind DeviceKind) (AudioDevice, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return AudioDevice{}, fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	infos, err := mctx.Devices(devType)
	if err != nil {
		return AudioDevice{}, fmt.Errorf("list devices: %w", err)
	}
	for _, info := range infos {
		if info.IsDefault != 0 {
			return AudioDevice{Name: info.Name(), Kind: kind}, nil
		}
	}
	if len(infos) > 0 {
		return AudioDevice{Name: infos[0].Name(), Kind: kind}, nil
	}
	return AudioDevice{}, fmt.Errorf("no %s device available", kind)
}
