package audio

import "errors"

var (
	// ErrDevice covers stream construction failures and streams
	// invalidated mid-capture. Fatal for the device; the supervisor
	// decides whether to restart.
	ErrDevice = errors.New("audio device error")

	// ErrDeviceNotFound means no endpoint matched the requested name.
	ErrDeviceNotFound = errors.New("audio device not found")

	// ErrEncoder covers ffmpeg launch failures and non-zero exits.
	// Drops the current clip only.
	ErrEncoder = errors.New("clip encoder error")
)
