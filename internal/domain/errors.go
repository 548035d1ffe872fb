package domain

import "errors"

// ErrPermissionDenied indicates the user or OS refused access to a capture source.
var ErrPermissionDenied = errors.New("permission denied")

// ErrDeviceUnavailable indicates a requested source is missing or produced no audio.
var ErrDeviceUnavailable = errors.New("device unavailable")

// ErrUnsupportedCapability indicates the platform cannot provide the requested capture.
var ErrUnsupportedCapability = errors.New("unsupported capability")

// UserMessage maps acquisition failures to an actionable message.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Microphone or tab audio access was denied. Allow access and try again."
	case errors.Is(err, ErrDeviceUnavailable):
		return "No audio could be captured. Check the device, or enable tab audio when sharing."
	case errors.Is(err, ErrUnsupportedCapability):
		return "This system does not support the requested capture mode."
	default:
		return "Recording could not be started: " + err.Error()
	}
}
