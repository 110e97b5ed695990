package interview

import "errors"

// Sentinel errors providers wrap so the session can classify failures.
var (
	ErrPermissionDenied = errors.New("media permission denied")
	ErrNoDevice         = errors.New("no capture device found")
	ErrDeviceBusy       = errors.New("capture device unavailable")
	ErrBadCredential    = errors.New("invalid service credential")
	ErrAuthRequired     = errors.New("authentication required")
)

// FailureKind buckets a session failure for user-facing messaging.
type FailureKind string

const (
	FailureNone             FailureKind = ""
	FailurePermissionDenied FailureKind = "permission_denied"
	FailureNoDevice         FailureKind = "no_device"
	FailureDeviceBusy       FailureKind = "device_busy"
	FailureBadCredential    FailureKind = "bad_credential"
	FailureAuthRequired     FailureKind = "auth_required"
	FailureUnknown          FailureKind = "unknown"
)

// Classify maps a provider error onto a failure kind.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrPermissionDenied):
		return FailurePermissionDenied
	case errors.Is(err, ErrNoDevice):
		return FailureNoDevice
	case errors.Is(err, ErrDeviceBusy):
		return FailureDeviceBusy
	case errors.Is(err, ErrBadCredential):
		return FailureBadCredential
	case errors.Is(err, ErrAuthRequired):
		return FailureAuthRequired
	default:
		return FailureUnknown
	}
}

// Remediation returns the user-facing message for a failure. Unknown
// failures surface the raw error text so the candidate has something to
// report; everything else gets a specific instruction.
func Remediation(kind FailureKind, err error) string {
	switch kind {
	case FailurePermissionDenied:
		return "Camera or microphone access was denied. Allow access in your browser settings and try again."
	case FailureNoDevice:
		return "No camera or microphone was found. Connect a device and try again."
	case FailureDeviceBusy:
		return "Your camera or microphone could not be started. Close other applications using it and try again."
	case FailureBadCredential:
		return "The interview service is misconfigured. Check the LiveKit URL, API key and secret."
	case FailureAuthRequired:
		return "The interview service rejected the access token. Verify the API key and secret and regenerate the token."
	case FailureUnknown:
		if err != nil {
			return "The interview could not be started: " + err.Error()
		}
		return "The interview could not be started."
	default:
		return ""
	}
}
