package auth

import "fmt"

// Mode controls whether a backend answers unauthenticated requests with a
// challenge of its own.
type Mode string

// Backend modes
const (
	// ModeSupported accepts credentials but stays silent on failure,
	// letting another backend produce the challenge.
	ModeSupported = Mode("supported")

	// ModeProposed additionally emits this backend's challenge when an
	// unauthenticated request needs one.
	ModeProposed = Mode("proposed")
)

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSupported:
		return ModeSupported, nil
	case ModeProposed:
		return ModeProposed, nil
	default:
		return "", fmt.Errorf("unknown backend mode %q (want %q or %q)", s, ModeSupported, ModeProposed)
	}
}
