package browser

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownReference = errors.New("unknown reference")
	ErrNoTarget         = errors.New("no target available")
	ErrNotConnected     = errors.New("profile is not connected")
	ErrDisabled         = errors.New("browser automation is disabled")
)

// ValidationError reports a bad or missing parameter, or an unknown
// profile, action, target or reference.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validationf creates a ValidationError with a formatted message.
func Validationf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func unknownRefError(ref string) *ValidationError {
	return &ValidationError{Err: fmt.Errorf("%w %q (take a new snapshot)", ErrUnknownReference, ref)}
}

// ConnectionError reports that a browser could not be reached or launched.
type ConnectionError struct {
	Profile string
	Op      string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("profile %q: %s: %v", e.Profile, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Attempt records one failed locate/interact strategy.
type Attempt struct {
	Method   string `json:"method"`
	Selector string `json:"selector,omitempty"`
	Error    string `json:"error"`
}

// maxReportedAttempts bounds how many attempts an exhaustion error embeds.
const maxReportedAttempts = 5

// ActionExhaustionError is returned when every strategy of an action failed.
type ActionExhaustionError struct {
	Kind     string
	Attempts []Attempt
}

func (e *ActionExhaustionError) Error() string {
	attempts := e.Attempts
	if len(attempts) > maxReportedAttempts {
		attempts = attempts[len(attempts)-maxReportedAttempts:]
	}

	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		if a.Selector != "" {
			parts = append(parts, fmt.Sprintf("%s(%s): %s", a.Method, a.Selector, firstLine(a.Error)))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", a.Method, firstLine(a.Error)))
		}
	}
	return fmt.Sprintf("%s failed after %d attempts: %s", e.Kind, len(e.Attempts), strings.Join(parts, "; "))
}

// IsValidationError reports whether err is a ValidationError or an unknown reference.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v) || errors.Is(err, ErrUnknownReference)
}

// IsConnectionError reports whether err is a ConnectionError.
func IsConnectionError(err error) bool {
	var c *ConnectionError
	return errors.As(err, &c)
}

// firstLine trims driver errors, which often carry multi-line call logs.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
