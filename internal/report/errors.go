package report

import "fmt"

// FixtureError is raised by a fixture for a problem it understands itself.
// KeyValues carries context for the tester and should hold only values that
// serialize plainly: strings, numbers, maps and slices.
type FixtureError struct {
	Message   string
	KeyValues map[string]any
	Cause     error
}

// NewFixtureError creates a FixtureError without a cause.
func NewFixtureError(msg string, keyValues map[string]any) *FixtureError {
	return &FixtureError{Message: msg, KeyValues: keyValues}
}

// WrapFixtureError creates a FixtureError caused by err.
func WrapFixtureError(msg string, keyValues map[string]any, err error) *FixtureError {
	return &FixtureError{Message: msg, KeyValues: keyValues, Cause: err}
}

func (e *FixtureError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *FixtureError) Unwrap() error {
	return e.Cause
}

// KeyValues builds a key value payload from alternating key/value arguments.
// Keys are converted with fmt.Sprint.
func KeyValues(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("list of key values must be even but is '%d'", len(pairs))
	}
	result := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		result[fmt.Sprint(pairs[i])] = pairs[i+1]
	}
	return result, nil
}

// AssertionError is reported when an expectation of the test does not hold.
type AssertionError struct {
	Message string
	Cause   error
}

// NewAssertionError creates an AssertionError from a formatted message.
func NewAssertionError(format string, args ...any) *AssertionError {
	return &AssertionError{Message: fmt.Sprintf(format, args...)}
}

func (e *AssertionError) Error() string {
	return e.Message
}

func (e *AssertionError) Unwrap() error {
	return e.Cause
}
