package mask

import "log/slog"

// Secret wraps a confidential string. It prints and logs as the
// replacement; only Value reveals the wrapped string.
type Secret struct {
	value string
}

// NewSecret wraps value.
func NewSecret(value string) Secret {
	return Secret{value: value}
}

// Value returns the wrapped string.
func (s Secret) Value() string {
	return s.value
}

func (s Secret) String() string {
	return Replacement
}

func (s Secret) GoString() string {
	return Replacement
}

func (s Secret) LogValue() slog.Value {
	return slog.StringValue(Replacement)
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(Replacement), nil
}
