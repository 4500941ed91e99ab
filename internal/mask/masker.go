// Package mask redacts confidential values before they reach logs or
// report listeners.
package mask

import (
	"fmt"
	"regexp"
	"sync"
)

// Replacement is written in place of every masked value.
const Replacement = "*****"

// Masker replaces the first capture group of registered patterns.
//
// A pattern must match the whole text. Its single capture group marks the
// part to hide. Each pattern is applied repeatedly until it no longer
// matches, so all occurrences are masked: `.*(mes).*` turns
// "message and message" into "*****sage and *****sage".
type Masker struct {
	mu       sync.RWMutex
	patterns []pattern
}

type pattern struct {
	source string
	re     *regexp.Regexp
}

// New creates a Masker with the given patterns registered.
func New(patterns ...string) (*Masker, error) {
	m := &Masker{}
	for _, p := range patterns {
		if err := m.Register(p); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Register adds a pattern. It fails if the pattern does not compile or does
// not have exactly one capture group.
func (m *Masker) Register(source string) error {
	re, err := regexp.Compile(`^(?:` + source + `)$`)
	if err != nil {
		return fmt.Errorf("invalid mask pattern %q: %w", source, err)
	}
	if re.NumSubexp() != 1 {
		return fmt.Errorf("mask pattern %q must contain exactly one capturing group, has %d", source, re.NumSubexp())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = append(m.patterns, pattern{source: source, re: re})
	return nil
}

// Unregister removes the first registration of source.
func (m *Masker) Unregister(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.patterns {
		if p.source == source {
			m.patterns = append(m.patterns[:i:i], m.patterns[i+1:]...)
			return
		}
	}
}

// Patterns returns the registered pattern sources in registration order.
func (m *Masker) Patterns() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sources := make([]string, len(m.patterns))
	for i, p := range m.patterns {
		sources[i] = p.source
	}
	return sources
}

// Mask applies all patterns in registration order.
// A nil Masker returns s unchanged.
func (m *Masker) Mask(s string) string {
	if m == nil {
		return s
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.patterns {
		s = apply(p.re, s)
	}
	return s
}

func apply(re *regexp.Regexp, s string) string {
	// patterns whose group can match the replacement itself would never settle
	limit := len(s) + 1
	for i := 0; i < limit; i++ {
		loc := re.FindStringSubmatchIndex(s)
		if loc == nil || loc[2] < 0 {
			return s
		}
		masked := s[:loc[2]] + Replacement + s[loc[3]:]
		if masked == s {
			return s
		}
		s = masked
	}
	return s
}
