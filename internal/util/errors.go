// Package util provides small helpers shared by pacparser packages.
package util

import (
	"fmt"
	"strings"
)

// WrapError prefixes err with msg. A nil err stays nil.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// MultiError accumulates independent failures, such as one per config
// section or one per proxy tried.
type MultiError struct {
	Errors []error
}

// Add records err. Nil errors are ignored.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Len returns the number of recorded errors.
func (m *MultiError) Len() int {
	return len(m.Errors)
}

// Err returns nil when nothing was recorded and m otherwise.
func (m *MultiError) Err() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}

// Error lists every recorded error, separated by semicolons.
func (m *MultiError) Error() string {
	switch len(m.Errors) {
	case 0:
		return ""
	case 1:
		return m.Errors[0].Error()
	}
	msgs := make([]string, len(m.Errors))
	for i, err := range m.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d errors: %s", len(m.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes the recorded errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}
