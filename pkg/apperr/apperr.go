// Package apperr defines the error markers shared by the video engine and its HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrExternalService = errors.New("external service error")
	ErrDatabase        = errors.New("database error")
	ErrInvalidInput    = errors.New("invalid input")
)

// Wrap tags err with marker and an operation/message context. The marker stays
// reachable through errors.Is; so does err when it is non-nil.
func Wrap(marker error, op, message string, err error) error {
	if marker == nil {
		marker = ErrDatabase
	}
	detail := buildDetail(op, message)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// NotFound is shorthand for Wrap(ErrNotFound, op, message, nil).
func NotFound(op, message string) error {
	return Wrap(ErrNotFound, op, message, nil)
}

// Invalid is shorthand for Wrap(ErrInvalidInput, op, message, nil).
func Invalid(op, message string) error {
	return Wrap(ErrInvalidInput, op, message, nil)
}

// Kind returns the marker err was tagged with, or nil when it carries none.
func Kind(err error) error {
	for _, marker := range []error{ErrNotFound, ErrConflict, ErrInvalidInput, ErrExternalService, ErrDatabase} {
		if errors.Is(err, marker) {
			return marker
		}
	}
	return nil
}

func buildDetail(op, message string) string {
	parts := make([]string, 0, 2)
	if op = strings.TrimSpace(op); op != "" {
		parts = append(parts, op)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "operation failed"
	}
	return strings.Join(parts, ": ")
}
