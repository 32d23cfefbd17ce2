package solver

import (
	"fmt"
	"time"
)

// ExitError is returned when the engine exits with a non-zero status.
type ExitError struct {
	Mode   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("solver exited %d while running %s; stderr: %s", e.Code, e.Mode, e.Stderr)
}

// TimeoutError is returned when an invocation exceeds its wall-clock limit.
type TimeoutError struct {
	Mode    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("solver timed out after %s while running %s", e.Timeout, e.Mode)
}

// ParseError is returned when engine output does not have the expected
// structure. Sample holds a truncated excerpt of stdout.
type ParseError struct {
	Mode   string
	Reason string
	Sample string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s output: %s; stdout was: %q", e.Mode, e.Reason, e.Sample)
}

// truncate returns at most n characters of s.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}

	count := 0

	for i := range s {
		if count == n {
			return s[:i]
		}

		count++
	}

	return s
}
