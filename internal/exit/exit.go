// Package exit provides exit codes for the tsccm CLI.
package exit

import "fmt"

// Codes: 0 success, 1 one or more targets failed (connect, auth, api), 2 usage or config.
const (
	CodeSuccess = 0
	CodeFailure = 1
	CodeUsage   = 2
)

// Error carries an exit code and underlying error.
type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit %d", e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an exit error with the given code and optional err.
func New(code int, err error) *Error {
	return &Error{Code: code, Err: err}
}

// Usage returns exit code 2 (bad flags, bad config).
func Usage(err error) *Error { return New(CodeUsage, err) }

// Failure returns exit code 1 (a target could not be reached, logged into or queried).
func Failure(err error) *Error { return New(CodeFailure, err) }

// CodeOf returns the exit code for err: if err is *Error use its code, else 1.
func CodeOf(err error) int {
	if err == nil {
		return CodeSuccess
	}
	if ex, ok := err.(*Error); ok {
		return ex.Code
	}
	return CodeFailure
}
