package tenablesc

import "fmt"

// ConnectError means the server could not be reached (DNS, TCP, TLS, timeout).
type ConnectError struct {
	Host string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Host, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// AuthError means the server rejected the supplied credentials.
type AuthError struct {
	Host    string
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("login to %s rejected: %s", e.Host, e.Message)
	}
	return fmt.Sprintf("login to %s rejected (HTTP %d)", e.Host, e.Status)
}

// APIError is a non-success response to a request on an open session,
// or a response whose shape does not match what the request expects.
type APIError struct {
	Path    string
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	switch {
	case e.Code != 0:
		return fmt.Sprintf("%s: error %d: %s", e.Path, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	default:
		return fmt.Sprintf("%s: HTTP %d", e.Path, e.Status)
	}
}
