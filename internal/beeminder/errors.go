package beeminder

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized means the access token is invalid or expired; the
	// caller must force re-authentication.
	ErrUnauthorized = errors.New("please log in again")
	// ErrNotFound means the goal (or user) no longer exists.
	ErrNotFound = errors.New("goal not found")
	// ErrRateLimited means the service asked the client to back off.
	ErrRateLimited = errors.New("too many requests, please wait")
	// ErrInvalidResponse means no well-formed HTTP reply was received.
	ErrInvalidResponse = errors.New("invalid response from server")
)

// ServerError is any non-2xx status without a more specific classification.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%d)", e.StatusCode)
}

// DecodeError is a malformed payload on an otherwise successful response.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code onto the error taxonomy. It
// returns nil for 2xx.
func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return &ServerError{StatusCode: code}
	}
}

func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsDecodeError reports whether err is a contract mismatch in the payload.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// Transient reports whether a later attempt might succeed without user
// action. The client never retries on its own; callers use this to decide
// whether to wait for the next poll.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrInvalidResponse) {
		return true
	}
	var se *ServerError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return false
}
