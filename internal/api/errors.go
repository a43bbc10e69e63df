// ABOUTME: Normalized error type for every backend call
// ABOUTME: Distinguishes network failures, server errors and undecodable payloads

package api

import (
	"errors"
	"fmt"
)

// Kind classifies an API failure.
type Kind string

const (
	// KindNetwork means the request never reached the server or no response came back.
	KindNetwork Kind = "network"
	// KindServer means the server answered with a non-2xx status.
	KindServer Kind = "server"
	// KindDecode means a 2xx response body could not be parsed.
	KindDecode Kind = "decode"
)

// Error is the single error type returned by Client operations.
type Error struct {
	Kind   Kind
	Op     string
	Status int    // HTTP status, zero for network failures
	Detail string // human-readable detail from the response body or the status code
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Err != nil && e.Detail != "":
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Kind, e.Detail, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s %s: %s", e.Op, e.Kind, e.Detail)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNetwork reports whether err is an API network failure.
func IsNetwork(err error) bool { return hasKind(err, KindNetwork) }

// IsServer reports whether err is a non-2xx response from the backend.
func IsServer(err error) bool { return hasKind(err, KindServer) }

// IsDecode reports whether err is a malformed backend payload.
func IsDecode(err error) bool { return hasKind(err, KindDecode) }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

// Detail returns the human-readable detail carried by err, falling back to err.Error().
func Detail(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Detail != "" {
		return ae.Detail
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func hasKind(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}
