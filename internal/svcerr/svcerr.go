// Package svcerr defines the error returned by every external service client
// (embedding, generation, vision, speech).
package svcerr

import (
	"errors"
	"fmt"
	"strings"
)

// ServiceError reports a failed call to a hosted service: a transport failure,
// a non-success status, or a body that could not be parsed.
type ServiceError struct {
	Service string
	Op      string
	Status  int
	Body    string
	Err     error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	var b strings.Builder
	b.WriteString(e.Service)
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		b.WriteString(": ")
		b.WriteString(body)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause, if any.
func (e *ServiceError) Unwrap() error { return e.Err }

// New wraps err as a ServiceError for the given service and operation.
func New(service, op string, err error) *ServiceError {
	return &ServiceError{Service: service, Op: op, Err: err}
}

// Status builds a ServiceError for a non-success HTTP response.
func Status(service, op string, status int, body []byte) *ServiceError {
	return &ServiceError{Service: service, Op: op, Status: status, Body: string(body)}
}

// Malformed builds a ServiceError for a payload that did not match expectations.
func Malformed(service, op, reason string) *ServiceError {
	return &ServiceError{Service: service, Op: op, Err: fmt.Errorf("malformed response: %s", reason)}
}

// Is reports whether err is, or wraps, a ServiceError.
func Is(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}
