// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package errors provides structured error types for the QLink enumerator.
//
// This package defines the error taxonomy used across the bridge client,
// protocol parsers and topology builder. Fatal errors (transport, protocol,
// handshake) abort the current run; data errors (format, count mismatch) are
// scoped to the offending branch and recorded as warnings on the topology.
//
// # Example Usage
//
//	err := errors.NewTransportError("send", "http://localhost:3000", io.EOF)
//	if errors.IsTransportError(err) {
//	    log.Printf("bridge unreachable: %v", err)
//	}
//
//	var cme *errors.CountMismatchError
//	if errors.As(err, &cme) {
//	    log.Printf("declared %d, got %d", cme.Expected, cme.Actual)
//	}
package errors

import (
	"errors"
	"fmt"
)

// As is a passthrough to the standard library's errors.As, so callers of
// this package do not need a second errors import.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is is a passthrough to the standard library's errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// TransportError represents a network-level failure talking to the bridge:
// the bridge is unreachable, the request timed out, or it returned a
// non-success HTTP status. Fatal to the current run.
type TransportError struct {
	Op   string // Operation being performed (e.g. "connect", "send")
	Addr string // Bridge address (if known)
	Err  error  // Underlying error
}

func (e *TransportError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("transport %s (%s): %v", e.Op, e.Addr, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s failed", e.Op)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new transport error.
func NewTransportError(op string, addr string, err error) *TransportError {
	return &TransportError{Op: op, Addr: addr, Err: err}
}

// IsTransportError checks if an error is a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// ProtocolError represents a semantic rejection by the bridge: it is
// reachable but refused the request (send without an open session, connect
// to an out-of-range server index) or returned an undecodable body.
// Fatal to the current run.
type ProtocolError struct {
	Op     string // Operation being performed
	Status int    // HTTP status code returned by the bridge (0 if n/a)
	Body   string // Response body or rejection message (may be truncated)
	Err    error  // Underlying error (e.g. a JSON decode failure)
}

func (e *ProtocolError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("protocol %s: bridge returned %d: %s", e.Op, e.Status, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("protocol %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("protocol %s rejected: %s", e.Op, e.Body)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewProtocolError creates a new protocol error.
func NewProtocolError(op string, status int, body string, err error) *ProtocolError {
	return &ProtocolError{Op: op, Status: status, Body: body, Err: err}
}

// IsProtocolError checks if an error is a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// FormatError represents a reply whose shape cannot be interpreted as
// expected: a count token that is not an integer, or a station line with
// the wrong field count. Scoped to the offending item or branch; sibling
// branches continue.
type FormatError struct {
	Op   string // What was being parsed (e.g. "count", "station line")
	Line string // The offending input
	Err  error  // Underlying error (optional)
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("format %s %q: %v", e.Op, e.Line, e.Err)
	}
	return fmt.Sprintf("format %s: unexpected input %q", e.Op, e.Line)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// NewFormatError creates a new format error.
func NewFormatError(op string, line string, err error) *FormatError {
	return &FormatError{Op: op, Line: line, Err: err}
}

// IsFormatError checks if an error is a FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// CountMismatchError reports a counted block whose declared item count
// disagrees with the number of items actually present. Recoverable: the
// items that are present are still used.
type CountMismatchError struct {
	Op       string // What was being enumerated (e.g. "masters", "stations")
	Expected int    // Count declared by the first token
	Actual   int    // Items actually present
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("count mismatch in %s: declared %d, got %d", e.Op, e.Expected, e.Actual)
}

// NewCountMismatchError creates a new count mismatch error.
func NewCountMismatchError(op string, expected, actual int) *CountMismatchError {
	return &CountMismatchError{Op: op, Expected: expected, Actual: actual}
}

// IsCountMismatchError checks if an error is a CountMismatchError.
func IsCountMismatchError(err error) bool {
	var cme *CountMismatchError
	return errors.As(err, &cme)
}

// HandshakeError indicates the bus handshake acknowledgement did not match
// the expected value. Fatal; enumeration never starts.
type HandshakeError struct {
	Got []string // Tokens actually received
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake: unexpected acknowledgement %v", e.Got)
}

// NewHandshakeError creates a new handshake error.
func NewHandshakeError(got []string) *HandshakeError {
	return &HandshakeError{Got: got}
}

// IsHandshakeError checks if an error is a HandshakeError.
func IsHandshakeError(err error) bool {
	var he *HandshakeError
	return errors.As(err, &he)
}

// Sentinel errors for common conditions
var (
	// ErrNoSession indicates a command was issued without an open session
	ErrNoSession = errors.New("no open session")

	// ErrNoServers indicates the bridge reported an empty server list
	ErrNoServers = errors.New("no servers available")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("operation timeout")

	// ErrEmptyReply indicates the bridge returned an empty reply where a
	// counted block was expected
	ErrEmptyReply = errors.New("empty reply")
)
