package wmi

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/isometry/go-wmi/internal/dcom"
)

// ErrorKind classifies connector failures.
type ErrorKind string

const (
	KindInvalidCredential         ErrorKind = "invalid_credential"
	KindHostResolutionFailed      ErrorKind = "host_resolution_failed"
	KindAuthenticationSetupFailed ErrorKind = "authentication_setup_failed"
	KindRemoteActivationFailed    ErrorKind = "remote_activation_failed"
	KindTeardownFailed            ErrorKind = "teardown_failed"
	KindNotConnected              ErrorKind = "not_connected"
	KindConnectionFailed          ErrorKind = "connection_failed"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInvalidCredential         = &Error{Kind: KindInvalidCredential}
	ErrHostResolutionFailed      = &Error{Kind: KindHostResolutionFailed}
	ErrAuthenticationSetupFailed = &Error{Kind: KindAuthenticationSetupFailed}
	ErrRemoteActivationFailed    = &Error{Kind: KindRemoteActivationFailed}
	ErrTeardownFailed            = &Error{Kind: KindTeardownFailed}
	ErrNotConnected              = &Error{Kind: KindNotConnected}
	ErrConnectionFailed          = &Error{Kind: KindConnectionFailed}
)

// Error is a connector failure with its kind and, for remote failures, the
// native status code.
type Error struct {
	Kind      ErrorKind // Failure kind
	Operation string    // The operation that failed
	Code      uint32    // Native Win32/HRESULT status, 0 when not applicable
	Message   string    // Human-readable message
	Cause     error     // Underlying error
}

func (e *Error) Error() string {
	var parts []string

	op := e.Operation
	if op == "" {
		op = string(e.Kind)
	}

	if e.Code != 0 {
		parts = append(parts, fmt.Sprintf("WMI %s failed (code %s)", op, dcom.FormatCode(e.Code)))
	} else {
		parts = append(parts, fmt.Sprintf("WMI %s failed", op))
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	if e.Cause != nil && e.Cause.Error() != e.Message {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, " - ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on kind so that errors.Is(err, ErrNotConnected) holds for any
// not-connected error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// IsRetryable reports whether the failure is transient on the remote side.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case KindRemoteActivationFailed:
		return isCodeRetryable(e.Code)
	case KindConnectionFailed, KindAuthenticationSetupFailed:
		return IsRetryableError(e.Cause)
	default:
		return false
	}
}

func newError(kind ErrorKind, operation, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// newRemoteError wraps a protocol failure, carrying its native code.
func newRemoteError(operation string, dcomErr *dcom.Error) *Error {
	return &Error{
		Kind:      KindRemoteActivationFailed,
		Operation: operation,
		Code:      dcomErr.Code,
		Message:   dcom.CodeMessage(dcomErr.Code),
		Cause:     dcomErr,
	}
}

// ErrorOfKind returns the outermost *Error of kind in err's chain.
func ErrorOfKind(err error, kind ErrorKind) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return nil, false
}

// ErrorCode returns the first native status code found in err's chain.
func ErrorCode(err error) (uint32, bool) {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if wmiErr, ok := e.(*Error); ok && wmiErr.Code != 0 {
			return wmiErr.Code, true
		}
	}
	return dcom.ErrorCode(err)
}

// IsRetryableError checks if an error is worth retrying at a higher layer.
// The connector itself never retries.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var wmiErr *Error
	if errors.As(err, &wmiErr) {
		return wmiErr.IsRetryable()
	}

	if code, ok := dcom.ErrorCode(err); ok {
		return isCodeRetryable(code)
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isCodeRetryable(code uint32) bool {
	switch code {
	case dcom.CodeServerUnavailable,
		dcom.CodeServerUnavailableResult,
		dcom.CodeCallFailedDNE,
		dcom.CodeDisconnected,
		dcom.CodeWbemTransportFailure:
		return true
	default:
		return false
	}
}
