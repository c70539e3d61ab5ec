package dcom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// Native status codes reported by the remote-object runtime. Values below
// 0x10000 are Win32 error codes; the rest are HRESULTs.
const (
	CodeAccessDenied            uint32 = 5
	CodeLogonFailure            uint32 = 1326
	CodeServerUnavailable       uint32 = 1722
	CodeCallFailedDNE           uint32 = 1727
	CodeProtocolError           uint32 = 1728
	CodeUnknownAuthnService     uint32 = 1747
	CodeNotImplemented          uint32 = 0x80004001
	CodeNoInterface             uint32 = 0x80004002
	CodeUnspecified             uint32 = 0x80004005
	CodeDisconnected            uint32 = 0x80010108
	CodeMemberNotFound          uint32 = 0x80020003
	CodeParamNotFound           uint32 = 0x80020004
	CodeTypeMismatch            uint32 = 0x80020005
	CodeDispatchException       uint32 = 0x80020009
	CodeBadParamCount           uint32 = 0x8002000E
	CodeClassNotRegistered      uint32 = 0x80040154
	CodeAccessDeniedHRESULT     uint32 = 0x80070005
	CodeServerUnavailableResult uint32 = 0x800706BA
	CodeServerExecFailure       uint32 = 0x80080005
	CodeWbemFailed              uint32 = 0x80041001
	CodeWbemAccessDenied        uint32 = 0x80041003
	CodeWbemInvalidNamespace    uint32 = 0x8004100E
	CodeWbemTransportFailure    uint32 = 0x80041015
	CodeWbemLocalCredentials    uint32 = 0x80041064
)

var (
	// ErrUnknownHost is returned when the target server name cannot be resolved.
	ErrUnknownHost = errors.New("unknown host")

	// ErrAuthentication is returned when the session authenticator cannot
	// produce or complete a security context.
	ErrAuthentication = errors.New("authentication failed")

	// ErrSessionDestroyed is returned when a destroyed session is used.
	ErrSessionDestroyed = errors.New("session has been destroyed")
)

// Error is a protocol-level failure reported by the remote-object runtime.
// Code carries the native status for diagnostics.
type Error struct {
	Operation string // The operation that failed
	Code      uint32 // Native Win32 or HRESULT status
	Message   string // Human-readable message
	Cause     error  // Underlying error
}

func (e *Error) Error() string {
	var parts []string

	if e.Code != 0 {
		parts = append(parts, fmt.Sprintf("DCOM %s failed (code %s)", e.Operation, FormatCode(e.Code)))
	} else {
		parts = append(parts, fmt.Sprintf("DCOM %s failed", e.Operation))
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

// NewError creates a protocol error with the standard message for code.
func NewError(operation string, code uint32, cause error) *Error {
	return &Error{
		Operation: operation,
		Code:      code,
		Message:   CodeMessage(code),
		Cause:     cause,
	}
}

// remoteFailure classifies the outcome of one remote call. A non-zero return
// status wins over the error that may accompany it.
func remoteFailure(operation string, status int32, err error) error {
	if status != 0 {
		return NewError(operation, uint32(status), err)
	}
	if err == nil {
		return nil
	}
	if isTransportFailure(err) {
		return NewError(operation, CodeServerUnavailable, err)
	}
	return NewError(operation, CodeCallFailedDNE, err)
}

// bindFailure classifies a failed interface binding. Anything other than a
// network failure means the security context was rejected.
func bindFailure(operation string, err error) error {
	if isTransportFailure(err) {
		return NewError(operation, CodeServerUnavailable, err)
	}
	return errors.Join(ErrAuthentication, NewError(operation, CodeAccessDenied, err))
}

func isTransportFailure(err error) bool {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return true
	default:
		return false
	}
}

// ErrorCode returns the native code of the first *Error in err's chain.
func ErrorCode(err error) (uint32, bool) {
	var dcomErr *Error
	if errors.As(err, &dcomErr) {
		return dcomErr.Code, true
	}
	return 0, false
}

// IsAccessDenied reports whether err carries one of the access denied codes.
func IsAccessDenied(err error) bool {
	code, ok := ErrorCode(err)
	if !ok {
		return false
	}

	switch code {
	case CodeAccessDenied, CodeAccessDeniedHRESULT, CodeWbemAccessDenied:
		return true
	default:
		return false
	}
}

// FormatCode renders Win32 codes in decimal and HRESULTs in hex.
func FormatCode(code uint32) string {
	if code < 0x10000 {
		return fmt.Sprintf("%d", code)
	}
	return fmt.Sprintf("0x%08X", code)
}

// CodeMessage returns a human-readable message for a native status code.
func CodeMessage(code uint32) string {
	switch code {
	case 0:
		return "Operation completed successfully"
	case CodeAccessDenied, CodeAccessDeniedHRESULT:
		return "Access is denied"
	case CodeLogonFailure:
		return "Unknown user name or bad password"
	case CodeServerUnavailable, CodeServerUnavailableResult:
		return "The RPC server is unavailable"
	case CodeCallFailedDNE:
		return "The remote procedure call failed and did not execute"
	case CodeProtocolError:
		return "An RPC protocol error occurred"
	case CodeUnknownAuthnService:
		return "The authentication service is unknown"
	case CodeNotImplemented:
		return "Not implemented"
	case CodeNoInterface:
		return "No such interface supported"
	case CodeUnspecified:
		return "Unspecified error"
	case CodeDisconnected:
		return "The object invoked has disconnected from its clients"
	case CodeMemberNotFound:
		return "Member not found"
	case CodeParamNotFound:
		return "Parameter not found"
	case CodeTypeMismatch:
		return "Type mismatch"
	case CodeDispatchException:
		return "Exception occurred"
	case CodeBadParamCount:
		return "Invalid number of parameters"
	case CodeClassNotRegistered:
		return "Class not registered"
	case CodeServerExecFailure:
		return "Server execution failed"
	case CodeWbemFailed:
		return "WMI generic failure"
	case CodeWbemAccessDenied:
		return "WMI access denied"
	case CodeWbemInvalidNamespace:
		return "Invalid namespace"
	case CodeWbemTransportFailure:
		return "WMI transport failure"
	case CodeWbemLocalCredentials:
		return "User credentials cannot be used for local connections"
	default:
		return fmt.Sprintf("Unknown DCOM error (code %s)", FormatCode(code))
	}
}
