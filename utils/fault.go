package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// FaultCode classifies a call-terminating error
type FaultCode string

const (
	// FaultInvalidArgument - the request is malformed or uninterpretable
	FaultInvalidArgument FaultCode = "invalid_argument"
	// FaultInternal - the plugin failed for reasons unrelated to the input
	FaultInternal FaultCode = "internal"
	// FaultUnavailable - the plugin cannot serve right now
	FaultUnavailable FaultCode = "unavailable"
	// FaultProtocolViolation - the plugin answered with a response that breaks the contract
	FaultProtocolViolation FaultCode = "protocol_violation"
)

// Fault is a typed error returned instead of a normal response.
type Fault struct {
	Code    FaultCode
	Message string
	Err     error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Code, f.Message)
	}
	return fmt.Sprintf("%s: %s: %v", f.Code, f.Message, f.Err)
}

// Unwrap exposes the underlying error for errors.Is/As.
func (f *Fault) Unwrap() error {
	return f.Err
}

// NewFault constructs a Fault.
func NewFault(code FaultCode, message string, err error) *Fault {
	return &Fault{Code: code, Message: message, Err: err}
}

// InvalidArgument constructs an invalid_argument fault.
func InvalidArgument(format string, args ...interface{}) *Fault {
	return &Fault{Code: FaultInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// Internal constructs an internal fault wrapping err.
func Internal(message string, err error) *Fault {
	return &Fault{Code: FaultInternal, Message: message, Err: err}
}

// Unavailable constructs an unavailable fault.
func Unavailable(message string) *Fault {
	return &Fault{Code: FaultUnavailable, Message: message}
}

// AsFault extracts a Fault from err. Context deadlines become internal faults
// and any other untyped error is reported as internal.
func AsFault(err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	var cbErr *CircuitBreakerError
	if errors.As(err, &cbErr) {
		return &Fault{Code: FaultUnavailable, Message: cbErr.Message, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Fault{Code: FaultInternal, Message: "call timed out", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Fault{Code: FaultUnavailable, Message: "call cancelled", Err: err}
	}
	return &Fault{Code: FaultInternal, Message: "unclassified error", Err: err}
}

// FaultCodeOf returns the fault code carried by err, or internal.
func FaultCodeOf(err error) FaultCode {
	if f := AsFault(err); f != nil {
		return f.Code
	}
	return ""
}

// IsRetryableFault reports whether a host may retry the call unchanged.
func IsRetryableFault(err error) bool {
	if IsCircuitBreakerError(err) {
		return false
	}
	switch FaultCodeOf(err) {
	case FaultInternal, FaultUnavailable:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a fault code to the status used on the HTTP transport.
func (c FaultCode) HTTPStatus() int {
	switch c {
	case FaultInvalidArgument:
		return http.StatusBadRequest
	case FaultUnavailable:
		return http.StatusServiceUnavailable
	case FaultProtocolViolation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FaultCodeFromStatus recovers a fault code from an HTTP status when the body
// did not carry one.
func FaultCodeFromStatus(status int) FaultCode {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return FaultInvalidArgument
	case status == http.StatusServiceUnavailable, status == http.StatusTooManyRequests:
		return FaultUnavailable
	default:
		return FaultInternal
	}
}

// ParseFaultCode validates a code received over the wire.
func ParseFaultCode(code string) (FaultCode, bool) {
	switch FaultCode(code) {
	case FaultInvalidArgument, FaultInternal, FaultUnavailable, FaultProtocolViolation:
		return FaultCode(code), true
	}
	return "", false
}
