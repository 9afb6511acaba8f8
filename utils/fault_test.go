package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFault_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("disk read failed")
	f := Internal("analysis failed", cause)

	assert.Equal(t, "internal: analysis failed: disk read failed", f.Error())
	assert.ErrorIs(t, f, cause)
	assert.Equal(t, "invalid_argument: bad value", InvalidArgument("bad %s", "value").Error())
}

func TestAsFault(t *testing.T) {
	wrapped := fmt.Errorf("calling plugin: %w", Unavailable("warming up"))
	assert.Equal(t, FaultUnavailable, AsFault(wrapped).Code)

	assert.Equal(t, FaultInternal, AsFault(context.DeadlineExceeded).Code)
	assert.Equal(t, "call timed out", AsFault(context.DeadlineExceeded).Message)
	assert.Equal(t, FaultUnavailable, AsFault(context.Canceled).Code)
	assert.Equal(t, FaultInternal, AsFault(errors.New("boom")).Code)
	assert.Nil(t, AsFault(nil))
	assert.Equal(t, FaultCode(""), FaultCodeOf(nil))
}

func TestIsRetryableFault(t *testing.T) {
	assert.True(t, IsRetryableFault(Unavailable("busy")))
	assert.True(t, IsRetryableFault(Internal("boom", nil)))
	assert.False(t, IsRetryableFault(InvalidArgument("bad")))
	assert.False(t, IsRetryableFault(NewFault(FaultProtocolViolation, "bad status", nil)))
	assert.False(t, IsRetryableFault(&CircuitBreakerError{State: StateOpen, Message: "open"}))
}

func TestFaultCode_HTTPStatus(t *testing.T) {
	cases := map[FaultCode]int{
		FaultInvalidArgument:   http.StatusBadRequest,
		FaultInternal:          http.StatusInternalServerError,
		FaultUnavailable:       http.StatusServiceUnavailable,
		FaultProtocolViolation: http.StatusBadGateway,
	}
	for code, status := range cases {
		assert.Equal(t, status, code.HTTPStatus(), string(code))
		if code != FaultProtocolViolation {
			assert.Equal(t, code, FaultCodeFromStatus(status), string(code))
		}
	}
	assert.Equal(t, FaultUnavailable, FaultCodeFromStatus(http.StatusTooManyRequests))
	assert.Equal(t, FaultInternal, FaultCodeFromStatus(http.StatusNotFound))
}

func TestParseFaultCode(t *testing.T) {
	code, ok := ParseFaultCode("unavailable")
	assert.True(t, ok)
	assert.Equal(t, FaultUnavailable, code)

	_, ok = ParseFaultCode("NOT_FOUND")
	assert.False(t, ok)
}
