package chain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoEndpoints is returned when the client has no endpoint to call.
	ErrNoEndpoints = errors.New("no rpc endpoints configured")

	// ErrNonRetryable marks failures that will not succeed on retry:
	// invalid arguments, reverted calls, gas estimation failures.
	ErrNonRetryable = errors.New("non-retryable rpc error")

	// ErrRetriesExhausted wraps the last error once every retry has failed.
	ErrRetriesExhausted = errors.New("max retries exceeded")

	// ErrBlockNotFound is returned when a block lookup yields null.
	ErrBlockNotFound = errors.New("block not found")
)

// JSON-RPC error codes the client classifies.
const (
	codeInvalidRequest  = -32600
	codeMethodNotFound  = -32601
	codeInvalidParams   = -32602
	codeLimitExceeded   = -32005
	codeExecutionRevert = 3
)

var nonRetryableMessages = []string{
	"execution reverted",
	"revert",
	"invalid argument",
	"invalid params",
	"gas required exceeds",
	"cannot estimate gas",
	"intrinsic gas too low",
	"out of gas",
}

var rangeTooLargeMessages = []string{
	"query returned more than",
	"block range",
	"range too large",
	"too many results",
	"limit exceeded",
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Is lets errors.Is(err, ErrNonRetryable) match deterministic failures.
func (e *RPCError) Is(target error) bool {
	return target == ErrNonRetryable && !e.retryable()
}

func (e *RPCError) retryable() bool {
	switch e.Code {
	case codeInvalidRequest, codeMethodNotFound, codeInvalidParams, codeExecutionRevert:
		return false
	}
	msg := strings.ToLower(e.Message)
	for _, m := range nonRetryableMessages {
		if strings.Contains(msg, m) {
			return false
		}
	}
	return true
}

// HTTPStatusError is a non-200 response from an endpoint.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether err may succeed on another attempt.
// Transport failures, 429 and 5xx responses, and unknown RPC errors are retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNonRetryable) || errors.Is(err, ErrNoEndpoints) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == 429 || statusErr.StatusCode >= 500
	}
	return true
}

// IsRangeTooLarge reports whether a getLogs failure asks for a smaller range.
func IsRangeTooLarge(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	if rpcErr.Code == codeLimitExceeded {
		return true
	}
	msg := strings.ToLower(rpcErr.Message)
	for _, m := range rangeTooLargeMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
