package alphasec

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the SDK. Callers match them with errors.Is.
var (
	// ErrConfig indicates an invalid or incomplete Config.
	ErrConfig = errors.New("invalid configuration")
	// ErrInvalidParameter indicates a caller-supplied value outside the accepted range.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrInvalidAddress indicates a malformed hex address.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrNotFound indicates an unknown symbol, market or order.
	ErrNotFound = errors.New("not found")
	// ErrSigner indicates a missing key or a signing failure.
	ErrSigner = errors.New("signer error")
	// ErrAuth indicates the operation needs a credential that is not configured.
	ErrAuth = errors.New("authentication required")
	// ErrNonce indicates nonce acquisition from the chain failed.
	ErrNonce = errors.New("nonce error")
	// ErrStreamClosed is returned when the streaming client has been stopped.
	ErrStreamClosed = errors.New("stream closed")
)

var (
	errPrivateKeyNotProvided = errors.New("private key not provided")
	errTypedDataMissing      = errors.New("typed data payload missing")
	errReceiverTaken         = errors.New("message receiver already taken")
	errNotConnected          = errors.New("websocket not connected")
)

// APIError is a failure reported by the exchange API, carrying the
// HTTP status or application code and the server's message.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

func newAPIError(code int, message string) *APIError {
	return &APIError{Code: code, Message: message}
}
