// internal/chain/errors.go
package chain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEndpoints is returned when no RPC endpoint could be dialed.
	ErrNoEndpoints = errors.New("no RPC endpoints available")

	// ErrNoSigner is returned by operations that need a private key.
	ErrNoSigner = errors.New("no signer configured")

	// ErrReceiptTimeout is returned when a transaction is not mined in time.
	ErrReceiptTimeout = errors.New("timed out waiting for receipt")
)

// Error carries the endpoint and method of a failed RPC call.
type Error struct {
	Err      error
	Endpoint string
	Method   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc %s at %s: %v", e.Method, e.Endpoint, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with call context.
func NewError(err error, endpoint, method string) error {
	return &Error{
		Err:      err,
		Endpoint: endpoint,
		Method:   method,
	}
}
