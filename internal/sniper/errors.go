// internal/sniper/errors.go
package sniper

import (
	"errors"

	"github.com/rovshanmuradov/base-sniper/internal/chain"
)

var (
	// ErrInvalidInput is returned before any state is created.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")

	// ErrChainUnavailable wraps RPC failures and timeouts.
	ErrChainUnavailable = errors.New("chain unavailable")

	// ErrInsufficientBalance is returned when the signer cannot fund the buy.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrTransactionReverted is returned when a mined transaction failed.
	ErrTransactionReverted = errors.New("transaction reverted")

	// ErrNoSigner is returned when no private key is configured (dry run).
	ErrNoSigner = chain.ErrNoSigner

	// ErrNoPosition is returned when selling a session that holds no tokens.
	ErrNoPosition = errors.New("session holds no position")

	// ErrSessionStopped is returned when a session stops while work is in flight.
	ErrSessionStopped = errors.New("session stopped")
)
