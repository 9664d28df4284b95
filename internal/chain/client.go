// internal/chain/client.go
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxRequest describes a contract call to sign and submit.
type TxRequest struct {
	To       common.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64
}

// Client is everything the engine needs from the chain.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	EstimateGas(ctx context.Context, req TxRequest) (uint64, error)
	// SendTransaction signs and submits req. Submissions are serialized so
	// concurrent callers never share a nonce.
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
	// WaitReceipt blocks until the transaction is mined or ctx/timeout expires.
	WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	// Signer returns the sending account, if a key is configured.
	Signer() (common.Address, bool)
}
