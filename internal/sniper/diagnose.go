// internal/sniper/diagnose.go
package sniper

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rovshanmuradov/base-sniper/internal/liquidity"
)

// Diagnosis is a one-shot connectivity and liquidity report.
type Diagnosis struct {
	BlockNumber uint64           `json:"block_number"`
	ChainID     *big.Int         `json:"chain_id"`
	Signer      string           `json:"signer,omitempty"`
	Balance     *big.Int         `json:"balance,omitempty"`
	Liquidity   liquidity.Result `json:"liquidity"`
	Errors      []string         `json:"errors,omitempty"`
}

// Diagnose checks the chain connection and, when token is set, probes it
// without creating a session. It fails only when the chain is unreachable.
func (e *Engine) Diagnose(ctx context.Context, token string) (Diagnosis, error) {
	var d Diagnosis

	block, err := e.chain.BlockNumber(ctx)
	if err != nil {
		return d, fmt.Errorf("%w: block number: %v", ErrChainUnavailable, err)
	}
	d.BlockNumber = block

	if id, err := e.chain.ChainID(ctx); err != nil {
		d.Errors = append(d.Errors, "chain id: "+err.Error())
	} else {
		d.ChainID = id
	}

	if signer, ok := e.chain.Signer(); ok {
		d.Signer = signer.Hex()
		if bal, err := e.chain.BalanceAt(ctx, signer); err != nil {
			d.Errors = append(d.Errors, "balance: "+err.Error())
		} else {
			d.Balance = bal
		}
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return d, nil
	}
	if !common.IsHexAddress(token) {
		return d, fmt.Errorf("%w: token must be a 0x-prefixed 20-byte address", ErrInvalidInput)
	}
	d.Liquidity = e.detector.Probe(ctx, token, "")
	if d.Liquidity.Error != "" {
		d.Errors = append(d.Errors, "liquidity: "+d.Liquidity.Error)
	}
	return d, nil
}
