// internal/dex/reader.go
package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Caller executes a read-only contract call.
type Caller interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// Reserves of a constant-product pair, ordered by token0/token1.
type Reserves struct {
	Reserve0 *big.Int
	Reserve1 *big.Int
}

// Positive reports whether both sides hold liquidity.
func (r Reserves) Positive() bool {
	return r.Reserve0 != nil && r.Reserve1 != nil && r.Reserve0.Sign() > 0 && r.Reserve1.Sign() > 0
}

// Reader is the typed view over factory, pair and token contracts.
type Reader interface {
	GetPair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error)
	GetReserves(ctx context.Context, pair common.Address) (Reserves, error)
	Token0(ctx context.Context, pair common.Address) (common.Address, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Decimals(ctx context.Context, token common.Address) (uint8, error)
	Symbol(ctx context.Context, token common.Address) (string, error)
	TotalSupply(ctx context.Context, token common.Address) (*big.Int, error)
	Owner(ctx context.Context, token common.Address) (common.Address, error)
}

// ContractReader implements Reader over ABI-encoded eth_call.
type ContractReader struct {
	caller Caller
}

// NewContractReader creates a reader.
func NewContractReader(caller Caller) *ContractReader {
	return &ContractReader{caller: caller}
}

func (r *ContractReader) call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := r.caller.CallContract(ctx, to, data)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}
	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s from %s: %w", method, to.Hex(), err)
	}
	return out, nil
}

// GetPair returns the pair address or the zero address when none exists.
func (r *ContractReader) GetPair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error) {
	out, err := r.call(ctx, FactoryABI, factory, "getPair", tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(out, "getPair")
}

func (r *ContractReader) GetReserves(ctx context.Context, pair common.Address) (Reserves, error) {
	out, err := r.call(ctx, PairABI, pair, "getReserves")
	if err != nil {
		return Reserves{}, err
	}
	if len(out) < 2 {
		return Reserves{}, fmt.Errorf("getReserves: unexpected output length %d", len(out))
	}
	r0, ok0 := out[0].(*big.Int)
	r1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return Reserves{}, fmt.Errorf("getReserves: unexpected output types %T, %T", out[0], out[1])
	}
	return Reserves{Reserve0: r0, Reserve1: r1}, nil
}

func (r *ContractReader) Token0(ctx context.Context, pair common.Address) (common.Address, error) {
	out, err := r.call(ctx, PairABI, pair, "token0")
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(out, "token0")
}

func (r *ContractReader) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := r.call(ctx, ERC20ABI, token, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return asBigInt(out, "balanceOf")
}

func (r *ContractReader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := r.call(ctx, ERC20ABI, token, "decimals")
	if err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("decimals: empty output")
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected output type %T", out[0])
	}
	return d, nil
}

func (r *ContractReader) Symbol(ctx context.Context, token common.Address) (string, error) {
	out, err := r.call(ctx, ERC20ABI, token, "symbol")
	if err != nil {
		return "", err
	}
	if len(out) == 0 {
		return "", fmt.Errorf("symbol: empty output")
	}
	s, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("symbol: unexpected output type %T", out[0])
	}
	return s, nil
}

func (r *ContractReader) TotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	out, err := r.call(ctx, ERC20ABI, token, "totalSupply")
	if err != nil {
		return nil, err
	}
	return asBigInt(out, "totalSupply")
}

func (r *ContractReader) Owner(ctx context.Context, token common.Address) (common.Address, error) {
	out, err := r.call(ctx, ERC20ABI, token, "owner")
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(out, "owner")
}

func asAddress(out []interface{}, method string) (common.Address, error) {
	if len(out) == 0 {
		return common.Address{}, fmt.Errorf("%s: empty output", method)
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: unexpected output type %T", method, out[0])
	}
	return addr, nil
}

func asBigInt(out []interface{}, method string) (*big.Int, error) {
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty output", method)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected output type %T", method, out[0])
	}
	return v, nil
}
