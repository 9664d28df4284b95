// internal/dex/swap.go
package dex

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const bpsDenominator = 10000

// MinAmountOut applies slippage to amount: amount*(10000-bps)/10000,
// truncated. For buys the amount is the ETH input, not an estimated token
// output, so the bound is only meaningful when both sides are priced alike.
func MinAmountOut(amount *big.Int, slippageBps int) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(int64(bpsDenominator-slippageBps)))
	return out.Quo(out, big.NewInt(bpsDenominator))
}

// MinETHForTokens bounds a sell: tokens valued at price (base units per
// whole token), reduced by slippage and truncated to wei.
func MinETHForTokens(tokens *big.Int, tokenDecimals uint8, price decimal.Decimal, slippageBps int) *big.Int {
	value := decimal.NewFromBigInt(tokens, -int32(tokenDecimals)).Mul(price)
	wei := value.Shift(18).
		Mul(decimal.NewFromInt(int64(bpsDenominator - slippageBps))).
		Div(decimal.NewFromInt(bpsDenominator)).
		Truncate(0)
	if wei.Sign() <= 0 {
		return big.NewInt(0)
	}
	return wei.BigInt()
}

// PackBuy encodes swapExactETHForTokens(minOut, [base, token], to, deadline).
func PackBuy(minOut *big.Int, base, token, to common.Address, deadline *big.Int) ([]byte, error) {
	return RouterABI.Pack("swapExactETHForTokens", minOut, []common.Address{base, token}, to, deadline)
}

// PackSell encodes swapExactTokensForETH(amountIn, minOut, [token, base], to, deadline).
func PackSell(amountIn, minOut *big.Int, token, base, to common.Address, deadline *big.Int) ([]byte, error) {
	return RouterABI.Pack("swapExactTokensForETH", amountIn, minOut, []common.Address{token, base}, to, deadline)
}

// PackApprove encodes approve(spender, amount).
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return ERC20ABI.Pack("approve", spender, amount)
}
