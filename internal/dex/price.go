// internal/dex/price.go
package dex

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const pricePrecision = 18

// SpotPrice returns the price of token in base units (base per whole token)
// from pair reserves. token0 decides which reserve belongs to the token.
// ok is false when either side is empty.
func SpotPrice(res Reserves, token0, token common.Address, tokenDecimals, baseDecimals uint8) (decimal.Decimal, bool) {
	if !res.Positive() {
		return decimal.Zero, false
	}
	tokenReserve, baseReserve := res.Reserve1, res.Reserve0
	if token0 == token {
		tokenReserve, baseReserve = res.Reserve0, res.Reserve1
	}
	return Ratio(baseReserve, baseDecimals, tokenReserve, tokenDecimals), true
}

// Ratio computes (num/10^numDec) / (den/10^denDec).
func Ratio(num *big.Int, numDec uint8, den *big.Int, denDec uint8) decimal.Decimal {
	n := decimal.NewFromBigInt(num, -int32(numDec))
	d := decimal.NewFromBigInt(den, -int32(denDec))
	return n.DivRound(d, pricePrecision)
}
