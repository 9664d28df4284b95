// internal/ledger/trade.go
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	priceDecimals = 8
	timeLayout    = "2006-01-02T15:04:05.000Z"
)

// Trade is one completed buy/sell round trip.
type Trade struct {
	ID           string          `json:"id"`
	TokenAddress string          `json:"token_address"`
	TokenSymbol  string          `json:"token_symbol"`
	BuyPrice     decimal.Decimal `json:"buy_price"`
	SellPrice    decimal.Decimal `json:"sell_price"`
	Amount       decimal.Decimal `json:"amount"`
	Profit       decimal.Decimal `json:"profit"`
	Timestamp    time.Time       `json:"timestamp"`
	TxHash       string          `json:"tx_hash"`
}

// ComputeProfit returns (sell - buy) * amount.
func ComputeProfit(buy, sell, amount decimal.Decimal) decimal.Decimal {
	return sell.Sub(buy).Mul(amount)
}

// ToCSV converts the trade to a CSV record in CSVHeaders order.
func (t *Trade) ToCSV() []string {
	return []string{
		t.ID,
		t.TokenSymbol,
		t.BuyPrice.StringFixed(priceDecimals),
		t.SellPrice.StringFixed(priceDecimals),
		t.Amount.StringFixed(priceDecimals),
		t.Profit.StringFixed(priceDecimals),
		t.Timestamp.UTC().Format(timeLayout),
		t.TxHash,
	}
}

// CSVHeaders returns the header row for trade exports.
func CSVHeaders() []string {
	return []string{
		"ID",
		"Token",
		"Buy Price",
		"Sell Price",
		"Amount",
		"Profit",
		"Timestamp",
		"TX Hash",
	}
}
