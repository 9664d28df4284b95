package report

import (
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/rovshanmuradov/base-sniper/internal/ledger"
	"github.com/rovshanmuradov/base-sniper/internal/logger"
	"github.com/rovshanmuradov/base-sniper/internal/metrics"
	"github.com/rovshanmuradov/base-sniper/internal/session"
	"github.com/rovshanmuradov/base-sniper/internal/sniper"
)

func TestSessionBlock(t *testing.T) {
	r := NewRenderer()
	out := r.Session(session.Session{
		ID:           "session-1",
		TokenAddress: "0x00000000000000000000000000000000000a11ce",
		BuyAmount:    big.NewInt(1e17),
		SlippageBps:  300,
		Status:       session.StatusActive,
		Venue:        "uniswap_v2",
		EntryPrice:   decimal.RequireFromString("0.001"),
		Error:        "",
	})

	assert.Contains(t, out, "session-1")
	assert.Contains(t, out, "0.1 ETH")
	assert.Contains(t, out, "3.00%")
	assert.Contains(t, out, "uniswap_v2")
	assert.Contains(t, out, "0.001 ETH")
	assert.NotContains(t, out, "Sell tx")
}

func TestPnLBlock(t *testing.T) {
	r := NewRenderer()
	out := r.PnL(ledger.Summary{
		TotalTrades:      2,
		SuccessfulTrades: 1,
		TotalProfit:      decimal.NewFromInt(2),
		TotalLoss:        decimal.RequireFromString("0.5"),
		WinRate:          50,
	})

	assert.Contains(t, out, "2 (1 won)")
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "+1.500000")
}

func TestMetricsBlock(t *testing.T) {
	r := NewRenderer()
	out := r.Metrics(metrics.Snapshot{
		TotalExecutions:  3,
		Successful:       2,
		Failed:           1,
		SuccessRate:      66.7,
		AvgExecutionTime: 1500 * time.Millisecond,
	})

	assert.Contains(t, out, "3 (2 ok, 1 failed)")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "Avg gas")
}

func TestLines(t *testing.T) {
	r := NewRenderer()
	out := r.Lines([]logger.Entry{
		{Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), Level: logger.LevelInfo, Message: "first"},
		{Timestamp: time.Date(2024, 1, 1, 12, 0, 1, 0, time.UTC), Level: logger.LevelError, Message: "second"},
	})

	assert.Contains(t, out, "12:00:00 [INFO] first")
	assert.Contains(t, out, "12:00:01 [ERROR] second")
}

func TestDiagnosisBlock(t *testing.T) {
	r := NewRenderer()
	out := r.Diagnosis(sniper.Diagnosis{
		BlockNumber: 1234,
		ChainID:     big.NewInt(8453),
		Errors:      []string{"liquidity: rpc down"},
	})

	assert.Contains(t, out, "1234")
	assert.Contains(t, out, "8453")
	assert.Contains(t, out, "read-only")
	assert.Contains(t, out, "rpc down")
}
