// internal/session/session.go
package session

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a sniping session.
type Status string

const (
	StatusActive     Status = "active"
	StatusMonitoring Status = "monitoring"
	StatusStopped    Status = "stopped"
	StatusError      Status = "error"
)

// Terminal reports whether no further automatic work happens for the status.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusError
}

// canMove enforces monotone progress toward a terminal status: Active and
// Monitoring may alternate, Error may only be stopped, Stopped is final.
func canMove(from, to Status) bool {
	switch from {
	case StatusStopped:
		return to == StatusStopped
	case StatusError:
		return to == StatusError || to == StatusStopped
	default:
		return true
	}
}

// Session is one user request to acquire a token once liquidity appears.
type Session struct {
	ID           string
	TokenAddress string
	BuyAmount    *big.Int // wei
	SlippageBps  int
	Status       Status
	StartTime    time.Time
	LastUpdate   time.Time
	TxHash       string

	Venue  string // venue id the buy executed on
	Error  string
	Checks int // liquidity probes performed by the poll loop

	// Position tracking after a confirmed buy.
	EntryPrice     decimal.Decimal
	LastPrice      decimal.Decimal
	PositionTokens *big.Int
	TokenDecimals  uint8
	SellTxHash     string
}

// HasPosition reports whether the session holds tokens from a confirmed buy.
func (s Session) HasPosition() bool {
	return s.TxHash != "" && s.PositionTokens != nil && s.PositionTokens.Sign() > 0
}

func (s Session) clone() Session {
	c := s
	if s.BuyAmount != nil {
		c.BuyAmount = new(big.Int).Set(s.BuyAmount)
	}
	if s.PositionTokens != nil {
		c.PositionTokens = new(big.Int).Set(s.PositionTokens)
	}
	return c
}
