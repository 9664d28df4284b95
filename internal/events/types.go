// internal/events/types.go
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType represents the type of event.
type EventType string

const (
	// Session lifecycle events
	SessionStarted    EventType = "session.started"
	LiquidityDetected EventType = "session.liquidity_detected"
	ExecutionFinished EventType = "session.execution_finished"
	SessionStopped    EventType = "session.stopped"

	// Price events
	PriceUpdated EventType = "price.updated"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// NewBase stamps an event header with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// SessionStartedEvent is emitted when a session is created.
type SessionStartedEvent struct {
	BaseEvent
	SessionID    string
	TokenAddress string
}

// LiquidityDetectedEvent is emitted when a probe finds a tradable pool.
type LiquidityDetectedEvent struct {
	BaseEvent
	SessionID    string
	TokenAddress string
	Venue        string
	Elapsed      time.Duration
}

// ExecutionFinishedEvent is emitted after every buy or sell attempt.
type ExecutionFinishedEvent struct {
	BaseEvent
	SessionID string
	Operation string // "buy" or "sell"
	Success   bool
	TxHash    string
	Error     string
}

// SessionStoppedEvent is emitted when a session reaches Stopped.
type SessionStoppedEvent struct {
	BaseEvent
	SessionID string
	Reason    string // "user", "sold", "shutdown"
}

// PriceUpdatedEvent is emitted by the price monitor on every successful read.
type PriceUpdatedEvent struct {
	BaseEvent
	SessionID    string
	TokenAddress string
	Venue        string
	Price        decimal.Decimal
}
