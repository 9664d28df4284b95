// internal/monitor/alerts.go
package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/base-sniper/internal/logger"
)

// AlertType represents different types of alerts
type AlertType string

const (
	AlertTypeProfitTarget AlertType = "profit_target"
	AlertTypeLossLimit    AlertType = "loss_limit"
)

// Alert represents a triggered alert
type Alert struct {
	Type         AlertType
	SessionID    string
	Token        string
	Timestamp    time.Time
	Message      string
	EntryPrice   decimal.Decimal
	CurrentPrice decimal.Decimal
	ChangePct    decimal.Decimal
}

// AlertConfig holds alert thresholds. A zero percentage disables that alert.
type AlertConfig struct {
	ProfitTargetPercent float64
	LossLimitPercent    float64
	Cooldown            time.Duration
}

// AlertManager compares open positions with their entry price and reports
// threshold crossings to the journal. Alerts are informational only.
type AlertManager struct {
	mu     sync.Mutex
	config AlertConfig
	logger *zap.Logger
	sink   logger.Sink

	lastAlert map[string]time.Time // session -> last alert time
	now       func() time.Time
}

// NewAlertManager creates a new alert manager
func NewAlertManager(config AlertConfig, zapLogger *zap.Logger, sink logger.Sink) *AlertManager {
	if sink == nil {
		sink = logger.NopSink{}
	}
	return &AlertManager{
		config:    config,
		logger:    zapLogger.Named("alerts"),
		sink:      sink,
		lastAlert: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Check evaluates one price update for a session holding a position.
func (am *AlertManager) Check(sessionID, token string, entry, current decimal.Decimal) []Alert {
	if !entry.IsPositive() || !current.IsPositive() {
		return nil
	}

	am.mu.Lock()
	defer am.mu.Unlock()

	now := am.now()
	if last, ok := am.lastAlert[sessionID]; ok && now.Sub(last) < am.config.Cooldown {
		return nil
	}

	change := current.Sub(entry).Div(entry).Mul(decimal.NewFromInt(100))
	base := Alert{
		SessionID:    sessionID,
		Token:        token,
		Timestamp:    now,
		EntryPrice:   entry,
		CurrentPrice: current,
		ChangePct:    change,
	}

	var triggered []Alert
	if target := am.config.ProfitTargetPercent; target > 0 && change.GreaterThanOrEqual(decimal.NewFromFloat(target)) {
		a := base
		a.Type = AlertTypeProfitTarget
		a.Message = fmt.Sprintf("Profit target reached: +%s%% (entry %s, now %s)",
			change.StringFixed(2), entry.String(), current.String())
		triggered = append(triggered, a)
	}
	if limit := am.config.LossLimitPercent; limit > 0 && change.LessThanOrEqual(decimal.NewFromFloat(-limit)) {
		a := base
		a.Type = AlertTypeLossLimit
		a.Message = fmt.Sprintf("Loss limit hit: %s%% (entry %s, now %s)",
			change.StringFixed(2), entry.String(), current.String())
		triggered = append(triggered, a)
	}

	for _, a := range triggered {
		am.trigger(a)
	}
	if len(triggered) > 0 {
		am.lastAlert[sessionID] = now
	}
	return triggered
}

// Forget drops the cooldown state for a session.
func (am *AlertManager) Forget(sessionID string) {
	am.mu.Lock()
	defer am.mu.Unlock()
	delete(am.lastAlert, sessionID)
}

func (am *AlertManager) trigger(a Alert) {
	level := logger.LevelSuccess
	if a.Type == AlertTypeLossLimit {
		level = logger.LevelWarning
	}
	am.logger.Info("Alert triggered",
		zap.String("type", string(a.Type)),
		zap.String("session_id", a.SessionID),
		zap.String("token", logger.ShortenAddress(a.Token)),
		zap.String("change_pct", a.ChangePct.StringFixed(2)))
	am.sink.Log(level, a.SessionID, a.Message)
}
