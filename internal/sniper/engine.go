// internal/sniper/engine.go
package sniper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/base-sniper/internal/chain"
	"github.com/rovshanmuradov/base-sniper/internal/dex"
	"github.com/rovshanmuradov/base-sniper/internal/events"
	"github.com/rovshanmuradov/base-sniper/internal/ledger"
	"github.com/rovshanmuradov/base-sniper/internal/liquidity"
	"github.com/rovshanmuradov/base-sniper/internal/logger"
	"github.com/rovshanmuradov/base-sniper/internal/metrics"
	"github.com/rovshanmuradov/base-sniper/internal/monitor"
	"github.com/rovshanmuradov/base-sniper/internal/security"
	"github.com/rovshanmuradov/base-sniper/internal/session"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultTxDeadline   = 60 * time.Second
	DefaultGasLimit     = 500000

	// probes between "still monitoring" journal lines
	defaultLogEvery = 5
)

// Config wires an Engine. Chain, Reader, Detector, Venues and Logger are
// required; the remaining collaborators get in-memory defaults.
type Config struct {
	Chain     chain.Client
	Reader    dex.Reader
	Detector  *liquidity.Detector
	Venues    *dex.Registry
	Monitor   *monitor.PriceMonitor
	Alerts    *monitor.AlertManager
	Validator *security.Validator
	Store     *session.Store
	Ledger    *ledger.Ledger
	Metrics   *metrics.Tracker
	Bus       *events.Bus
	Journal   logger.Sink
	Logger    *zap.Logger

	BaseToken     common.Address
	PollInterval  time.Duration
	TxDeadline    time.Duration
	GasLimit      uint64
	MaxBuy        decimal.Decimal // ETH, zero means unlimited
	SecurityCheck bool
}

// Engine drives sniping sessions from creation to execution.
type Engine struct {
	chain     chain.Client
	reader    dex.Reader
	detector  *liquidity.Detector
	venues    *dex.Registry
	monitor   *monitor.PriceMonitor
	alerts    *monitor.AlertManager
	security  *security.Validator
	store     *session.Store
	ledger    *ledger.Ledger
	metrics   *metrics.Tracker
	bus       *events.Bus
	journal   logger.Sink
	logger    *zap.Logger
	validator *validator.Validate
	scheduler *Scheduler

	base          common.Address
	pollInterval  time.Duration
	txDeadline    time.Duration
	gasLimit      uint64
	maxBuy        decimal.Decimal
	securityCheck bool
	logEvery      int

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	now      func() time.Time
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Chain == nil:
		return nil, errors.New("chain client is required")
	case cfg.Reader == nil:
		return nil, errors.New("pool reader is required")
	case cfg.Detector == nil:
		return nil, errors.New("liquidity detector is required")
	case cfg.Venues == nil:
		return nil, errors.New("venue registry is required")
	case cfg.Logger == nil:
		return nil, errors.New("logger is required")
	case cfg.BaseToken == (common.Address{}):
		return nil, errors.New("base token is required")
	}

	e := &Engine{
		chain:         cfg.Chain,
		reader:        cfg.Reader,
		detector:      cfg.Detector,
		venues:        cfg.Venues,
		monitor:       cfg.Monitor,
		alerts:        cfg.Alerts,
		security:      cfg.Validator,
		store:         cfg.Store,
		ledger:        cfg.Ledger,
		metrics:       cfg.Metrics,
		bus:           cfg.Bus,
		journal:       cfg.Journal,
		logger:        cfg.Logger.Named("sniper"),
		validator:     newValidator(),
		scheduler:     NewScheduler(),
		base:          cfg.BaseToken,
		pollInterval:  cfg.PollInterval,
		txDeadline:    cfg.TxDeadline,
		gasLimit:      cfg.GasLimit,
		maxBuy:        cfg.MaxBuy,
		securityCheck: cfg.SecurityCheck,
		logEvery:      defaultLogEvery,
		now:           time.Now,
	}
	if e.store == nil {
		e.store = session.NewStore()
	}
	if e.ledger == nil {
		e.ledger = ledger.New()
	}
	if e.metrics == nil {
		e.metrics = metrics.NewTracker(metrics.DefaultWindow, nil)
	}
	if e.journal == nil {
		e.journal = logger.NopSink{}
	}
	if e.pollInterval <= 0 {
		e.pollInterval = DefaultPollInterval
	}
	if e.txDeadline <= 0 {
		e.txDeadline = DefaultTxDeadline
	}
	if e.gasLimit == 0 {
		e.gasLimit = DefaultGasLimit
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e, nil
}

// StartSniping creates a session for token and either buys immediately,
// when liquidity already exists, or starts polling for it. Execution
// failures are recorded on the session; only invalid input is returned as
// an error.
func (e *Engine) StartSniping(ctx context.Context, token string, amount decimal.Decimal, slippageBps int) (string, error) {
	token = strings.TrimSpace(token)
	wei, err := e.validate(startRequest{Token: token, Amount: amount, SlippageBps: slippageBps})
	if err != nil {
		return "", err
	}

	id := e.store.Create(token, wei, slippageBps)
	token = strings.ToLower(token)
	log := e.logger.With(zap.String("session_id", id), zap.String("token", logger.ShortenAddress(token)))
	log.Info("Session started",
		zap.String("amount_eth", amount.String()),
		zap.Int("slippage_bps", slippageBps))
	logger.Logf(e.journal, logger.LevelInfo, id, "Started sniping %s with %s ETH (slippage %d bps)", token, amount, slippageBps)
	e.publish(events.SessionStartedEvent{
		BaseEvent:    events.NewBase(events.SessionStarted),
		SessionID:    id,
		TokenAddress: token,
	})

	if e.securityCheck && e.security != nil {
		e.security.Validate(ctx, token, id)
	}

	res := e.detector.Probe(ctx, token, id)
	if res.Exists {
		if _, live := e.live(id); !live {
			return id, nil
		}
		e.announce(id, token, res)
		e.execute(ctx, id, res)
		return id, nil
	}

	if !e.store.Update(id, func(s *session.Session) { s.Status = session.StatusMonitoring }) {
		return id, nil
	}
	if _, live := e.live(id); !live {
		return id, nil
	}
	logger.Logf(e.journal, logger.LevelInfo, id, "No liquidity yet, monitoring every %s", e.pollInterval)
	e.scheduler.Schedule(id, e.pollInterval, e.pollTick(id, token))
	return id, nil
}

// pollTick re-probes one session. Every resumption re-checks the session
// status, so a stop during a probe discards its result.
func (e *Engine) pollTick(id, token string) PollFunc {
	return func(ctx context.Context) bool {
		sess, ok := e.live(id)
		if !ok {
			return true
		}

		checks := sess.Checks + 1
		e.store.Update(id, func(s *session.Session) { s.Checks = checks })

		res := e.detector.Probe(ctx, token, id)
		if ctx.Err() != nil {
			return true
		}
		if _, ok := e.live(id); !ok {
			return true
		}
		if !res.Exists {
			if checks%e.logEvery == 0 {
				logger.Logf(e.journal, logger.LevelInfo, id, "Still monitoring for liquidity (check %d)", checks)
			}
			return false
		}

		// Detach before executing so a stop cannot cancel a submitted trade.
		e.scheduler.Cancel(id)
		if !e.store.Update(id, func(s *session.Session) { s.Status = session.StatusActive }) {
			return true
		}
		if _, ok := e.live(id); !ok {
			return true
		}
		e.announce(id, token, res)
		e.execute(e.ctx, id, res)
		return true
	}
}

func (e *Engine) announce(id, token string, res liquidity.Result) {
	e.logger.Info("Liquidity detected",
		zap.String("session_id", id),
		zap.String("venue", res.DexID),
		zap.Duration("elapsed", res.DetectionTime))
	logger.Logf(e.journal, logger.LevelSuccess, id, "Liquidity detected on %s after %s", res.DexID, res.DetectionTime.Round(time.Millisecond))
	e.publish(events.LiquidityDetectedEvent{
		BaseEvent:    events.NewBase(events.LiquidityDetected),
		SessionID:    id,
		TokenAddress: token,
		Venue:        res.DexID,
		Elapsed:      res.DetectionTime,
	})
}

// StopSniping stops a session at any point of its lifecycle. Unknown ids
// and already stopped sessions are a no-op.
func (e *Engine) StopSniping(id string) error {
	prev, ok := e.store.Stop(id)
	if !ok || prev == session.StatusStopped {
		return nil
	}
	e.teardown(id)
	e.logger.Info("Session stopped", zap.String("session_id", id), zap.String("previous", string(prev)))
	e.journal.Log(logger.LevelInfo, id, "Sniping stopped")
	e.publish(events.SessionStoppedEvent{
		BaseEvent: events.NewBase(events.SessionStopped),
		SessionID: id,
		Reason:    "user",
	})
	return nil
}

func (e *Engine) teardown(id string) {
	e.scheduler.Cancel(id)
	if e.monitor != nil {
		e.monitor.StopMonitoring(id)
	}
	if e.alerts != nil {
		e.alerts.Forget(id)
	}
}

// GetSessionStatus returns a snapshot of the session.
func (e *Engine) GetSessionStatus(id string) (session.Session, bool) {
	return e.store.Get(id)
}

// GetAllSessions returns every retained session.
func (e *Engine) GetAllSessions() []session.Session {
	return e.store.List()
}

// GetActiveSessions returns Active and Monitoring sessions.
func (e *Engine) GetActiveSessions() []session.Session {
	return e.store.ListActive()
}

// GetMetrics returns the execution metrics snapshot.
func (e *Engine) GetMetrics() metrics.Snapshot {
	return e.metrics.Snapshot()
}

// CalculatePnL summarizes the trade ledger.
func (e *Engine) CalculatePnL() ledger.Summary {
	return e.ledger.Summary()
}

// ExportToCSV renders the trade ledger.
func (e *Engine) ExportToCSV() (string, error) {
	return e.ledger.ExportCSV()
}

// Ledger exposes the trade ledger for file export.
func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

// ValidateToken runs the advisory security check.
func (e *Engine) ValidateToken(ctx context.Context, token string) (security.Result, error) {
	if e.security == nil {
		return security.Result{}, errors.New("security validator not configured")
	}
	token = strings.TrimSpace(token)
	if !common.IsHexAddress(token) {
		return security.Result{}, fmt.Errorf("%w: token must be a 0x-prefixed 20-byte address", ErrInvalidInput)
	}
	return e.security.Validate(ctx, token, ""), nil
}

// RunJanitor evicts terminal sessions older than ttl every interval until
// ctx ends. A non-positive ttl disables eviction.
func (e *Engine) RunJanitor(ctx context.Context, ttl, interval time.Duration) error {
	if ttl <= 0 {
		<-ctx.Done()
		return nil
	}
	if interval <= 0 {
		interval = ttl / 4
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.evict(ttl)
		}
	}
}

type forgetter interface {
	Forget(sessionID string)
}

func (e *Engine) evict(ttl time.Duration) []string {
	evicted := e.store.Evict(ttl)
	if len(evicted) == 0 {
		return nil
	}
	if f, ok := e.journal.(forgetter); ok {
		for _, id := range evicted {
			f.Forget(id)
		}
	}
	e.logger.Debug("Evicted sessions", zap.Int("count", len(evicted)))
	return evicted
}

// Shutdown stops all polling and price monitoring, marks live sessions
// Stopped and waits for in-flight executions. Executions still running when
// ctx ends are cancelled.
func (e *Engine) Shutdown(ctx context.Context) error {
	var errs []error
	if err := e.scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("executions: %w", ctx.Err()))
	}
	e.cancel()

	for _, s := range e.store.ListActive() {
		if prev, ok := e.store.Stop(s.ID); ok && prev != session.StatusStopped {
			e.publish(events.SessionStoppedEvent{
				BaseEvent: events.NewBase(events.SessionStopped),
				SessionID: s.ID,
				Reason:    "shutdown",
			})
		}
	}

	if e.monitor != nil {
		if err := e.monitor.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("price monitor: %w", err))
		}
	}
	return errors.Join(errs...)
}

// live returns the session if it exists and is not terminal.
func (e *Engine) live(id string) (session.Session, bool) {
	s, ok := e.store.Get(id)
	if !ok || s.Status.Terminal() {
		return s, false
	}
	return s, true
}

func (e *Engine) publish(event events.Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(event); err != nil {
		e.logger.Debug("Event not published", zap.String("type", string(event.Type())), zap.Error(err))
	}
}
