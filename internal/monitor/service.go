// internal/monitor/service.go
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/base-sniper/internal/dex"
	"github.com/rovshanmuradov/base-sniper/internal/events"
)

// UpdateFunc receives every fresh price for a monitored session.
type UpdateFunc func(price decimal.Decimal)

// Config wires a PriceMonitor.
type Config struct {
	Reader       dex.Reader
	Venues       *dex.Registry
	Base         common.Address
	BaseDecimals uint8
	Interval     time.Duration
	Timeout      time.Duration // per read, defaults to Interval
	Bus          *events.Bus
	Logger       *zap.Logger
}

// PriceMonitor runs one background price poller per session and caches
// the last price per token. Updates travel through the event bus, so each
// session's callback sees prices in the order they were read.
type PriceMonitor struct {
	reader       dex.Reader
	venues       *dex.Registry
	base         common.Address
	baseDecimals uint8
	interval     time.Duration
	timeout      time.Duration
	bus          *events.Bus
	logger       *zap.Logger

	mu        sync.Mutex
	trackers  map[string]*tracked
	callbacks map[string]UpdateFunc // used when no bus is configured
	cache     map[string]decimal.Decimal
	wg        sync.WaitGroup
}

type tracked struct {
	tracker *priceTracker
	sub     events.Subscription
}

// New creates a price monitor.
func New(cfg Config) *PriceMonitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = interval
	}
	baseDecimals := cfg.BaseDecimals
	if baseDecimals == 0 {
		baseDecimals = 18
	}
	return &PriceMonitor{
		reader:       cfg.Reader,
		venues:       cfg.Venues,
		base:         cfg.Base,
		baseDecimals: baseDecimals,
		interval:     interval,
		timeout:      timeout,
		bus:          cfg.Bus,
		logger:       cfg.Logger.Named("price_monitor"),
		trackers:     make(map[string]*tracked),
		callbacks:    make(map[string]UpdateFunc),
		cache:        make(map[string]decimal.Decimal),
	}
}

// StartMonitoring polls the reference venue for token.
func (m *PriceMonitor) StartMonitoring(token, sessionID string, onUpdate UpdateFunc) error {
	return m.StartMonitoringOn(m.venues.Reference().ID, token, sessionID, onUpdate)
}

// StartMonitoringOn polls the given venue. An existing monitor for the
// session is replaced.
func (m *PriceMonitor) StartMonitoringOn(venueID, token, sessionID string, onUpdate UpdateFunc) error {
	venue, ok := m.venues.Get(venueID)
	if !ok {
		return fmt.Errorf("unknown venue %q", venueID)
	}
	if !common.IsHexAddress(token) {
		return errors.New("invalid token address")
	}

	m.StopMonitoring(sessionID)

	ctx, cancel := context.WithCancel(context.Background())
	t := &priceTracker{
		sessionID: sessionID,
		token:     common.HexToAddress(token),
		venue:     venue,
		interval:  m.interval,
		monitor:   m,
		logger:    m.logger.With(zap.String("session_id", sessionID)),
		cancel:    cancel,
	}

	entry := &tracked{tracker: t}
	if onUpdate != nil && m.bus != nil {
		entry.sub = m.bus.Subscribe(events.PriceUpdated, events.Filtered(
			func(e events.Event) bool {
				pe, ok := e.(events.PriceUpdatedEvent)
				return ok && pe.SessionID == sessionID
			},
			events.HandlerFunc(func(_ context.Context, e events.Event) error {
				onUpdate(e.(events.PriceUpdatedEvent).Price)
				return nil
			}),
		))
	}

	m.mu.Lock()
	m.trackers[sessionID] = entry
	if onUpdate != nil && m.bus == nil {
		m.callbacks[sessionID] = onUpdate
	}
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		t.run(ctx)
	}()
	return nil
}

// StopMonitoring cancels the session's poller. Unknown ids are ignored.
func (m *PriceMonitor) StopMonitoring(sessionID string) {
	m.mu.Lock()
	entry, ok := m.trackers[sessionID]
	delete(m.trackers, sessionID)
	delete(m.callbacks, sessionID)
	m.mu.Unlock()
	if !ok {
		return
	}

	entry.tracker.cancel()
	if entry.sub != nil {
		entry.sub.Unsubscribe()
	}
}

// IsMonitoring reports whether a poller runs for the session.
func (m *PriceMonitor) IsMonitoring(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.trackers[sessionID]
	return ok
}

// LastPrice returns the most recent price read for token.
func (m *PriceMonitor) LastPrice(token string) (decimal.Decimal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.cache[strings.ToLower(token)]
	return p, ok
}

// Shutdown stops every poller and waits for them to exit.
func (m *PriceMonitor) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.trackers))
	for id := range m.trackers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.StopMonitoring(id)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *PriceMonitor) publish(t *priceTracker, price decimal.Decimal) {
	m.mu.Lock()
	cur, ok := m.trackers[t.sessionID]
	if !ok || cur.tracker != t {
		// stopped or replaced since the read started
		m.mu.Unlock()
		return
	}
	m.cache[strings.ToLower(t.token.Hex())] = price
	cb := m.callbacks[t.sessionID]
	m.mu.Unlock()

	if m.bus == nil {
		if cb != nil {
			cb(price)
		}
		return
	}

	err := m.bus.Publish(events.PriceUpdatedEvent{
		BaseEvent:    events.NewBase(events.PriceUpdated),
		SessionID:    t.sessionID,
		TokenAddress: strings.ToLower(t.token.Hex()),
		Venue:        t.venue.ID,
		Price:        price,
	})
	if err != nil {
		t.logger.Debug("Price update not delivered", zap.Error(err))
	}
}
