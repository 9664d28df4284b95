// internal/monitor/price.go
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/base-sniper/internal/dex"
)

// priceTracker polls one pair for one session.
type priceTracker struct {
	sessionID string
	token     common.Address
	venue     dex.Venue
	interval  time.Duration
	monitor   *PriceMonitor
	logger    *zap.Logger
	cancel    context.CancelFunc

	// resolved lazily and cached after the first successful read
	pair          common.Address
	tokenIsToken0 bool
	tokenDecimals uint8
	resolved      bool
}

// run performs one read immediately and then one per interval until ctx ends.
func (t *priceTracker) run(ctx context.Context) {
	t.logger.Debug("Starting price monitor",
		zap.String("token", t.token.Hex()),
		zap.String("venue", t.venue.ID),
		zap.Duration("interval", t.interval))

	t.update(ctx)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.update(ctx)
		case <-ctx.Done():
			t.logger.Debug("Price monitor stopped")
			return
		}
	}
}

func (t *priceTracker) update(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, t.monitor.timeout)
	defer cancel()

	price, err := t.read(ctx)
	if err != nil {
		if parent.Err() == nil {
			t.logger.Warn("Failed to read price", zap.String("token", t.token.Hex()), zap.Error(err))
		}
		return
	}
	if price.IsZero() {
		return
	}
	t.monitor.publish(t, price)
}

// read returns the token price in base units, or zero when a side of the
// pool is empty.
func (t *priceTracker) read(ctx context.Context) (decimal.Decimal, error) {
	if err := t.resolve(ctx); err != nil {
		return decimal.Zero, err
	}

	reserves, err := t.monitor.reader.GetReserves(ctx, t.pair)
	if err != nil {
		return decimal.Zero, err
	}
	token0 := t.monitor.base
	if t.tokenIsToken0 {
		token0 = t.token
	}
	price, ok := dex.SpotPrice(reserves, token0, t.token, t.tokenDecimals, t.monitor.baseDecimals)
	if !ok {
		return decimal.Zero, nil
	}
	return price, nil
}

func (t *priceTracker) resolve(ctx context.Context) error {
	if t.resolved {
		return nil
	}
	pair, err := t.monitor.reader.GetPair(ctx, t.venue.Factory, t.token, t.monitor.base)
	if err != nil {
		return err
	}
	if pair == (common.Address{}) {
		return fmt.Errorf("no %s pair for %s", t.venue.ID, t.token.Hex())
	}
	token0, err := t.monitor.reader.Token0(ctx, pair)
	if err != nil {
		return err
	}
	decimals, err := t.monitor.reader.Decimals(ctx, t.token)
	if err != nil {
		return err
	}

	t.pair = pair
	t.tokenIsToken0 = strings.EqualFold(token0.Hex(), t.token.Hex())
	t.tokenDecimals = decimals
	t.resolved = true
	return nil
}
