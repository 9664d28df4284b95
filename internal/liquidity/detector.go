// internal/liquidity/detector.go
package liquidity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/base-sniper/internal/dex"
	"github.com/rovshanmuradov/base-sniper/internal/logger"
)

// ErrInvalidAddress is the Result.Error text for malformed token addresses.
const ErrInvalidAddress = "invalid address format"

// Result is the outcome of one probe across all venues.
type Result struct {
	Exists        bool
	DexID         string
	Pair          common.Address
	Reserves      *dex.Reserves
	Error         string
	DetectionTime time.Duration
}

// Observer counts per-venue probe outcomes.
type Observer interface {
	ObserveProbe(venue, result string)
}

// Config wires a Detector.
type Config struct {
	Reader   dex.Reader
	Venues   *dex.Registry
	Base     common.Address
	Timeout  time.Duration // per venue, <= 0 means only ctx bounds the call
	Logger   *zap.Logger
	Sink     logger.Sink
	Observer Observer
}

// Detector checks venues in order for a token/base pair with reserves on
// both sides.
type Detector struct {
	reader   dex.Reader
	venues   *dex.Registry
	base     common.Address
	timeout  time.Duration
	logger   *zap.Logger
	sink     logger.Sink
	observer Observer
}

// NewDetector creates a detector.
func NewDetector(cfg Config) *Detector {
	sink := cfg.Sink
	if sink == nil {
		sink = logger.NopSink{}
	}
	return &Detector{
		reader:   cfg.Reader,
		venues:   cfg.Venues,
		base:     cfg.Base,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger.Named("liquidity"),
		sink:     sink,
		observer: cfg.Observer,
	}
}

// Probe returns the first venue, in registry order, whose pair holds
// positive reserves on both sides. A venue failure is recorded in
// Result.Error and the next venue is still checked.
func (d *Detector) Probe(ctx context.Context, token, sessionID string) Result {
	start := time.Now()
	result := Result{DexID: dex.NoVenue}

	token = strings.ToLower(strings.TrimSpace(token))
	if !common.IsHexAddress(token) {
		result.Error = ErrInvalidAddress
		result.DetectionTime = time.Since(start)
		return result
	}
	tokenAddr := common.HexToAddress(token)

	var failures []string
	for _, venue := range d.venues.Venues() {
		if ctx.Err() != nil {
			failures = append(failures, ctx.Err().Error())
			break
		}

		pair, reserves, outcome, err := d.probeVenue(ctx, venue, tokenAddr)
		d.observe(venue.ID, outcome)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", venue.ID, err))
			d.logger.Warn("Venue probe failed",
				zap.String("venue", venue.ID),
				zap.String("token", token),
				zap.Error(err))
			logger.Logf(d.sink, logger.LevelWarning, sessionID, "%s check failed: %v", venue.Name, err)
			continue
		}
		if outcome != outcomeFound {
			d.logger.Debug("No liquidity on venue",
				zap.String("venue", venue.ID),
				zap.String("token", token),
				zap.String("result", outcome))
			continue
		}

		result.Exists = true
		result.DexID = venue.ID
		result.Pair = pair
		result.Reserves = &reserves
		result.DetectionTime = time.Since(start)
		logger.Logf(d.sink, logger.LevelInfo, sessionID, "Liquidity found on %s (pair %s, %s/%s)",
			venue.Name, pair.Hex(), reserves.Reserve0, reserves.Reserve1)
		return result
	}

	result.Error = strings.Join(failures, "; ")
	result.DetectionTime = time.Since(start)
	return result
}

const (
	outcomeFound  = "found"
	outcomeEmpty  = "empty"
	outcomeNoPair = "no_pair"
	outcomeError  = "error"
)

func (d *Detector) probeVenue(ctx context.Context, venue dex.Venue, token common.Address) (common.Address, dex.Reserves, string, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	pair, err := d.reader.GetPair(ctx, venue.Factory, token, d.base)
	if err != nil {
		return common.Address{}, dex.Reserves{}, outcomeError, err
	}
	if pair == (common.Address{}) {
		return pair, dex.Reserves{}, outcomeNoPair, nil
	}

	reserves, err := d.reader.GetReserves(ctx, pair)
	if err != nil {
		return pair, dex.Reserves{}, outcomeError, err
	}
	if !reserves.Positive() {
		return pair, reserves, outcomeEmpty, nil
	}
	return pair, reserves, outcomeFound, nil
}

func (d *Detector) observe(venue, outcome string) {
	if d.observer != nil {
		d.observer.ObserveProbe(venue, outcome)
	}
}
