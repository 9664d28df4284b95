// internal/sniper/execute.go
package sniper

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/base-sniper/internal/chain"
	"github.com/rovshanmuradov/base-sniper/internal/dex"
	"github.com/rovshanmuradov/base-sniper/internal/events"
	"github.com/rovshanmuradov/base-sniper/internal/liquidity"
	"github.com/rovshanmuradov/base-sniper/internal/logger"
	"github.com/rovshanmuradov/base-sniper/internal/session"
)

// ExecutionResult is the structured outcome of a buy or sell attempt.
type ExecutionResult struct {
	Success           bool     `json:"success"`
	TxHash            string   `json:"tx_hash,omitempty"`
	GasUsed           *big.Int `json:"gas_used,omitempty"`
	EffectiveGasPrice *big.Int `json:"effective_gas_price,omitempty"`
	Error             string   `json:"error,omitempty"`
	Err               error    `json:"-"`
}

func failure(err error, txHash string) ExecutionResult {
	return ExecutionResult{Error: err.Error(), Err: err, TxHash: txHash}
}

func success(receipt *types.Receipt) ExecutionResult {
	res := ExecutionResult{
		Success: true,
		TxHash:  receipt.TxHash.Hex(),
		GasUsed: new(big.Int).SetUint64(receipt.GasUsed),
	}
	if receipt.EffectiveGasPrice != nil {
		res.EffectiveGasPrice = new(big.Int).Set(receipt.EffectiveGasPrice)
	}
	return res
}

// execute runs one buy, records its outcome on the session and in metrics,
// and opens position tracking on success.
func (e *Engine) execute(ctx context.Context, id string, probe liquidity.Result) ExecutionResult {
	e.inflight.Add(1)
	defer e.inflight.Done()

	start := time.Now()
	result := e.buy(ctx, id, probe)

	log := e.logger.With(zap.String("session_id", id), zap.String("venue", probe.DexID))
	if errors.Is(result.Err, ErrSessionStopped) {
		// user stop before submission, nothing was sent
		log.Info("Buy cancelled, session stopped")
		logger.Logf(e.journal, logger.LevelInfo, id, "Buy cancelled: session stopped")
		return result
	}
	e.metrics.Record(time.Since(start), result.Success, result.GasUsed)

	if result.Success {
		e.store.Update(id, func(s *session.Session) {
			s.Status = session.StatusActive
			s.TxHash = result.TxHash
			s.Venue = probe.DexID
			s.Error = ""
		})
		log.Info("Buy confirmed",
			zap.String("tx", logger.ShortenHash(result.TxHash)),
			zap.Stringer("gas_used", result.GasUsed))
		logger.Logf(e.journal, logger.LevelSuccess, id, "Buy confirmed: %s (gas %s)", result.TxHash, result.GasUsed)
		e.openPosition(ctx, id, probe)
	} else {
		e.store.Update(id, func(s *session.Session) {
			s.Status = session.StatusError
			s.Venue = probe.DexID
			s.Error = result.Error
			if result.TxHash != "" {
				s.TxHash = result.TxHash
			}
		})
		log.Error("Buy failed", zap.String("tx", result.TxHash), zap.Error(result.Err))
		logger.Logf(e.journal, logger.LevelError, id, "Buy failed: %s", result.Error)
	}

	e.publish(events.ExecutionFinishedEvent{
		BaseEvent: events.NewBase(events.ExecutionFinished),
		SessionID: id,
		Operation: "buy",
		Success:   result.Success,
		TxHash:    result.TxHash,
		Error:     result.Error,
	})
	return result
}

func (e *Engine) buy(ctx context.Context, id string, probe liquidity.Result) ExecutionResult {
	signer, ok := e.chain.Signer()
	if !ok {
		return failure(ErrNoSigner, "")
	}
	sess, ok := e.live(id)
	if !ok {
		return failure(ErrSessionStopped, "")
	}
	log := e.logger.With(zap.String("session_id", id))

	balance, err := e.chain.BalanceAt(ctx, signer)
	if err != nil {
		return failure(fmt.Errorf("%w: read balance: %v", ErrChainUnavailable, err), "")
	}
	if balance.Cmp(sess.BuyAmount) < 0 {
		return failure(fmt.Errorf("%w: have %s wei, need %s wei", ErrInsufficientBalance, balance, sess.BuyAmount), "")
	}

	venue, ok := e.venues.Get(probe.DexID)
	if !ok {
		return failure(fmt.Errorf("no router for venue %q", probe.DexID), "")
	}

	minOut := dex.MinAmountOut(sess.BuyAmount, sess.SlippageBps)
	deadline := big.NewInt(e.now().Add(e.txDeadline).Unix())
	data, err := dex.PackBuy(minOut, e.base, common.HexToAddress(sess.TokenAddress), signer, deadline)
	if err != nil {
		return failure(fmt.Errorf("encode swap: %w", err), "")
	}
	req := chain.TxRequest{
		To:       venue.Router,
		Value:    sess.BuyAmount,
		Data:     data,
		GasLimit: e.gasLimit,
	}

	if gas, err := e.chain.EstimateGas(ctx, req); err != nil {
		log.Warn("Gas estimation failed, using limit", zap.Uint64("gas_limit", e.gasLimit), zap.Error(err))
	} else {
		log.Debug("Gas estimated", zap.Uint64("gas", gas), zap.Uint64("gas_limit", e.gasLimit))
	}

	if _, ok := e.live(id); !ok {
		return failure(ErrSessionStopped, "")
	}
	hash, err := e.chain.SendTransaction(ctx, req)
	if err != nil {
		return failure(e.chainErr("submit swap", err), "")
	}
	txHash := hash.Hex()
	e.store.Update(id, func(s *session.Session) { s.TxHash = txHash })
	log.Info("Swap submitted",
		zap.String("tx", logger.ShortenHash(txHash)),
		zap.String("router", venue.Router.Hex()),
		zap.Stringer("min_out", minOut))
	logger.Logf(e.journal, logger.LevelInfo, id, "Transaction submitted: %s", txHash)

	receipt, err := e.chain.WaitReceipt(ctx, hash)
	if err != nil {
		return failure(e.chainErr("await receipt", err), txHash)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return failure(ErrTransactionReverted, txHash)
	}
	return success(receipt)
}

func (e *Engine) chainErr(op string, err error) error {
	if errors.Is(err, chain.ErrNoSigner) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrChainUnavailable, op, err)
}

// openPosition records what the buy acquired and starts price tracking on
// the venue it executed on. Failures here leave the buy intact.
func (e *Engine) openPosition(ctx context.Context, id string, probe liquidity.Result) {
	sess, ok := e.store.Get(id)
	if !ok {
		return
	}
	signer, _ := e.chain.Signer()
	token := common.HexToAddress(sess.TokenAddress)
	log := e.logger.With(zap.String("session_id", id))

	tokens, err := e.reader.BalanceOf(ctx, token, signer)
	if err != nil {
		log.Warn("Failed to read token balance after buy", zap.Error(err))
		return
	}
	decimals, err := e.reader.Decimals(ctx, token)
	if err != nil {
		log.Warn("Failed to read token decimals", zap.Error(err))
		return
	}

	var entry decimal.Decimal
	if probe.Reserves != nil {
		if token0, err := e.reader.Token0(ctx, probe.Pair); err == nil {
			entry, _ = dex.SpotPrice(*probe.Reserves, token0, token, decimals, 18)
		}
	}

	e.store.Update(id, func(s *session.Session) {
		s.PositionTokens = tokens
		s.TokenDecimals = decimals
		s.EntryPrice = entry
		s.LastPrice = entry
	})
	log.Info("Position opened",
		zap.Stringer("tokens", tokens),
		zap.String("entry_price", entry.String()))

	if _, live := e.live(id); !live || e.monitor == nil {
		return
	}
	if err := e.monitor.StartMonitoringOn(probe.DexID, sess.TokenAddress, id, e.onPrice(id, sess.TokenAddress)); err != nil {
		log.Warn("Failed to start price monitoring", zap.Error(err))
	}
}

func (e *Engine) onPrice(id, token string) func(decimal.Decimal) {
	return func(price decimal.Decimal) {
		var entry decimal.Decimal
		e.store.Update(id, func(s *session.Session) {
			s.LastPrice = price
			if s.EntryPrice.IsZero() {
				s.EntryPrice = price
			}
			entry = s.EntryPrice
		})
		if e.alerts != nil {
			e.alerts.Check(id, token, entry, price)
		}
	}
}
