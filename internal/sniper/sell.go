// internal/sniper/sell.go
package sniper

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/base-sniper/internal/chain"
	"github.com/rovshanmuradov/base-sniper/internal/dex"
	"github.com/rovshanmuradov/base-sniper/internal/events"
	"github.com/rovshanmuradov/base-sniper/internal/ledger"
	"github.com/rovshanmuradov/base-sniper/internal/logger"
	"github.com/rovshanmuradov/base-sniper/internal/session"
)

// SellPosition swaps the session's whole token balance back to the base
// asset, records the round trip in the ledger and stops the session.
func (e *Engine) SellPosition(ctx context.Context, id string) (ExecutionResult, error) {
	sess, ok := e.store.Get(id)
	if !ok {
		return ExecutionResult{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !sess.HasPosition() {
		return ExecutionResult{}, ErrNoPosition
	}
	if _, ok := e.chain.Signer(); !ok {
		return failure(ErrNoSigner, ""), ErrNoSigner
	}

	e.inflight.Add(1)
	defer e.inflight.Done()

	start := time.Now()
	result, trade := e.sell(ctx, sess)
	e.metrics.Record(time.Since(start), result.Success, result.GasUsed)
	e.publish(events.ExecutionFinishedEvent{
		BaseEvent: events.NewBase(events.ExecutionFinished),
		SessionID: id,
		Operation: "sell",
		Success:   result.Success,
		TxHash:    result.TxHash,
		Error:     result.Error,
	})

	log := e.logger.With(zap.String("session_id", id))
	if !result.Success {
		log.Error("Sell failed", zap.String("tx", result.TxHash), zap.Error(result.Err))
		logger.Logf(e.journal, logger.LevelError, id, "Sell failed: %s", result.Error)
		return result, result.Err
	}

	recorded, err := e.ledger.Add(trade)
	if err != nil {
		log.Warn("Trade not recorded", zap.Error(err))
	} else {
		logger.Logf(e.journal, logger.LevelSuccess, id, "Sold %s %s, profit %s ETH",
			recorded.Amount.String(), recorded.TokenSymbol, recorded.Profit.StringFixed(8))
	}

	e.store.Update(id, func(s *session.Session) {
		s.SellTxHash = result.TxHash
		s.PositionTokens = new(big.Int)
	})
	if prev, ok := e.store.Stop(id); ok && prev != session.StatusStopped {
		e.publish(events.SessionStoppedEvent{
			BaseEvent: events.NewBase(events.SessionStopped),
			SessionID: id,
			Reason:    "sold",
		})
	}
	e.teardown(id)
	return result, nil
}

func (e *Engine) sell(ctx context.Context, sess session.Session) (ExecutionResult, ledger.Trade) {
	signer, _ := e.chain.Signer()
	token := common.HexToAddress(sess.TokenAddress)
	log := e.logger.With(zap.String("session_id", sess.ID))

	venue, ok := e.venues.Get(sess.Venue)
	if !ok {
		return failure(fmt.Errorf("no router for venue %q", sess.Venue), ""), ledger.Trade{}
	}

	tokens, err := e.reader.BalanceOf(ctx, token, signer)
	if err != nil {
		return failure(e.chainErr("read token balance", err), ""), ledger.Trade{}
	}
	if tokens.Sign() <= 0 {
		return failure(ErrNoPosition, ""), ledger.Trade{}
	}

	price := e.exitPrice(sess)

	approve, err := dex.PackApprove(venue.Router, tokens)
	if err != nil {
		return failure(fmt.Errorf("encode approve: %w", err), ""), ledger.Trade{}
	}
	if res := e.submit(ctx, chain.TxRequest{To: token, Data: approve, GasLimit: e.gasLimit}); !res.Success {
		return res, ledger.Trade{}
	}
	log.Debug("Router approved", zap.String("router", venue.Router.Hex()), zap.Stringer("tokens", tokens))

	minOut := dex.MinETHForTokens(tokens, sess.TokenDecimals, price, sess.SlippageBps)
	deadline := big.NewInt(e.now().Add(e.txDeadline).Unix())
	data, err := dex.PackSell(tokens, minOut, token, e.base, signer, deadline)
	if err != nil {
		return failure(fmt.Errorf("encode swap: %w", err), ""), ledger.Trade{}
	}
	res := e.submit(ctx, chain.TxRequest{To: venue.Router, Data: data, GasLimit: e.gasLimit})
	if !res.Success {
		return res, ledger.Trade{}
	}

	return res, ledger.Trade{
		TokenAddress: sess.TokenAddress,
		TokenSymbol:  e.symbol(ctx, token),
		BuyPrice:     sess.EntryPrice,
		SellPrice:    price,
		Amount:       decimal.NewFromBigInt(tokens, -int32(sess.TokenDecimals)),
		TxHash:       res.TxHash,
	}
}

// submit sends one transaction and waits for it to be mined.
func (e *Engine) submit(ctx context.Context, req chain.TxRequest) ExecutionResult {
	hash, err := e.chain.SendTransaction(ctx, req)
	if err != nil {
		return failure(e.chainErr("submit", err), "")
	}
	receipt, err := e.chain.WaitReceipt(ctx, hash)
	if err != nil {
		return failure(e.chainErr("await receipt", err), hash.Hex())
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return failure(ErrTransactionReverted, hash.Hex())
	}
	return success(receipt)
}

func (e *Engine) exitPrice(sess session.Session) decimal.Decimal {
	if sess.LastPrice.IsPositive() {
		return sess.LastPrice
	}
	if e.monitor != nil {
		if p, ok := e.monitor.LastPrice(sess.TokenAddress); ok {
			return p
		}
	}
	return sess.EntryPrice
}

func (e *Engine) symbol(ctx context.Context, token common.Address) string {
	sym, err := e.reader.Symbol(ctx, token)
	if err != nil {
		return "UNKNOWN"
	}
	sym = strings.Map(func(r rune) rune {
		if strings.ContainsRune(",\"\r\n", r) {
			return -1
		}
		return r
	}, strings.TrimSpace(sym))
	if sym == "" {
		return "UNKNOWN"
	}
	return sym
}
