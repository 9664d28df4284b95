package sniper

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/base-sniper/internal/dex"
	"github.com/rovshanmuradov/base-sniper/internal/session"
)

var tenthETH = decimal.RequireFromString("0.1")

func waitStatus(t *testing.T, e *Engine, id string, want session.Status) session.Session {
	t.Helper()
	var sess session.Session
	require.Eventually(t, func() bool {
		sess, _ = e.GetSessionStatus(id)
		return sess.Status == want
	}, 2*time.Second, 5*time.Millisecond, "session never reached %s", want)
	return sess
}

func TestStartWithLiquidityExecutesImmediately(t *testing.T) {
	env := newTestEnv(t, true)

	id, err := env.engine.StartSniping(context.Background(), token.Hex(), tenthETH, 300)
	require.NoError(t, err)

	sess, ok := env.engine.GetSessionStatus(id)
	require.True(t, ok)
	assert.Equal(t, session.StatusActive, sess.Status)
	assert.NotEmpty(t, sess.TxHash)
	assert.Equal(t, "uniswap_v2", sess.Venue)
	assert.Zero(t, sess.Checks)
	assert.False(t, env.engine.scheduler.Has(id))
	assert.Zero(t, env.engine.scheduler.Len())

	txs := env.chain.transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, router1, txs[0].To)
	assert.Equal(t, ether(1).Div(ether(1), big.NewInt(10)).String(), txs[0].Value.String())
	assert.Equal(t, uint64(DefaultGasLimit), txs[0].GasLimit)

	assert.Equal(t, ether(1000).String(), sess.PositionTokens.String())
	assert.Equal(t, "0.001", sess.EntryPrice.String())
	assert.True(t, sess.HasPosition())
}

func TestStartWithoutLiquiditySchedulesOneTimer(t *testing.T) {
	env := newTestEnv(t, false)

	id, err := env.engine.StartSniping(context.Background(), token.Hex(), tenthETH, 300)
	require.NoError(t, err)

	sess, _ := env.engine.GetSessionStatus(id)
	assert.Equal(t, session.StatusMonitoring, sess.Status)
	assert.True(t, env.engine.scheduler.Has(id))
	assert.Equal(t, 1, env.engine.scheduler.Len())
	assert.Empty(t, env.chain.transactions())

	env.pool.setLiquid(true)
	sess = waitStatus(t, env.engine, id, session.StatusActive)
	require.Eventually(t, func() bool {
		s, _ := env.engine.GetSessionStatus(id)
		return s.TxHash != ""
	}, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return env.engine.scheduler.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Len(t, env.chain.transactions(), 1)
	assert.GreaterOrEqual(t, sess.Checks, 1)
}

func TestStopBeforeDetectionPreventsExecution(t *testing.T) {
	env := newTestEnv(t, false)

	id, err := env.engine.StartSniping(context.Background(), token.Hex(), tenthETH, 300)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.pool.probes.Load() >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, env.engine.StopSniping(id))
	assert.False(t, env.engine.scheduler.Has(id))

	env.pool.setLiquid(true)
	time.Sleep(50 * time.Millisecond)

	sess, _ := env.engine.GetSessionStatus(id)
	assert.Equal(t, session.StatusStopped, sess.Status)
	assert.Empty(t, sess.TxHash)
	assert.Empty(t, env.chain.transactions())
}

func TestStopDuringInFlightLookupPreventsExecution(t *testing.T) {
	env := newTestEnv(t, false)

	id, err := env.engine.StartSniping(context.Background(), token.Hex(), tenthETH, 300)
	require.NoError(t, err)
	waitStatus(t, env.engine, id, session.StatusMonitoring)

	entered, release := env.pool.hold()
	t.Cleanup(release)
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("poll never reached the pool reader")
	}

	require.NoError(t, env.engine.StopSniping(id))
	env.pool.setLiquid(true)
	release()

	assert.Eventually(t, func() bool { return env.engine.scheduler.Len() == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	sess, _ := env.engine.GetSessionStatus(id)
	assert.Equal(t, session.StatusStopped, sess.Status)
	assert.Empty(t, sess.TxHash)
	assert.Empty(t, env.chain.transactions())
	assert.Zero(t, env.chain.balanceCalls)
	assert.Zero(t, env.sink.count("Liquidity detected"))
}

func TestStopBeforeSubmissionIsNotAFailedExecution(t *testing.T) {
	env := newTestEnv(t, true)
	env.chain.onBalance = func() {
		for _, s := range env.engine.GetAllSessions() {
			_ = env.engine.StopSniping(s.ID)
		}
	}

	id, err := env.engine.StartSniping(context.Background(), token.Hex(), tenthETH, 300)
	require.NoError(t, err)

	sess, _ := env.engine.GetSessionStatus(id)
	assert.Equal(t, session.StatusStopped, sess.Status)
	assert.Empty(t, sess.Error)
	assert.Empty(t, sess.TxHash)
	assert.Empty(t, env.chain.transactions())

	m := env.engine.GetMetrics()
	assert.Zero(t, m.TotalExecutions)
	assert.Zero(t, m.Failed)
	assert.Zero(t, env.sink.count("Buy failed"))
	assert.Equal(t, 1, env.sink.count("Buy cancelled"))
}

func TestStopIsIdempotent(t *testing.T) {
	env := newTestEnv(t, false)

	id, err := env.engine.StartSniping(context.Background(), token.Hex(), tenthETH, 300)
	require.NoError(t, err)

	require.NoError(t, env.engine.StopSniping(id))
	require.NoError(t, env.engine.StopSniping(id))
	assert.Equal(t, 1, env.sink.count("Sniping stopped"))

	sess, _ := env.engine.GetSessionStatus(id)
	assert.Equal(t, session.StatusStopped, sess.Status)
	assert.Empty(t, env.engine.GetActiveSessions())
	assert.Len(t, env.engine.GetAllSessions(), 1)
}

func TestStopUnknownSessionIsNoop(t *testing.T) {
	env := newTestEnv(t, false)
	assert.NoError(t, env.engine.StopSniping("session-missing"))
	_, ok := env.engine.GetSessionStatus("session-missing")
	assert.False(t, ok)
}

func TestExecutionWithoutSigner(t *testing.T) {
	env := newTestEnv(t, true)
	env.chain.hasSigner = false

	id, err := env.engine.StartSniping(context.Background(), token.Hex(), tenthETH, 300)
	require.NoError(t, err)

	sess, _ := env.engine.GetSessionStatus(id)
	assert.Equal(t, session.StatusError, sess.Status)
	assert.Equal(t, "no signer configured", sess.Error)
	assert.Zero(t, env.chain.balanceCalls)
	assert.Empty(t, env.chain.transactions())
}

func TestExecutionInsufficientBalance(t *testing.T) {
	env := newTestEnv(t, true)
	env.chain.balance = big.NewInt(1000)

	id, err := env.engine.StartSniping(context.Background(), token.Hex(), tenthETH, 300)
	require.NoError(t, err)

	sess, _ := env.engine.GetSessionStatus(id)
	assert.Equal(t, session.StatusError, sess.Status)
	assert.Contains(t, sess.Error, "insufficient balance")
	assert.Empty(t, env.chain.transactions())
}

func TestExecutionReverted(t *testing.T) {
	env := newTestEnv(t, true)
	env.chain.receiptStatus = types.ReceiptStatusFailed

	id, err := env.engine.StartSniping(context.Background(), token.Hex(), tenthETH, 300)
	require.NoError(t, err)

	sess, _ := env.engine.GetSessionStatus(id)
	assert.Equal(t, session.StatusError, sess.Status)
	assert.Equal(t, "transaction reverted", sess.Error)
	assert.NotEmpty(t, sess.TxHash)
	assert.False(t, sess.HasPosition())

	m := env.engine.GetMetrics()
	assert.Equal(t, 1, m.TotalExecutions)
	assert.Equal(t, 1, m.Failed)
}

func TestExecutionSubmitFailure(t *testing.T) {
	env := newTestEnv(t, true)
	env.chain.sendErr = errors.New("nonce too low")

	id, err := env.engine.StartSniping(context.Background(), token.Hex(), tenthETH, 300)
	require.NoError(t, err)

	sess, _ := env.engine.GetSessionStatus(id)
	assert.Equal(t, session.StatusError, sess.Status)
	assert.Contains(t, sess.Error, "nonce too low")
	assert.Empty(t, sess.TxHash)
}

func TestGasEstimateFailureIsNonFatal(t *testing.T) {
	env := newTestEnv(t, true)
	env.chain.estimateErr = errors.New("execution reverted")

	id, err := env.engine.StartSniping(context.Background(), token.Hex(), tenthETH, 300)
	require.NoError(t, err)

	sess, _ := env.engine.GetSessionStatus(id)
	assert.Equal(t, session.StatusActive, sess.Status)
	assert.Len(t, env.chain.transactions(), 1)
	assert.Equal(t, 1, env.engine.GetMetrics().Successful)
}

func TestSwapCalldataCarriesMinimumOutput(t *testing.T) {
	env := newTestEnv(t, true)
	now := time.Unix(1_700_000_000, 0)
	env.engine.now = func() time.Time { return now }

	_, err := env.engine.StartSniping(context.Background(), token.Hex(), tenthETH, 300)
	require.NoError(t, err)

	txs := env.chain.transactions()
	require.Len(t, txs, 1)
	method, err := dex.RouterABI.MethodById(txs[0].Data[:4])
	require.NoError(t, err)
	assert.Equal(t, "swapExactETHForTokens", method.Name)

	args, err := method.Inputs.Unpack(txs[0].Data[4:])
	require.NoError(t, err)
	require.Len(t, args, 4)

	amount := new(big.Int).Div(ether(1), big.NewInt(10))
	want := new(big.Int).Div(new(big.Int).Mul(amount, big.NewInt(9700)), big.NewInt(10000))
	assert.Equal(t, want.String(), args[0].(*big.Int).String())
	assert.Equal(t, []common.Address{weth, token}, args[1].([]common.Address))
	assert.Equal(t, signer, args[2].(common.Address))
	assert.Equal(t, now.Add(DefaultTxDeadline).Unix(), args[3].(*big.Int).Int64())
}

func TestStartRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		amount   decimal.Decimal
		slippage int
	}{
		{"empty token", "", tenthETH, 100},
		{"short token", "0x1234", tenthETH, 100},
		{"not hex", "0xZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZ", tenthETH, 100},
		{"zero amount", token.Hex(), decimal.Zero, 100},
		{"negative amount", token.Hex(), decimal.NewFromInt(-1), 100},
		{"dust amount", token.Hex(), decimal.RequireFromString("0.0000000000000000001"), 100},
		{"over limit", token.Hex(), decimal.NewFromInt(11), 100},
		{"negative slippage", token.Hex(), tenthETH, -1},
		{"slippage too high", token.Hex(), tenthETH, 5001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, true)
			id, err := env.engine.StartSniping(context.Background(), tt.token, tt.amount, tt.slippage)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Empty(t, id)
			assert.Empty(t, env.engine.GetAllSessions())
			assert.Zero(t, env.pool.probes.Load())
		})
	}
}

func TestStartAcceptsBoundarySlippage(t *testing.T) {
	for _, bps := range []int{0, MaxSlippageBps} {
		env := newTestEnv(t, false)
		_, err := env.engine.StartSniping(context.Background(), token.Hex(), tenthETH, bps)
		assert.NoError(t, err)
	}
}

func TestPollLogsEveryFifthCheck(t *testing.T) {
	env := newTestEnv(t, false)

	id, err := env.engine.StartSniping(context.Background(), token.Hex(), tenthETH, 300)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, _ := env.engine.GetSessionStatus(id)
		return s.Checks >= 11
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, env.engine.StopSniping(id))

	assert.Equal(t, 1, env.sink.count("(check 5)"))
	assert.Equal(t, 1, env.sink.count("(check 10)"))
	assert.Zero(t, env.sink.count("(check 3)"))
}

func TestSessionsAreIndependent(t *testing.T) {
	env := newTestEnv(t, false)

	a, err := env.engine.StartSniping(context.Background(), token.Hex(), tenthETH, 300)
	require.NoError(t, err)
	b, err := env.engine.StartSniping(context.Background(), token.Hex(), tenthETH, 300)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, env.engine.scheduler.Len())

	require.NoError(t, env.engine.StopSniping(a))
	env.pool.setLiquid(true)

	waitStatus(t, env.engine, b, session.StatusActive)
	sa, _ := env.engine.GetSessionStatus(a)
	assert.Equal(t, session.StatusStopped, sa.Status)
	assert.Empty(t, sa.TxHash)
	require.Eventually(t, func() bool { return len(env.chain.transactions()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestShutdownStopsLiveSessions(t *testing.T) {
	env := newTestEnv(t, false)

	id, err := env.engine.StartSniping(context.Background(), token.Hex(), tenthETH, 300)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, env.engine.Shutdown(ctx))

	sess, _ := env.engine.GetSessionStatus(id)
	assert.Equal(t, session.StatusStopped, sess.Status)
	assert.Zero(t, env.engine.scheduler.Len())
}

func TestEvictRemovesOldTerminalSessions(t *testing.T) {
	env := newTestEnv(t, false)

	stopped, err := env.engine.StartSniping(context.Background(), token.Hex(), tenthETH, 300)
	require.NoError(t, err)
	live, err := env.engine.StartSniping(context.Background(), token.Hex(), tenthETH, 300)
	require.NoError(t, err)
	require.NoError(t, env.engine.StopSniping(stopped))

	time.Sleep(20 * time.Millisecond)
	evicted := env.engine.evict(10 * time.Millisecond)
	assert.Equal(t, []string{stopped}, evicted)

	_, ok := env.engine.GetSessionStatus(stopped)
	assert.False(t, ok)
	_, ok = env.engine.GetSessionStatus(live)
	assert.True(t, ok)
}

func TestDiagnose(t *testing.T) {
	env := newTestEnv(t, true)

	d, err := env.engine.Diagnose(context.Background(), token.Hex())
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), d.BlockNumber)
	assert.Equal(t, int64(8453), d.ChainID.Int64())
	assert.Equal(t, signer.Hex(), d.Signer)
	assert.True(t, d.Liquidity.Exists)
	assert.Equal(t, "uniswap_v2", d.Liquidity.DexID)
	assert.Empty(t, env.engine.GetAllSessions())

	_, err = env.engine.Diagnose(context.Background(), "0x12")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
