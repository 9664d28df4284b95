package sniper

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/base-sniper/internal/chain"
	"github.com/rovshanmuradov/base-sniper/internal/dex"
	"github.com/rovshanmuradov/base-sniper/internal/events"
	"github.com/rovshanmuradov/base-sniper/internal/liquidity"
	"github.com/rovshanmuradov/base-sniper/internal/logger"
	"github.com/rovshanmuradov/base-sniper/internal/monitor"
)

var (
	weth     = common.HexToAddress("0x4200000000000000000000000000000000000006")
	token    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	signer   = common.HexToAddress("0x000000000000000000000000000000000000bEEF")
	factory1 = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	factory2 = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	router1  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	router2  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	pair1    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// fakeChain records submissions and mines them with a configurable status.
type fakeChain struct {
	mu            sync.Mutex
	hasSigner     bool
	balance       *big.Int
	estimateErr   error
	sendErr       error
	receiptStatus uint64
	sent          []chain.TxRequest
	balanceCalls  int
	onBalance     func() // runs outside the lock on every BalanceAt
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		hasSigner:     true,
		balance:       ether(10),
		receiptStatus: types.ReceiptStatusSuccessful,
	}
}

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) { return 1234, nil }

func (f *fakeChain) ChainID(context.Context) (*big.Int, error) { return big.NewInt(8453), nil }

func (f *fakeChain) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	f.mu.Lock()
	f.balanceCalls++
	balance := new(big.Int).Set(f.balance)
	hook := f.onBalance
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return balance, nil
}

func (f *fakeChain) CodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

func (f *fakeChain) CallContract(context.Context, common.Address, []byte) ([]byte, error) {
	return nil, errors.New("not supported")
}

func (f *fakeChain) EstimateGas(context.Context, chain.TxRequest) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 150000, nil
}

func (f *fakeChain) SendTransaction(_ context.Context, req chain.TxRequest) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hasSigner {
		return common.Hash{}, chain.ErrNoSigner
	}
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.sent = append(f.sent, req)
	return common.BigToHash(big.NewInt(int64(len(f.sent)))), nil
}

func (f *fakeChain) WaitReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &types.Receipt{
		Status:            f.receiptStatus,
		TxHash:            hash,
		GasUsed:           120000,
		EffectiveGasPrice: big.NewInt(1_000_000_000),
	}, nil
}

func (f *fakeChain) Signer() (common.Address, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return signer, f.hasSigner
}

func (f *fakeChain) transactions() []chain.TxRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chain.TxRequest(nil), f.sent...)
}

// fakePool serves one token/WETH pair on the first venue, token as token0.
type fakePool struct {
	mu       sync.Mutex
	liquid   bool
	reserves dex.Reserves
	probes   atomic.Int32

	// while gate is set, first-venue lookups signal entered and wait for it
	gate    chan struct{}
	entered chan struct{}
}

func newFakePool(liquid bool) *fakePool {
	return &fakePool{
		liquid:   liquid,
		reserves: dex.Reserves{Reserve0: ether(1000), Reserve1: ether(1)},
	}
}

func (p *fakePool) setLiquid(v bool) {
	p.mu.Lock()
	p.liquid = v
	p.mu.Unlock()
}

func (p *fakePool) setReserves(r0, r1 *big.Int) {
	p.mu.Lock()
	p.reserves = dex.Reserves{Reserve0: r0, Reserve1: r1}
	p.mu.Unlock()
}

// hold parks the next first-venue lookup until release is called.
func (p *fakePool) hold() (entered <-chan struct{}, release func()) {
	gate := make(chan struct{})
	in := make(chan struct{}, 1)
	p.mu.Lock()
	p.gate, p.entered = gate, in
	p.mu.Unlock()

	var once sync.Once
	return in, func() {
		once.Do(func() {
			p.mu.Lock()
			p.gate, p.entered = nil, nil
			p.mu.Unlock()
			close(gate)
		})
	}
}

func (p *fakePool) GetPair(_ context.Context, factory, _, _ common.Address) (common.Address, error) {
	if factory == factory1 {
		p.probes.Add(1)
		p.mu.Lock()
		gate, entered := p.gate, p.entered
		p.mu.Unlock()
		if gate != nil {
			select {
			case entered <- struct{}{}:
			default:
			}
			select {
			case <-gate:
			case <-time.After(2 * time.Second):
			}
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if factory != factory1 || !p.liquid {
		return common.Address{}, nil
	}
	return pair1, nil
}

func (p *fakePool) GetReserves(context.Context, common.Address) (dex.Reserves, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return dex.Reserves{
		Reserve0: new(big.Int).Set(p.reserves.Reserve0),
		Reserve1: new(big.Int).Set(p.reserves.Reserve1),
	}, nil
}

func (p *fakePool) Token0(context.Context, common.Address) (common.Address, error) {
	return token, nil
}

func (p *fakePool) BalanceOf(context.Context, common.Address, common.Address) (*big.Int, error) {
	return ether(1000), nil
}

func (p *fakePool) Decimals(context.Context, common.Address) (uint8, error) { return 18, nil }

func (p *fakePool) Symbol(context.Context, common.Address) (string, error) { return "TKN", nil }

func (p *fakePool) TotalSupply(context.Context, common.Address) (*big.Int, error) {
	return ether(1_000_000), nil
}

func (p *fakePool) Owner(context.Context, common.Address) (common.Address, error) {
	return common.Address{}, nil
}

// memorySink collects journal lines.
type memorySink struct {
	mu    sync.Mutex
	lines []string
}

func (s *memorySink) Log(level logger.Level, sessionID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, string(level)+" "+message)
}

func (s *memorySink) count(substr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.lines {
		if strings.Contains(l, substr) {
			n++
		}
	}
	return n
}

type testEnv struct {
	engine *Engine
	chain  *fakeChain
	pool   *fakePool
	sink   *memorySink
	bus    *events.Bus
}

func newTestEnv(t *testing.T, liquid bool) *testEnv {
	t.Helper()
	log := zaptest.NewLogger(t)
	venues, err := dex.NewRegistry([]dex.Venue{
		{ID: "uniswap_v2", Name: "Uniswap V2", Factory: factory1, Router: router1},
		{ID: "sushiswap_v2", Name: "SushiSwap V2", Factory: factory2, Router: router2},
	})
	require.NoError(t, err)

	ch := newFakeChain()
	pool := newFakePool(liquid)
	sink := &memorySink{}
	bus := events.NewBus(log, 256)

	engine, err := New(Config{
		Chain:  ch,
		Reader: pool,
		Detector: liquidity.NewDetector(liquidity.Config{
			Reader: pool,
			Venues: venues,
			Base:   weth,
			Logger: log,
			Sink:   sink,
		}),
		Venues: venues,
		Monitor: monitor.New(monitor.Config{
			Reader:   pool,
			Venues:   venues,
			Base:     weth,
			Interval: 10 * time.Millisecond,
			Bus:      bus,
			Logger:   log,
		}),
		Bus:          bus,
		Journal:      sink,
		Logger:       log,
		BaseToken:    weth,
		PollInterval: 10 * time.Millisecond,
		MaxBuy:       decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = engine.Shutdown(ctx)
		_ = bus.Shutdown(ctx)
	})
	return &testEnv{engine: engine, chain: ch, pool: pool, sink: sink, bus: bus}
}
