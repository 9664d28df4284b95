// internal/chain/eth.go
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Observer receives the latency of every RPC call.
type Observer interface {
	ObserveRPC(method string, d time.Duration)
}

// Options configures an EthClient.
type Options struct {
	Endpoints []string
	ChainID   *big.Int
	// PrivateKey is a hex encoded secp256k1 key; empty means read-only.
	PrivateKey string

	RateLimit      float64 // requests per second, <= 0 disables limiting
	Retries        int
	RetryDelay     time.Duration
	ConfirmTimeout time.Duration
	ReceiptPoll    time.Duration

	Observer Observer
}

type node struct {
	url    string
	client *ethclient.Client
}

// EthClient implements Client over one or more JSON-RPC endpoints. Reads are
// rate limited, retried with exponential backoff and fail over to the next
// endpoint on transport errors.
type EthClient struct {
	nodes   []node
	mu      sync.Mutex
	current int

	limiter  *rate.Limiter
	logger   *zap.Logger
	observer Observer
	opts     Options

	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int

	sendMu     sync.Mutex
	nonce      uint64
	nonceKnown bool
}

// Dial connects to every endpoint that accepts a connection.
func Dial(ctx context.Context, opts Options, logger *zap.Logger) (*EthClient, error) {
	logger = logger.Named("chain")

	var nodes []node
	for _, url := range opts.Endpoints {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			logger.Warn("Failed to dial RPC endpoint", zap.String("url", url), zap.Error(err))
			continue
		}
		nodes = append(nodes, node{url: url, client: client})
	}
	if len(nodes) == 0 {
		return nil, ErrNoEndpoints
	}

	c, err := newEthClient(nodes, opts, logger)
	if err != nil {
		for _, n := range nodes {
			n.client.Close()
		}
		return nil, err
	}

	logger.Info("Chain client ready",
		zap.Int("endpoints", len(nodes)),
		zap.Bool("signer", c.key != nil),
		zap.String("from", c.from.Hex()))
	return c, nil
}

func newEthClient(nodes []node, opts Options, logger *zap.Logger) (*EthClient, error) {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 200 * time.Millisecond
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 2 * time.Minute
	}
	if opts.ReceiptPoll <= 0 {
		opts.ReceiptPoll = time.Second
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := int(opts.RateLimit)
	if burst < 1 {
		burst = 1
	}

	c := &EthClient{
		nodes:    nodes,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
		observer: opts.Observer,
		opts:     opts,
		chainID:  opts.ChainID,
	}

	if opts.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(opts.PrivateKey), "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return c, nil
}

// Close releases every endpoint connection.
func (c *EthClient) Close() {
	for _, n := range c.nodes {
		n.client.Close()
	}
}

// Signer implements Client.
func (c *EthClient) Signer() (common.Address, bool) {
	return c.from, c.key != nil
}

func (c *EthClient) node() node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodes[c.current]
}

// rotate moves to the next endpoint after a transport failure on failed.
func (c *EthClient) rotate(failed string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.nodes) > 1 && c.nodes[c.current].url == failed {
		c.current = (c.current + 1) % len(c.nodes)
		c.logger.Debug("Switched RPC endpoint", zap.String("url", c.nodes[c.current].url))
	}
}

func (c *EthClient) observe(method string, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveRPC(method, time.Since(start))
	}
}

// permanent reports errors that retrying cannot fix: the node answered with
// a JSON-RPC error, the object does not exist, or the caller gave up.
func permanent(err error) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr) ||
		errors.Is(err, ethereum.NotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// read runs fn against the current endpoint with rate limiting and retries.
func read[T any](ctx context.Context, c *EthClient, method string, fn func(*ethclient.Client) (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.RetryDelay
	policy.MaxInterval = c.opts.RetryDelay * 10

	op := func() (T, error) {
		var zero T
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, backoff.Permanent(err)
		}
		n := c.node()
		start := time.Now()
		out, err := fn(n.client)
		c.observe(method, start)
		if err == nil {
			return out, nil
		}
		wrapped := NewError(err, n.url, method)
		if permanent(err) {
			return zero, backoff.Permanent(wrapped)
		}
		c.rotate(n.url)
		return zero, wrapped
	}

	notify := func(err error, d time.Duration) {
		c.logger.Debug("Retrying RPC call", zap.String("method", method), zap.Duration("backoff", d), zap.Error(err))
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.opts.Retries+1)),
		backoff.WithNotify(notify))
}

// BlockNumber implements Client.
func (c *EthClient) BlockNumber(ctx context.Context) (uint64, error) {
	return read(ctx, c, "eth_blockNumber", func(ec *ethclient.Client) (uint64, error) {
		return ec.BlockNumber(ctx)
	})
}

// ChainID implements Client.
func (c *EthClient) ChainID(ctx context.Context) (*big.Int, error) {
	return read(ctx, c, "eth_chainId", func(ec *ethclient.Client) (*big.Int, error) {
		return ec.ChainID(ctx)
	})
}

// BalanceAt implements Client.
func (c *EthClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return read(ctx, c, "eth_getBalance", func(ec *ethclient.Client) (*big.Int, error) {
		return ec.BalanceAt(ctx, account, nil)
	})
}

// CodeAt implements Client.
func (c *EthClient) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return read(ctx, c, "eth_getCode", func(ec *ethclient.Client) ([]byte, error) {
		return ec.CodeAt(ctx, account, nil)
	})
}

// CallContract implements Client and dex.Caller.
func (c *EthClient) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: data}
	return read(ctx, c, "eth_call", func(ec *ethclient.Client) ([]byte, error) {
		return ec.CallContract(ctx, msg, nil)
	})
}

// EstimateGas implements Client.
func (c *EthClient) EstimateGas(ctx context.Context, req TxRequest) (uint64, error) {
	msg := ethereum.CallMsg{From: c.from, To: &req.To, Value: req.Value, Data: req.Data}
	return read(ctx, c, "eth_estimateGas", func(ec *ethclient.Client) (uint64, error) {
		return ec.EstimateGas(ctx, msg)
	})
}

// SendTransaction implements Client. Nonces are tracked locally under
// sendMu and re-read from the node after any failed submission.
func (c *EthClient) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	if c.key == nil {
		return common.Hash{}, ErrNoSigner
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.chainID == nil {
		id, err := c.ChainID(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to get chain id: %w", err)
		}
		c.chainID = id
	}

	if !c.nonceKnown {
		nonce, err := read(ctx, c, "eth_getTransactionCount", func(ec *ethclient.Client) (uint64, error) {
			return ec.PendingNonceAt(ctx, c.from)
		})
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
		}
		c.nonce = nonce
		c.nonceKnown = true
	}

	gasPrice, err := read(ctx, c, "eth_gasPrice", func(ec *ethclient.Client) (*big.Int, error) {
		return ec.SuggestGasPrice(ctx)
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	to := req.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    c.nonce,
		GasPrice: gasPrice,
		Gas:      req.GasLimit,
		To:       &to,
		Value:    value,
		Data:     req.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return common.Hash{}, err
	}
	n := c.node()
	start := time.Now()
	err = n.client.SendTransaction(ctx, signed)
	c.observe("eth_sendRawTransaction", start)
	if err != nil {
		c.nonceKnown = false
		if !permanent(err) {
			c.rotate(n.url)
		}
		return common.Hash{}, NewError(err, n.url, "eth_sendRawTransaction")
	}

	c.nonce++
	c.logger.Debug("Transaction submitted",
		zap.String("hash", signed.Hash().Hex()),
		zap.Uint64("nonce", signed.Nonce()))
	return signed.Hash(), nil
}

// WaitReceipt implements Client by polling for the receipt.
func (c *EthClient) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	op := func() (*types.Receipt, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		n := c.node()
		start := time.Now()
		receipt, err := n.client.TransactionReceipt(ctx, hash)
		c.observe("eth_getTransactionReceipt", start)
		if err != nil {
			if !errors.Is(err, ethereum.NotFound) && !permanent(err) {
				c.rotate(n.url)
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return receipt, nil
	}

	receipt, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.opts.ReceiptPoll)),
		backoff.WithMaxElapsedTime(c.opts.ConfirmTimeout))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, hash.Hex())
		}
		return nil, err
	}
	return receipt, nil
}
