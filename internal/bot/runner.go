// internal/bot/runner.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/base-sniper/internal/chain"
	"github.com/rovshanmuradov/base-sniper/internal/config"
	"github.com/rovshanmuradov/base-sniper/internal/dex"
	"github.com/rovshanmuradov/base-sniper/internal/events"
	"github.com/rovshanmuradov/base-sniper/internal/liquidity"
	"github.com/rovshanmuradov/base-sniper/internal/logger"
	"github.com/rovshanmuradov/base-sniper/internal/metrics"
	"github.com/rovshanmuradov/base-sniper/internal/monitor"
	"github.com/rovshanmuradov/base-sniper/internal/report"
	"github.com/rovshanmuradov/base-sniper/internal/security"
	"github.com/rovshanmuradov/base-sniper/internal/session"
	"github.com/rovshanmuradov/base-sniper/internal/sniper"
)

const (
	journalSize        = 2000
	journalSessionSize = 500
	janitorInterval    = time.Minute
	reportLines        = 20
)

// Job is one command-line run.
type Job struct {
	Token       string
	Amount      decimal.Decimal
	SlippageBps int
	Diagnose    bool // check connectivity and liquidity, then exit
	SellOnExit  bool // sell an open position when interrupted
	Export      bool // write the trade ledger to cfg.ExportDir on exit
}

// Runner wires the engine and its services from configuration.
type Runner struct {
	cfg       *config.Config
	logger    *zap.Logger
	registry  *prometheus.Registry
	collector *metrics.Collector
	journal   *logger.Journal
	bus       *events.Bus
	engine    *sniper.Engine
	shutdown  *ShutdownHandler
	renderer  *report.Renderer
	out       io.Writer
}

// NewRunner creates a runner for cfg.
func NewRunner(cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	registry := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	return &Runner{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		collector: collector,
		shutdown:  NewShutdownHandler(logger),
		renderer:  report.NewRenderer(),
		out:       os.Stdout,
	}, nil
}

// Initialize dials the configured RPC endpoints and builds the engine.
func (r *Runner) Initialize(ctx context.Context) error {
	r.logger.Info("Connecting to RPC endpoints", zap.Strings("rpc", r.cfg.GetMaskedRPCList()))

	client, err := chain.Dial(ctx, chain.Options{
		Endpoints:      r.cfg.RPCList,
		ChainID:        big.NewInt(r.cfg.ChainID),
		PrivateKey:     r.cfg.PrivateKey,
		RateLimit:      r.cfg.RPCRateLimit,
		Retries:        r.cfg.Retries,
		ConfirmTimeout: r.cfg.ConfirmTimeout,
		Observer:       r.collector,
	}, r.logger)
	if err != nil {
		return fmt.Errorf("dial chain: %w", err)
	}
	r.shutdown.AddFunc("chain", func() error {
		client.Close()
		return nil
	})

	return r.wire(client, dex.NewContractReader(client))
}

// wire builds every service on top of an established chain client.
func (r *Runner) wire(client chain.Client, reader dex.Reader) error {
	cfg := r.cfg

	venues, err := dex.NewRegistry(buildVenues(cfg.Venues))
	if err != nil {
		return fmt.Errorf("venues: %w", err)
	}
	maxBuy, err := decimal.NewFromString(cfg.MaxBuyETH)
	if err != nil {
		return fmt.Errorf("max_buy_eth: %w", err)
	}
	base := common.HexToAddress(cfg.BaseToken)

	r.journal = logger.NewJournal(r.logger, journalSize, journalSessionSize)
	r.bus = events.NewBus(r.logger, cfg.EventBuffer)
	r.shutdown.Add("events", r.bus.Shutdown)

	detector := liquidity.NewDetector(liquidity.Config{
		Reader:   reader,
		Venues:   venues,
		Base:     base,
		Timeout:  cfg.LiquidityTimeout,
		Logger:   r.logger,
		Sink:     r.journal,
		Observer: r.collector,
	})
	prices := monitor.New(monitor.Config{
		Reader:   reader,
		Venues:   venues,
		Base:     base,
		Interval: cfg.PriceInterval,
		Bus:      r.bus,
		Logger:   r.logger,
	})
	alerts := monitor.NewAlertManager(monitor.AlertConfig{
		ProfitTargetPercent: cfg.AlertProfitTargetPct,
		LossLimitPercent:    cfg.AlertLossLimitPct,
		Cooldown:            cfg.AlertCooldown,
	}, r.logger, r.journal)

	r.engine, err = sniper.New(sniper.Config{
		Chain:         client,
		Reader:        reader,
		Detector:      detector,
		Venues:        venues,
		Monitor:       prices,
		Alerts:        alerts,
		Validator:     security.NewValidator(client, reader, cfg.MaxOwnerPercentage, r.logger, r.journal),
		Store:         session.NewStore(),
		Metrics:       metrics.NewTracker(metrics.DefaultWindow, r.collector),
		Bus:           r.bus,
		Journal:       r.journal,
		Logger:        r.logger,
		BaseToken:     base,
		PollInterval:  cfg.PollInterval,
		TxDeadline:    cfg.TxDeadline,
		GasLimit:      cfg.GasLimit,
		MaxBuy:        maxBuy,
		SecurityCheck: cfg.SecurityCheck,
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	r.shutdown.Add("engine", r.engine.Shutdown)

	gauge := func(context.Context, events.Event) error {
		r.collector.SetActiveSessions(len(r.engine.GetActiveSessions()))
		return nil
	}
	for _, t := range []events.EventType{events.SessionStarted, events.ExecutionFinished, events.SessionStopped} {
		r.bus.SubscribeFunc(t, gauge)
	}
	return nil
}

func buildVenues(cfg []config.VenueConfig) []dex.Venue {
	venues := make([]dex.Venue, 0, len(cfg))
	for _, v := range cfg {
		venues = append(venues, dex.Venue{
			ID:      v.ID,
			Name:    v.Name,
			Factory: common.HexToAddress(v.Factory),
			Router:  common.HexToAddress(v.Router),
		})
	}
	return venues
}

// Run executes job until it finishes or the process is interrupted.
func (r *Runner) Run(ctx context.Context, job Job) error {
	if r.engine == nil {
		return errors.New("runner is not initialized")
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	if r.cfg.MetricsAddr != "" {
		g.Go(func() error { return r.serveMetrics(gctx) })
	}
	g.Go(func() error {
		return r.engine.RunJanitor(gctx, r.cfg.SessionTTL, janitorInterval)
	})
	g.Go(func() error {
		defer cancel()
		if job.Diagnose {
			return r.diagnose(gctx, job)
		}
		return r.snipe(gctx, job)
	})
	return g.Wait()
}

func (r *Runner) diagnose(ctx context.Context, job Job) error {
	d, err := r.engine.Diagnose(ctx, job.Token)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, r.renderer.Diagnosis(d))
	return nil
}

func (r *Runner) snipe(ctx context.Context, job Job) error {
	id, err := r.engine.StartSniping(ctx, job.Token, job.Amount, job.SlippageBps)
	if err != nil {
		return err
	}
	r.logger.Info("🎯 Session started",
		zap.String("session", id),
		zap.String("token", logger.ShortenAddress(job.Token)))

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return r.finish(ctx, id, job)
		case <-ticker.C:
			s, ok := r.engine.GetSessionStatus(id)
			if !ok || s.Status == session.StatusStopped || s.Status == session.StatusError {
				return r.finish(ctx, id, job)
			}
		}
	}
}

// finish settles the session and prints the final report.
func (r *Runner) finish(ctx context.Context, id string, job Job) error {
	settle, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ConfirmTimeout)
	defer cancel()

	s, _ := r.engine.GetSessionStatus(id)
	if job.SellOnExit && s.HasPosition() {
		r.logger.Info("💰 Selling open position", zap.String("session", id))
		if _, err := r.engine.SellPosition(settle, id); err != nil {
			r.logger.Error("Sell on exit failed", zap.String("session", id), zap.Error(err))
		}
	}
	s, _ = r.engine.GetSessionStatus(id)
	if s.Status != session.StatusError {
		if err := r.engine.StopSniping(id); err != nil {
			r.logger.Warn("Failed to stop session", zap.String("session", id), zap.Error(err))
		}
		s, _ = r.engine.GetSessionStatus(id)
	}
	fmt.Fprintln(r.out, r.renderer.Session(s))
	fmt.Fprintln(r.out, r.renderer.Metrics(r.engine.GetMetrics()))
	fmt.Fprintln(r.out, r.renderer.PnL(r.engine.CalculatePnL()))
	fmt.Fprint(r.out, r.renderer.Lines(r.journal.Session(id, reportLines)))

	if job.Export && len(r.engine.Ledger().Trades()) > 0 {
		path, err := r.engine.Ledger().WriteCSVFile(r.cfg.ExportDir)
		if err != nil {
			return fmt.Errorf("export trades: %w", err)
		}
		r.logger.Info("📄 Trades exported", zap.String("path", path))
	}

	if s.Status == session.StatusError {
		return fmt.Errorf("session %s failed: %s", id, s.Error)
	}
	return nil
}

func (r *Runner) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: r.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	r.logger.Info("Serving metrics", zap.String("addr", r.cfg.MetricsAddr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Shutdown stops the engine, the event bus and the chain client, in that order.
func (r *Runner) Shutdown(ctx context.Context) error {
	err := r.shutdown.Shutdown(ctx)
	if syncErr := r.logger.Sync(); syncErr != nil && !errors.Is(syncErr, syscall.EINVAL) && !errors.Is(syncErr, syscall.ENOTTY) {
		fmt.Fprintf(os.Stderr, "failed to sync logger during shutdown: %v\n", syncErr)
	}
	return err
}
