// ====================================
// File: cmd/sniper/main.go
// ====================================
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/base-sniper/internal/bot"
	"github.com/rovshanmuradov/base-sniper/internal/config"
	"github.com/rovshanmuradov/base-sniper/internal/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	var (
		configPath = flag.StringP("config", "c", "configs/config.json", "path to the JSON config file")
		token      = flag.StringP("token", "t", "", "token address to snipe")
		amount     = flag.StringP("amount", "a", "0.01", "ETH to spend on the buy")
		slippage   = flag.IntP("slippage", "s", 300, "slippage tolerance in basis points (0-5000)")
		diagnose   = flag.Bool("diagnose", false, "check RPC, wallet and liquidity, then exit")
		sellOnExit = flag.Bool("sell-on-exit", false, "sell the open position on Ctrl+C")
		export     = flag.Bool("export", false, "write the trade ledger as CSV on exit")
		noColor    = flag.Bool("no-color", false, "disable colored console logs")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Debug: cfg.DebugLogging, NoColor: *noColor, File: cfg.LogFile})
	log.Info("Starting Base sniper", zap.Int64("chain_id", cfg.ChainID))

	job, err := newJob(*token, *amount, *slippage, *diagnose)
	if err != nil {
		log.Error("Invalid arguments", zap.Error(err))
		os.Exit(2)
	}
	job.SellOnExit = *sellOnExit
	job.Export = *export

	if err := run(cfg, log, job); err != nil {
		log.Error("Sniper execution error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

// newJob validates the command line. A diagnose run without a token only
// checks connectivity and the wallet.
func newJob(token, amount string, slippage int, diagnose bool) (bot.Job, error) {
	if token == "" && !diagnose {
		return bot.Job{}, errors.New("a token address is required (--token)")
	}
	buy, err := decimal.NewFromString(amount)
	if err != nil {
		return bot.Job{}, fmt.Errorf("invalid --amount %q: %w", amount, err)
	}
	return bot.Job{
		Token:       token,
		Amount:      buy,
		SlippageBps: slippage,
		Diagnose:    diagnose,
	}, nil
}

func run(cfg *config.Config, log *zap.Logger, job bot.Job) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner, err := bot.NewRunner(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = runner.Shutdown(shutdownCtx)
	}()

	if err := runner.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	return runner.Run(ctx, job)
}
