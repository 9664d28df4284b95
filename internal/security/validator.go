// internal/security/validator.go
package security

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/base-sniper/internal/dex"
	"github.com/rovshanmuradov/base-sniper/internal/logger"
)

// RiskLevel grades a token.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Checks holds the individual check outcomes. true means the check passed.
type Checks struct {
	HasBytecode     bool  `json:"has_bytecode"`
	OwnershipSpread bool  `json:"ownership_spread"`
	SupplyPositive  bool  `json:"supply_positive"`
	OwnerRenounced  bool  `json:"owner_renounced"`
	OwnerShareBps   int64 `json:"owner_share_bps"`
}

// Result is the outcome of Validate.
type Result struct {
	IsValid   bool      `json:"is_valid"`
	RiskLevel RiskLevel `json:"risk_level"`
	Checks    Checks    `json:"checks"`
	Warnings  []string  `json:"warnings"`
}

// CodeReader fetches contract bytecode.
type CodeReader interface {
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
}

// Validator runs advisory checks against a token contract. Results never
// block trading.
type Validator struct {
	code        CodeReader
	reader      dex.Reader
	maxOwnerBps int64
	logger      *zap.Logger
	sink        logger.Sink
}

// NewValidator creates a validator. maxOwnerPercentage is the largest share
// of supply the owner may hold before the token is flagged.
func NewValidator(code CodeReader, reader dex.Reader, maxOwnerPercentage float64, zapLogger *zap.Logger, sink logger.Sink) *Validator {
	if sink == nil {
		sink = logger.NopSink{}
	}
	return &Validator{
		code:        code,
		reader:      reader,
		maxOwnerBps: int64(maxOwnerPercentage * 100),
		logger:      zapLogger.Named("security"),
		sink:        sink,
	}
}

// Validate checks token and grades it.
func (v *Validator) Validate(ctx context.Context, token, sessionID string) Result {
	token = strings.TrimSpace(token)
	if !common.IsHexAddress(token) {
		return Result{RiskLevel: RiskCritical, Warnings: []string{"invalid address format"}}
	}
	addr := common.HexToAddress(token)

	var (
		checks   Checks
		warnings []string
	)

	code, err := v.code.CodeAt(ctx, addr)
	if err != nil {
		return v.failed(token, sessionID, fmt.Errorf("read bytecode: %w", err))
	}
	checks.HasBytecode = len(code) > 0
	if !checks.HasBytecode {
		warnings = append(warnings, "No contract bytecode at address")
	}

	supply, err := v.reader.TotalSupply(ctx, addr)
	if err != nil {
		v.logger.Debug("totalSupply unavailable", zap.String("token", token), zap.Error(err))
	}
	checks.SupplyPositive = err == nil && supply != nil && supply.Sign() > 0
	if !checks.SupplyPositive {
		warnings = append(warnings, "Total supply is zero or unreadable")
	}

	checks.OwnershipSpread = true
	owner, err := v.reader.Owner(ctx, addr)
	if err != nil || owner == (common.Address{}) {
		// not Ownable, or ownership renounced
		checks.OwnerRenounced = true
	} else if checks.SupplyPositive {
		balance, err := v.reader.BalanceOf(ctx, addr, owner)
		if err != nil {
			return v.failed(token, sessionID, fmt.Errorf("read owner balance: %w", err))
		}
		checks.OwnerShareBps = shareBps(balance, supply)
		if checks.OwnerShareBps > v.maxOwnerBps {
			checks.OwnershipSpread = false
			warnings = append(warnings, fmt.Sprintf("Owner holds %.2f%% of supply", float64(checks.OwnerShareBps)/100))
		}
	}

	level := grade(checks)
	result := Result{
		IsValid:   level != RiskCritical && len(warnings) < 3,
		RiskLevel: level,
		Checks:    checks,
		Warnings:  warnings,
	}

	v.logger.Info("Security check complete",
		zap.String("token", logger.ShortenAddress(token)),
		zap.String("risk", string(level)),
		zap.Int("warnings", len(warnings)))
	sinkLevel := logger.LevelInfo
	if !result.IsValid || level == RiskHigh {
		sinkLevel = logger.LevelWarning
	}
	logger.Logf(v.sink, sinkLevel, sessionID, "Security check: %s risk (%d warnings)", level, len(warnings))
	for _, w := range warnings {
		v.sink.Log(logger.LevelWarning, sessionID, w)
	}
	return result
}

func (v *Validator) failed(token, sessionID string, err error) Result {
	v.logger.Warn("Security check failed", zap.String("token", token), zap.Error(err))
	logger.Logf(v.sink, logger.LevelWarning, sessionID, "Security validation error: %v", err)
	return Result{
		RiskLevel: RiskCritical,
		Warnings:  []string{"Security validation failed"},
	}
}

// grade scores failed checks. Missing bytecode also counts as a honeypot
// indicator.
func grade(c Checks) RiskLevel {
	score := 0
	if !c.HasBytecode {
		score += 2 + 4
	}
	if !c.OwnershipSpread {
		score += 3
	}
	if !c.SupplyPositive {
		score += 2
	}

	switch {
	case score >= 8:
		return RiskCritical
	case score >= 6:
		return RiskHigh
	case score >= 3:
		return RiskMedium
	default:
		return RiskLow
	}
}

func shareBps(part, whole *big.Int) int64 {
	if whole == nil || whole.Sign() <= 0 || part == nil {
		return 0
	}
	bps := new(big.Int).Mul(part, big.NewInt(10000))
	return bps.Quo(bps, whole).Int64()
}
