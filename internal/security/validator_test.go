package security

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/base-sniper/internal/dex"
)

var (
	token = common.HexToAddress("0x00000000000000000000000000000000000abcde")
	owner = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type mockChain struct {
	mock.Mock
}

func (m *mockChain) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	args := m.Called(ctx, account)
	code, _ := args.Get(0).([]byte)
	return code, args.Error(1)
}

type mockReader struct {
	mock.Mock
}

func (m *mockReader) GetPair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error) {
	args := m.Called(ctx, factory, tokenA, tokenB)
	return args.Get(0).(common.Address), args.Error(1)
}

func (m *mockReader) GetReserves(ctx context.Context, pair common.Address) (dex.Reserves, error) {
	args := m.Called(ctx, pair)
	return args.Get(0).(dex.Reserves), args.Error(1)
}

func (m *mockReader) Token0(ctx context.Context, pair common.Address) (common.Address, error) {
	args := m.Called(ctx, pair)
	return args.Get(0).(common.Address), args.Error(1)
}

func (m *mockReader) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	args := m.Called(ctx, token, owner)
	b, _ := args.Get(0).(*big.Int)
	return b, args.Error(1)
}

func (m *mockReader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(uint8), args.Error(1)
}

func (m *mockReader) Symbol(ctx context.Context, token common.Address) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

func (m *mockReader) TotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	args := m.Called(ctx, token)
	s, _ := args.Get(0).(*big.Int)
	return s, args.Error(1)
}

func (m *mockReader) Owner(ctx context.Context, token common.Address) (common.Address, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(common.Address), args.Error(1)
}

func newValidator(t *testing.T, chain *mockChain, reader *mockReader) *Validator {
	return NewValidator(chain, reader, 5, zaptest.NewLogger(t), nil)
}

func TestValidateHealthyToken(t *testing.T) {
	chain, reader := new(mockChain), new(mockReader)
	chain.On("CodeAt", mock.Anything, token).Return([]byte{0x60, 0x80}, nil)
	reader.On("TotalSupply", mock.Anything, token).Return(big.NewInt(1_000_000), nil)
	reader.On("Owner", mock.Anything, token).Return(owner, nil)
	reader.On("BalanceOf", mock.Anything, token, owner).Return(big.NewInt(10_000), nil)

	res := newValidator(t, chain, reader).Validate(context.Background(), token.Hex(), "s1")
	assert.True(t, res.IsValid)
	assert.Equal(t, RiskLow, res.RiskLevel)
	assert.Empty(t, res.Warnings)
	assert.True(t, res.Checks.HasBytecode)
	assert.True(t, res.Checks.OwnershipSpread)
	assert.Equal(t, int64(100), res.Checks.OwnerShareBps)
}

func TestValidateConcentratedOwnership(t *testing.T) {
	chain, reader := new(mockChain), new(mockReader)
	chain.On("CodeAt", mock.Anything, token).Return([]byte{0x60}, nil)
	reader.On("TotalSupply", mock.Anything, token).Return(big.NewInt(1000), nil)
	reader.On("Owner", mock.Anything, token).Return(owner, nil)
	reader.On("BalanceOf", mock.Anything, token, owner).Return(big.NewInt(400), nil)

	res := newValidator(t, chain, reader).Validate(context.Background(), token.Hex(), "s1")
	assert.True(t, res.IsValid)
	assert.Equal(t, RiskMedium, res.RiskLevel)
	assert.False(t, res.Checks.OwnershipSpread)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "40.00%")
}

func TestValidateRenouncedOwnership(t *testing.T) {
	chain, reader := new(mockChain), new(mockReader)
	chain.On("CodeAt", mock.Anything, token).Return([]byte{0x60}, nil)
	reader.On("TotalSupply", mock.Anything, token).Return(big.NewInt(1000), nil)
	reader.On("Owner", mock.Anything, token).Return(common.Address{}, errors.New("execution reverted"))

	res := newValidator(t, chain, reader).Validate(context.Background(), token.Hex(), "")
	assert.Equal(t, RiskLow, res.RiskLevel)
	assert.True(t, res.Checks.OwnerRenounced)
	reader.AssertNotCalled(t, "BalanceOf", mock.Anything, mock.Anything, mock.Anything)
}

func TestValidateNoContract(t *testing.T) {
	chain, reader := new(mockChain), new(mockReader)
	chain.On("CodeAt", mock.Anything, token).Return([]byte{}, nil)
	reader.On("TotalSupply", mock.Anything, token).Return(nil, errors.New("execution reverted"))
	reader.On("Owner", mock.Anything, token).Return(common.Address{}, errors.New("execution reverted"))

	res := newValidator(t, chain, reader).Validate(context.Background(), token.Hex(), "s1")
	assert.False(t, res.IsValid)
	assert.Equal(t, RiskCritical, res.RiskLevel)
	assert.Len(t, res.Warnings, 2)
}

func TestValidateChainFailure(t *testing.T) {
	chain, reader := new(mockChain), new(mockReader)
	chain.On("CodeAt", mock.Anything, token).Return(nil, errors.New("connection refused"))

	res := newValidator(t, chain, reader).Validate(context.Background(), token.Hex(), "s1")
	assert.False(t, res.IsValid)
	assert.Equal(t, RiskCritical, res.RiskLevel)
	assert.Equal(t, []string{"Security validation failed"}, res.Warnings)
}

func TestValidateInvalidAddress(t *testing.T) {
	res := newValidator(t, new(mockChain), new(mockReader)).Validate(context.Background(), "0xnope", "s1")
	assert.False(t, res.IsValid)
	assert.Equal(t, RiskCritical, res.RiskLevel)
}

func TestGrade(t *testing.T) {
	tests := []struct {
		name   string
		checks Checks
		want   RiskLevel
	}{
		{"all pass", Checks{HasBytecode: true, OwnershipSpread: true, SupplyPositive: true}, RiskLow},
		{"zero supply", Checks{HasBytecode: true, OwnershipSpread: true}, RiskLow},
		{"concentrated", Checks{HasBytecode: true, SupplyPositive: true}, RiskMedium},
		{"concentrated and zero supply", Checks{HasBytecode: true}, RiskMedium},
		{"no bytecode", Checks{OwnershipSpread: true, SupplyPositive: true}, RiskHigh},
		{"no bytecode or supply", Checks{OwnershipSpread: true}, RiskCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, grade(tt.checks))
		})
	}
}
