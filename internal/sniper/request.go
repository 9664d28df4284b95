// internal/sniper/request.go
package sniper

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// MaxSlippageBps is the largest accepted slippage (50%).
const MaxSlippageBps = 5000

type startRequest struct {
	Token       string          `validate:"required,eth_addr"`
	Amount      decimal.Decimal `validate:"gt=0"`
	SlippageBps int             `validate:"min=0,max=5000"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// validate checks a start request and returns the buy amount in wei.
func (e *Engine) validate(req startRequest) (*big.Int, error) {
	if err := e.validator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return nil, fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if e.maxBuy.IsPositive() && req.Amount.GreaterThan(e.maxBuy) {
		return nil, fmt.Errorf("%w: amount %s exceeds limit of %s ETH", ErrInvalidInput, req.Amount, e.maxBuy)
	}

	wei := req.Amount.Shift(18).Truncate(0)
	if !wei.IsPositive() {
		return nil, fmt.Errorf("%w: amount %s is below 1 wei", ErrInvalidInput, req.Amount)
	}
	return wei.BigInt(), nil
}

func describe(fe validator.FieldError) string {
	switch fe.Field() {
	case "Token":
		return "token must be a 0x-prefixed 20-byte address"
	case "Amount":
		return "amount must be greater than 0"
	case "SlippageBps":
		return fmt.Sprintf("slippage must be between 0 and %d bps", MaxSlippageBps)
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
