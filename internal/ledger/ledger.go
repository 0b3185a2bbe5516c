// Package ledger is the narrow capability the trading loop needs from the
// on-chain vault: balances, spend allowances and swap submission.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient vault balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// FundingError reports a balance or allowance shortfall. It unwraps to one of
// the sentinel errors above.
type FundingError struct {
	Token     string
	Required  decimal.Decimal
	Available decimal.Decimal
	Err       error
}

func (e *FundingError) Error() string {
	return fmt.Sprintf("%v for %s: required %s, available %s",
		e.Err, e.Token, e.Required.String(), e.Available.String())
}

func (e *FundingError) Unwrap() error { return e.Err }

// SwapRequest is one vault swap. Amounts are in token base units.
type SwapRequest struct {
	Owner        string          `json:"owner"`
	TokenIn      string          `json:"tokenIn"`
	TokenOut     string          `json:"tokenOut"`
	AmountIn     decimal.Decimal `json:"amountIn"`
	MinAmountOut decimal.Decimal `json:"minAmountOut"`
	Path         []string        `json:"path"`
	StrategyID   int             `json:"strategyId"`
	// ExpectedPrice is the quote the decision was made at; informational.
	ExpectedPrice float64 `json:"expectedPrice,omitempty"`
}

// Receipt is a confirmed swap. ExecutionPrice and AmountOut are zero when
// the ledger does not report them.
type Receipt struct {
	TxHash         string          `json:"txHash"`
	BlockNumber    uint64          `json:"blockNumber"`
	GasUsed        uint64          `json:"gasUsed"`
	AmountOut      decimal.Decimal `json:"amountOut"`
	ExecutionPrice float64         `json:"executionPrice"`
}

// Client is the ledger capability. SubmitSwap blocks until the transaction
// is confirmed or ctx expires.
type Client interface {
	GetTokenBalance(ctx context.Context, owner, token string) (decimal.Decimal, error)
	GetSpendAllowance(ctx context.Context, owner, token string) (decimal.Decimal, error)
	SubmitSwap(ctx context.Context, req SwapRequest) (Receipt, error)
}

// FundingRemediator tops up the executor allowance for a token.
type FundingRemediator interface {
	EnsureAllowance(ctx context.Context, token string, required decimal.Decimal) error
}

// IsFundingError reports whether err is a balance or allowance shortfall.
func IsFundingError(err error) bool {
	var fe *FundingError
	return errors.As(err, &fe) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInsufficientAllowance)
}

// ToBaseUnits converts a human amount such as "0.5" into base units for a
// token with the given decimals. Fractions below one base unit are truncated.
func ToBaseUnits(amount string, decimals int32) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount %q", amount)
	}
	return d.Shift(decimals).Truncate(0), nil
}

// FromBaseUnits converts base units back to a human amount.
func FromBaseUnits(v decimal.Decimal, decimals int32) decimal.Decimal {
	return v.Shift(-decimals)
}
