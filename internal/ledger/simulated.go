package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mrand "math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// SimConfig tunes the simulated vault.
type SimConfig struct {
	FillSlippageBps float64       // max random deviation applied to ExecutionPrice
	ConfirmLatency  time.Duration // delay before a swap is confirmed
	GasPerSwap      uint64
	AutoApprove     bool // EnsureAllowance succeeds when true
}

// Simulated is an in-memory vault used for dry runs and tests.
type Simulated struct {
	mu         sync.Mutex
	cfg        SimConfig
	balances   map[string]decimal.Decimal
	allowances map[string]decimal.Decimal
	block      uint64
	swaps      []SwapRequest
	failures   []error
	rng        *mrand.Rand
	logger     zerolog.Logger
}

// NewSimulated creates an empty vault.
func NewSimulated(cfg SimConfig) *Simulated {
	if cfg.GasPerSwap == 0 {
		cfg.GasPerSwap = 150_000
	}
	return &Simulated{
		cfg:        cfg,
		balances:   make(map[string]decimal.Decimal),
		allowances: make(map[string]decimal.Decimal),
		block:      1,
		rng:        mrand.New(mrand.NewSource(time.Now().UnixNano())),
		logger:     log.With().Str("component", "ledger-sim").Logger(),
	}
}

func vaultKey(owner, token string) string { return owner + "|" + token }

// SetBalance seeds a vault balance in base units.
func (s *Simulated) SetBalance(owner, token string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[vaultKey(owner, token)] = amount
}

// SetAllowance seeds an executor allowance in base units.
func (s *Simulated) SetAllowance(owner, token string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowances[vaultKey(owner, token)] = amount
}

// FailNextSwaps queues errors returned by the next SubmitSwap calls, in order.
func (s *Simulated) FailNextSwaps(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// Swaps returns the confirmed swaps so far.
func (s *Simulated) Swaps() []SwapRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SwapRequest, len(s.swaps))
	copy(out, s.swaps)
	return out
}

func (s *Simulated) GetTokenBalance(_ context.Context, owner, token string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[vaultKey(owner, token)], nil
}

func (s *Simulated) GetSpendAllowance(_ context.Context, owner, token string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allowances[vaultKey(owner, token)], nil
}

// SubmitSwap settles the swap at MinAmountOut and confirms after ConfirmLatency.
func (s *Simulated) SubmitSwap(ctx context.Context, req SwapRequest) (Receipt, error) {
	if s.cfg.ConfirmLatency > 0 {
		select {
		case <-time.After(s.cfg.ConfirmLatency):
		case <-ctx.Done():
			return Receipt{}, fmt.Errorf("waiting for confirmation: %w", ctx.Err())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return Receipt{}, err
	}

	inKey := vaultKey(req.Owner, req.TokenIn)
	if bal := s.balances[inKey]; bal.LessThan(req.AmountIn) {
		return Receipt{}, &FundingError{Token: req.TokenIn, Required: req.AmountIn, Available: bal, Err: ErrInsufficientBalance}
	}
	if allow := s.allowances[inKey]; allow.LessThan(req.AmountIn) {
		return Receipt{}, &FundingError{Token: req.TokenIn, Required: req.AmountIn, Available: allow, Err: ErrInsufficientAllowance}
	}

	s.balances[inKey] = s.balances[inKey].Sub(req.AmountIn)
	s.allowances[inKey] = s.allowances[inKey].Sub(req.AmountIn)
	outKey := vaultKey(req.Owner, req.TokenOut)
	s.balances[outKey] = s.balances[outKey].Add(req.MinAmountOut)

	s.block++
	s.swaps = append(s.swaps, req)

	execPrice := req.ExpectedPrice
	if s.cfg.FillSlippageBps > 0 && execPrice > 0 {
		noise := (s.rng.Float64()*2 - 1) * s.cfg.FillSlippageBps / 10000
		execPrice *= 1 + noise
	}

	rcpt := Receipt{
		TxHash:         newTxHash(),
		BlockNumber:    s.block,
		GasUsed:        s.cfg.GasPerSwap,
		AmountOut:      req.MinAmountOut,
		ExecutionPrice: execPrice,
	}
	s.logger.Debug().Str("tx", rcpt.TxHash).Uint64("block", rcpt.BlockNumber).
		Str("in", req.TokenIn).Str("out", req.TokenOut).Msg("simulated swap confirmed")
	return rcpt, nil
}

// Remediator returns an allowance manager bound to owner.
func (s *Simulated) Remediator(owner string) FundingRemediator {
	return simRemediator{sim: s, owner: owner}
}

type simRemediator struct {
	sim   *Simulated
	owner string
}

func (r simRemediator) EnsureAllowance(_ context.Context, token string, required decimal.Decimal) error {
	r.sim.mu.Lock()
	defer r.sim.mu.Unlock()
	if !r.sim.cfg.AutoApprove {
		return fmt.Errorf("auto-approve disabled for %s", token)
	}
	key := vaultKey(r.owner, token)
	if r.sim.allowances[key].LessThan(required) {
		r.sim.allowances[key] = required
	}
	return nil
}

func newTxHash() string {
	var b [32]byte
	_, _ = rand.Read(b[:])
	return "0x" + hex.EncodeToString(b[:])
}
