package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Gateway talks to a ledger sidecar that owns keys and RPC access.
//
//	GET  /v1/vault/{owner}/balances/{token}   -> {"amount": "..."}
//	GET  /v1/vault/{owner}/allowances/{token} -> {"amount": "..."}
//	POST /v1/swaps                            -> Receipt (waits for confirmation)
//	POST /v1/allowances                       -> {"txHash": "..."}
//
// Errors come back as {"code": "...", "error": "..."} with a non-2xx status.
type Gateway struct {
	BaseURL    string
	HTTPClient *http.Client
	limiter    *rate.Limiter
}

// NewGateway builds a client paced to rps requests per second.
func NewGateway(baseURL string, rps float64) *Gateway {
	if rps <= 0 {
		rps = 5
	}
	return &Gateway{
		BaseURL: strings.TrimRight(baseURL, "/"),
		// Swaps block until confirmation; deadlines come from ctx.
		HTTPClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

type gatewayError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (g *Gateway) do(ctx context.Context, method, path string, body, out any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := g.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var ge gatewayError
		_ = json.NewDecoder(res.Body).Decode(&ge)
		switch ge.Code {
		case "INSUFFICIENT_BALANCE":
			return fmt.Errorf("%w: %s", ErrInsufficientBalance, ge.Message)
		case "INSUFFICIENT_ALLOWANCE":
			return fmt.Errorf("%w: %s", ErrInsufficientAllowance, ge.Message)
		}
		return fmt.Errorf("ledger gateway %s %s status %d: %s", method, path, res.StatusCode, ge.Message)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func (g *Gateway) amount(ctx context.Context, kind, owner, token string) (decimal.Decimal, error) {
	var resp struct {
		Amount decimal.Decimal `json:"amount"`
	}
	path := fmt.Sprintf("/v1/vault/%s/%s/%s", url.PathEscape(owner), kind, url.PathEscape(token))
	if err := g.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Amount, nil
}

func (g *Gateway) GetTokenBalance(ctx context.Context, owner, token string) (decimal.Decimal, error) {
	return g.amount(ctx, "balances", owner, token)
}

func (g *Gateway) GetSpendAllowance(ctx context.Context, owner, token string) (decimal.Decimal, error) {
	return g.amount(ctx, "allowances", owner, token)
}

func (g *Gateway) SubmitSwap(ctx context.Context, req SwapRequest) (Receipt, error) {
	var rcpt Receipt
	if err := g.do(ctx, http.MethodPost, "/v1/swaps", req, &rcpt); err != nil {
		return Receipt{}, err
	}
	if rcpt.TxHash == "" {
		return Receipt{}, fmt.Errorf("ledger gateway returned receipt without tx hash")
	}
	return rcpt, nil
}

// Remediator returns an allowance manager for owner backed by the gateway.
func (g *Gateway) Remediator(owner string, timeout time.Duration) FundingRemediator {
	return gatewayRemediator{g: g, owner: owner, timeout: timeout}
}

type gatewayRemediator struct {
	g       *Gateway
	owner   string
	timeout time.Duration
}

func (r gatewayRemediator) EnsureAllowance(ctx context.Context, token string, required decimal.Decimal) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	body := struct {
		Owner  string          `json:"owner"`
		Token  string          `json:"token"`
		Amount decimal.Decimal `json:"amount"`
	}{r.owner, token, required}
	return r.g.do(ctx, http.MethodPost, "/v1/allowances", body, nil)
}
