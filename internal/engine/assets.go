package engine

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"sentinel-core/internal/store"
)

// Token describes an ERC-20 style token held in the vault.
type Token struct {
	Address  string `yaml:"address" json:"address" validate:"required"`
	Decimals int32  `yaml:"decimals" json:"decimals" validate:"gte=0,lte=36"`
}

// AssetConfig is one tradable asset. TradeAmount and MinOutput are human
// amounts in TokenIn and TokenOut units.
type AssetConfig struct {
	ID          string `yaml:"id" json:"id" validate:"required"`
	TradingPair string `yaml:"trading_pair" json:"tradingPair" validate:"required"`
	TokenIn     string `yaml:"token_in" json:"tokenIn" validate:"required"`
	TokenOut    string `yaml:"token_out" json:"tokenOut" validate:"required,nefield=TokenIn"`
	TradeAmount string `yaml:"trade_amount" json:"tradeAmount" validate:"required,numeric"`
	MinOutput   string `yaml:"min_output" json:"minOutput" validate:"required,numeric"`
	StrategyID  int    `yaml:"strategy_id" json:"strategyId" validate:"gte=0"`
	Enabled     bool   `yaml:"enabled" json:"enabled"`
}

// AssetBook is the token registry plus the asset list, stored under
// config.tokens.
type AssetBook struct {
	Tokens map[string]Token `yaml:"tokens" json:"tokens" validate:"required,dive"`
	Assets []AssetConfig    `yaml:"assets" json:"assets" validate:"dive"`
}

var validate = validator.New()

// Validate checks field rules, unique ids and that every referenced token
// is registered.
func (b AssetBook) Validate() error {
	if err := validate.Struct(b); err != nil {
		return err
	}
	seen := make(map[string]bool, len(b.Assets))
	for _, a := range b.Assets {
		if seen[a.ID] {
			return fmt.Errorf("duplicate asset id %q", a.ID)
		}
		seen[a.ID] = true
		for _, sym := range []string{a.TokenIn, a.TokenOut} {
			if _, ok := b.Tokens[sym]; !ok {
				return fmt.Errorf("asset %s references unknown token %s", a.ID, sym)
			}
		}
	}
	return nil
}

// Enabled returns the enabled assets in configuration order.
func (b AssetBook) Enabled() []AssetConfig {
	out := make([]AssetConfig, 0, len(b.Assets))
	for _, a := range b.Assets {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out
}

// TokenSymbols returns registered symbols sorted.
func (b AssetBook) TokenSymbols() []string {
	out := make([]string, 0, len(b.Tokens))
	for s := range b.Tokens {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// LoadAssets reads an asset book from a YAML file.
func LoadAssets(path string) (AssetBook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AssetBook{}, err
	}
	var book AssetBook
	if err := yaml.Unmarshal(data, &book); err != nil {
		return AssetBook{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := book.Validate(); err != nil {
		return AssetBook{}, fmt.Errorf("invalid asset config %s: %w", path, err)
	}
	return book, nil
}

// SyncAssets writes the book to the store.
func SyncAssets(ctx context.Context, st store.Store, book AssetBook) error {
	if err := st.Write(ctx, store.KeyTokens, book); err != nil {
		return fmt.Errorf("sync assets: %w", err)
	}
	return nil
}

// LoadAssetsFromStore reads the persisted book.
func LoadAssetsFromStore(ctx context.Context, st store.Store) (AssetBook, bool, error) {
	var book AssetBook
	found, err := st.Read(ctx, store.KeyTokens, &book)
	if err != nil || !found {
		return AssetBook{}, found, err
	}
	return book, true, nil
}

// slippagePercent is the tolerance implied by the configured amounts.
func slippagePercent(a AssetConfig) float64 {
	in, err := strconv.ParseFloat(a.TradeAmount, 64)
	if err != nil || in <= 0 {
		return 0
	}
	out, err := strconv.ParseFloat(a.MinOutput, 64)
	if err != nil {
		return 0
	}
	return (in - out) / in * 100
}
