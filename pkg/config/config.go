package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trading loop.
type Config struct {
	Port string `validate:"required,numeric"`

	// Persistence
	DBPath        string `validate:"required_if=StoreBackend sqlite"`
	StoreBackend  string `validate:"oneof=sqlite redis memory"`
	RedisAddr     string `validate:"required_if=StoreBackend redis"`
	RedisPassword string
	RedisDB       int `validate:"gte=0"`
	RedisPrefix   string

	// Configuration files
	StrategiesPath string
	AssetsPath     string

	// Loop
	PollingInterval         time.Duration `validate:"gte=1000000000"`
	EnableAutoTrading       bool
	RotateAssets            bool
	DefaultStrategyID       int    `validate:"gte=1"`
	TraderID                string `validate:"required"`
	WalletAddress           string
	DuplicatePriceThreshold float64 `validate:"gt=0"`
	PriceHistoryCap         int     `validate:"gte=15"`

	// Signal source
	SignalSource     string        `validate:"oneof=local grpc process"`
	SignalWorkerAddr string        `validate:"required_if=SignalSource grpc"`
	SignalProcessCmd string        `validate:"required_if=SignalSource process"`
	SignalTimeout    time.Duration `validate:"gt=0"`

	// Ledger
	ConfirmTimeout   time.Duration `validate:"gt=0"`
	LedgerMode       string        `validate:"oneof=simulated gateway"`
	LedgerGatewayURL string        `validate:"required_if=LedgerMode gateway,omitempty,url"`
	LedgerRPS        float64       `validate:"gt=0"`
	// BalanceToken enables daily-loss tracking from a valuation token's vault
	// balance. Empty disables it.
	BalanceToken      string
	SimInitialBalance float64 `validate:"gte=0"`
	SimFillSlippage   float64 `validate:"gte=0"`

	// Simulated prices
	PriceStart float64 `validate:"gt=0"`
	PriceStep  float64 `validate:"gt=0"`

	// Risk gate
	RiskEnableKillSwitch        bool
	RiskMaxConsecutiveFailures  int     `validate:"gte=1"`
	RiskMaxDailyLossPercent     float64 `validate:"gte=0"`
	RiskEnableLossStreak        bool
	RiskMaxLossStreak           int `validate:"gte=0"`
	RiskEnableOvertrading       bool
	RiskMinSecondsBetweenTrades int     `validate:"gte=0"`
	RiskMaxSlippageBps          float64 `validate:"gt=0"`

	// Auth
	JWTSecret string

	// Logging
	LogLevel  string `validate:"oneof=trace debug info warn error"`
	LogFormat string `validate:"oneof=console json"`
}

var validate = validator.New()

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", "9000"),
		DBPath:        getEnv("DB_PATH", "./data/sentinel.db"),
		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", "sqlite")),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisPrefix:   getEnv("REDIS_PREFIX", "sentinel:"),

		StrategiesPath: getEnv("STRATEGIES_PATH", "./config/strategies.yaml"),
		AssetsPath:     getEnv("ASSETS_PATH", "./config/assets.yaml"),

		PollingInterval:         time.Duration(getEnvInt("POLLING_INTERVAL_SECONDS", 30)) * time.Second,
		EnableAutoTrading:       getEnvBool("ENABLE_AUTO_TRADING", false),
		RotateAssets:            getEnvBool("ROTATE_ASSETS", true),
		DefaultStrategyID:       getEnvInt("DEFAULT_STRATEGY_ID", 1),
		TraderID:                getEnv("TRADER_ID", "default"),
		WalletAddress:           getEnv("WALLET_ADDRESS", "0x0000000000000000000000000000000000000001"),
		DuplicatePriceThreshold: getEnvFloat("DUPLICATE_PRICE_THRESHOLD", 2),
		PriceHistoryCap:         getEnvInt("PRICE_HISTORY_CAP", 100),

		SignalSource:     strings.ToLower(getEnv("SIGNAL_SOURCE", "local")),
		SignalWorkerAddr: getEnv("SIGNAL_WORKER_ADDR", "localhost:50051"),
		SignalProcessCmd: os.Getenv("SIGNAL_PROCESS_CMD"),
		SignalTimeout:    getEnvDuration("SIGNAL_TIMEOUT", 5*time.Second),

		ConfirmTimeout:    getEnvDuration("CONFIRM_TIMEOUT", 2*time.Minute),
		LedgerMode:        strings.ToLower(getEnv("LEDGER_MODE", "simulated")),
		LedgerGatewayURL:  os.Getenv("LEDGER_GATEWAY_URL"),
		LedgerRPS:         getEnvFloat("LEDGER_RPS", 5),
		BalanceToken:      os.Getenv("BALANCE_TOKEN"),
		SimInitialBalance: getEnvFloat("SIM_INITIAL_BALANCE", 1000),
		SimFillSlippage:   getEnvFloat("SIM_FILL_SLIPPAGE_BPS", 20),

		PriceStart: getEnvFloat("PRICE_START", 100),
		PriceStep:  getEnvFloat("PRICE_STEP", 2),

		RiskEnableKillSwitch:        getEnvBool("RISK_ENABLE_KILL_SWITCH", true),
		RiskMaxConsecutiveFailures:  getEnvInt("RISK_MAX_CONSECUTIVE_FAILURES", 3),
		RiskMaxDailyLossPercent:     getEnvFloat("RISK_MAX_DAILY_LOSS_PERCENT", 5),
		RiskEnableLossStreak:        getEnvBool("RISK_ENABLE_LOSS_STREAK", false),
		RiskMaxLossStreak:           getEnvInt("RISK_MAX_LOSS_STREAK", 3),
		RiskEnableOvertrading:       getEnvBool("RISK_ENABLE_OVERTRADING", false),
		RiskMinSecondsBetweenTrades: getEnvInt("RISK_MIN_SECONDS_BETWEEN_TRADES", 60),
		RiskMaxSlippageBps:          getEnvFloat("RISK_MAX_SLIPPAGE_BPS", 1000),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret"),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "console")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// SignalArgv splits SIGNAL_PROCESS_CMD on whitespace.
func (c *Config) SignalArgv() []string {
	return strings.Fields(c.SignalProcessCmd)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("5s") or plain seconds ("5").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
