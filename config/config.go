// Package config loads the settings of the th tool from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/etnz/tradehistory"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Prefix is the prefix of every environment variable read by Load.
const Prefix = "TH"

// Config holds the runtime configuration. Command line flags override it.
type Config struct {
	SQLitePath      string `envconfig:"SQLITE_PATH" default:"data/trading.sqlite"`
	DefaultCurrency string `envconfig:"DEFAULT_CURRENCY" default:"CAD"`
	DisplayCurrency string `envconfig:"DISPLAY_CURRENCY" default:"CAD"`

	CostBasis      tradehistory.CostBasisMethod `envconfig:"COST_BASIS" default:"fifo"`
	TransferWindow int                          `envconfig:"TRANSFER_WINDOW_DAYS" default:"10"`
	SymbolChain    string                       `envconfig:"SYMBOL_CHAIN" default:"override,provider,instrument,alias"`

	ReconToleranceAbs decimal.Decimal        `envconfig:"RECON_TOLERANCE_ABS" default:"1"`
	ReconToleranceRel decimal.Decimal        `envconfig:"RECON_TOLERANCE_REL" default:"0"`
	ReconToleranceCcy string                 `envconfig:"RECON_TOLERANCE_CCY"`
	FeePolicy         tradehistory.FeePolicy `envconfig:"RECON_FEE_POLICY" default:"included"`

	CacheDir       string `envconfig:"CACHE_DIR"`
	YahooSearchURL string `envconfig:"YAHOO_SEARCH_URL" default:"https://query1.finance.yahoo.com/v1/finance/search"`
	BoCValetURL    string `envconfig:"BOC_VALET_URL" default:"https://www.bankofcanada.ca/valet"`
	GeminiAPIKey   string `envconfig:"GEMINI_API_KEY"`
	GeminiModel    string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"true"`
}

// Load reads an optional .env file, then the TH_ environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values envconfig cannot.
func (c *Config) Validate() error {
	if c.SQLitePath == "" {
		return fmt.Errorf("%s_SQLITE_PATH is required", Prefix)
	}
	if !tradehistory.KnownCurrency(c.DisplayCurrency) {
		return fmt.Errorf("%s_DISPLAY_CURRENCY: unknown currency %q", Prefix, c.DisplayCurrency)
	}
	if !tradehistory.KnownCurrency(c.DefaultCurrency) {
		return fmt.Errorf("%s_DEFAULT_CURRENCY: unknown currency %q", Prefix, c.DefaultCurrency)
	}
	if c.ReconToleranceAbs.IsNegative() || c.ReconToleranceRel.IsNegative() {
		return fmt.Errorf("%s_RECON_TOLERANCE_*: tolerance cannot be negative", Prefix)
	}
	if c.TransferWindow < 0 {
		return fmt.Errorf("%s_TRANSFER_WINDOW_DAYS cannot be negative", Prefix)
	}
	if _, err := tradehistory.ParseChain(c.SymbolChain); err != nil {
		return fmt.Errorf("%s_SYMBOL_CHAIN: %w", Prefix, err)
	}
	if _, err := tradehistory.ParsePerCurrency(c.ReconToleranceCcy); err != nil {
		return fmt.Errorf("%s_RECON_TOLERANCE_CCY: %w", Prefix, err)
	}
	return nil
}

// Tolerance returns the reconciliation tolerance.
func (c *Config) Tolerance() tradehistory.Tolerance {
	per, _ := tradehistory.ParsePerCurrency(c.ReconToleranceCcy)
	return tradehistory.Tolerance{Absolute: c.ReconToleranceAbs, Relative: c.ReconToleranceRel, PerCurrency: per}
}

// Reconciler returns a Reconciler configured with the tolerance and fee policy.
func (c *Config) Reconciler(conv tradehistory.Converter) tradehistory.Reconciler {
	return tradehistory.Reconciler{Tolerance: c.Tolerance(), FeePolicy: c.FeePolicy, Converter: conv}
}

// Resolver returns the symbol resolver of the configured chain.
func (c *Config) Resolver() tradehistory.Resolver {
	chain, _ := tradehistory.ParseChain(c.SymbolChain)
	return tradehistory.NewResolver(chain...)
}

// HTTPCacheDir returns the directory of the provider HTTP cache.
func (c *Config) HTTPCacheDir() (string, error) {
	if c.CacheDir != "" {
		return c.CacheDir, nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tradehistory"), nil
}
