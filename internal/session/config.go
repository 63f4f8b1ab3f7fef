package session

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/allocation-game/internal/macro"
)

// Config holds the economic parameters of a session.
type Config struct {
	StartingCapital decimal.Decimal
	BailoutAmount   decimal.Decimal

	// DefaultFeeRate applies to any asset absent from FeeRates and from
	// the session's explicit overrides.
	DefaultFeeRate decimal.Decimal
	FeeRates       map[string]decimal.Decimal

	Macro macro.Config

	// Seed fixes the session's random stream. Zero draws a random seed.
	Seed uint64
}

// DefaultConfig returns 100,000 starting capital, a 10,000 bailout, a 1%
// fallback fee and the standard per-asset fee table.
func DefaultConfig() Config {
	return Config{
		StartingCapital: decimal.NewFromInt(100_000),
		BailoutAmount:   decimal.NewFromInt(10_000),
		DefaultFeeRate:  decimal.RequireFromString("0.01"),
		FeeRates:        DefaultFeeRates(),
		Macro:           macro.DefaultConfig(),
	}
}

// DefaultFeeRates is the standard fee schedule keyed by catalog name.
// Listed funds are cheap to trade; private and physical assets are not.
func DefaultFeeRates() map[string]decimal.Decimal {
	rate := decimal.RequireFromString
	return map[string]decimal.Decimal{
		"ETF World (MSCI)":            rate("0.005"),
		"US Tech Equities":            rate("0.005"),
		"Europe Value Equities":       rate("0.005"),
		"Gov Bonds US (10Y)":          rate("0.003"),
		"Gov Bonds Euro (10Y)":        rate("0.003"),
		"Corp Bonds IG":               rate("0.004"),
		"High Yield Bonds":            rate("0.004"),
		"LBO Fund Vintage 2024":       rate("0.02"),
		"Infra Green Fund":            rate("0.02"),
		"Private Debt Senior":         rate("0.02"),
		"SCPI Paris Offices":          rate("0.015"),
		"Direct Residential Property": rate("0.015"),
		"Gold Bullion":                rate("0.007"),
		"Silver":                      rate("0.008"),
		"Oil ETC":                     rate("0.01"),
		"Bitcoin":                     rate("0.015"),
		"Ethereum":                    rate("0.015"),
	}
}
