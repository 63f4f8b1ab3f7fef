// Package config loads server settings from defaults, an optional
// config.yaml, a .env file and the process environment, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/atmx/allocation-game/internal/game"
	"github.com/atmx/allocation-game/internal/macro"
	"github.com/atmx/allocation-game/internal/session"
)

var ErrInvalid = errors.New("config: invalid value")

// Config is the resolved server configuration.
type Config struct {
	Port        string
	DatabaseURL string // empty selects the in-memory store
	RedisURL    string // empty disables the read-through cache
	RedisTTL    time.Duration
	LogEnv      string
	CatalogPath string // empty selects the embedded catalog

	Game game.Config
}

// Load reads .env when present, then config.yaml from the working
// directory when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config.yaml: %w", err)
		}
	}
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("REDIS_TTL", 30*time.Second)
	v.SetDefault("LOG_ENV", "production")
	v.SetDefault("GAME_STARTING_CAPITAL", "100000")
	v.SetDefault("GAME_BAILOUT_AMOUNT", "10000")
	v.SetDefault("GAME_DEFAULT_FEE", "0.01")
	v.SetDefault("PROJECTION_MAX_TRAJECTORIES", 10_000)
	v.SetDefault("PROJECTION_WORKERS", 0)

	// Macro calibration, e.g. MACRO_RATE_MEAN or macro.rate.mean in config.yaml.
	m := macro.DefaultConfig()
	for name, f := range map[string]macro.Factor{
		"growth": m.Growth, "inflation": m.Inflation, "rate": m.Rate, "equity": m.Equity,
	} {
		v.SetDefault("macro."+name+".mean", f.Mean)
		v.SetDefault("macro."+name+".persistence", f.Persistence)
	}
}

func fromViper(v *viper.Viper) (*Config, error) {
	sc := session.DefaultConfig()

	var err error
	if sc.StartingCapital, err = decimalKey(v, "GAME_STARTING_CAPITAL"); err != nil {
		return nil, err
	}
	if !sc.StartingCapital.IsPositive() {
		return nil, fmt.Errorf("%w: GAME_STARTING_CAPITAL must be positive", ErrInvalid)
	}
	if sc.BailoutAmount, err = decimalKey(v, "GAME_BAILOUT_AMOUNT"); err != nil {
		return nil, err
	}
	if sc.BailoutAmount.IsNegative() {
		return nil, fmt.Errorf("%w: GAME_BAILOUT_AMOUNT must be >= 0", ErrInvalid)
	}
	if sc.DefaultFeeRate, err = decimalKey(v, "GAME_DEFAULT_FEE"); err != nil {
		return nil, err
	}
	if !validRate(sc.DefaultFeeRate) {
		return nil, fmt.Errorf("%w: GAME_DEFAULT_FEE must be in [0, 1)", ErrInvalid)
	}
	var settings struct {
		Macro macro.Config `mapstructure:"macro"`
	}
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("%w: macro: %v", ErrInvalid, err)
	}
	if err := settings.Macro.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	sc.Macro = settings.Macro

	if raw := v.GetString("GAME_FEES"); raw != "" {
		fees, err := ParseFees(raw)
		if err != nil {
			return nil, err
		}
		for name, rate := range fees {
			sc.FeeRates[name] = rate
		}
	}

	maxTraj := v.GetInt("PROJECTION_MAX_TRAJECTORIES")
	if maxTraj <= 0 {
		return nil, fmt.Errorf("%w: PROJECTION_MAX_TRAJECTORIES must be positive", ErrInvalid)
	}
	workers := v.GetInt("PROJECTION_WORKERS")
	if workers < 0 {
		return nil, fmt.Errorf("%w: PROJECTION_WORKERS must be >= 0", ErrInvalid)
	}
	ttl := v.GetDuration("REDIS_TTL")
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: REDIS_TTL must be positive", ErrInvalid)
	}

	return &Config{
		Port:        v.GetString("PORT"),
		DatabaseURL: v.GetString("DATABASE_URL"),
		RedisURL:    v.GetString("REDIS_URL"),
		RedisTTL:    ttl,
		LogEnv:      v.GetString("LOG_ENV"),
		CatalogPath: v.GetString("CATALOG_PATH"),
		Game: game.Config{
			Session:           sc,
			MaxTrajectories:   maxTraj,
			ProjectionWorkers: workers,
		},
	}, nil
}

// ParseFees parses a fee table of the form "Bitcoin=0.02,Gold Bullion=0.005".
func ParseFees(raw string) (map[string]decimal.Decimal, error) {
	fees := make(map[string]decimal.Decimal)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, rate, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: GAME_FEES entry %q", ErrInvalid, entry)
		}
		r, err := decimal.NewFromString(strings.TrimSpace(rate))
		if err != nil || !validRate(r) {
			return nil, fmt.Errorf("%w: GAME_FEES rate for %q", ErrInvalid, name)
		}
		fees[name] = r
	}
	return fees, nil
}

func decimalKey(v *viper.Viper, key string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return d, nil
}

func validRate(r decimal.Decimal) bool {
	return !r.IsNegative() && r.LessThan(decimal.NewFromInt(1))
}
