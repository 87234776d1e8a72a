package config

import (
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/chi-demo/app"
)

// Persistence backends for the event log.
const (
	PersistenceInMem    = "inmem"
	PersistenceFile     = "file"
	PersistencePostgres = "postgres"
)

// ChainConfig describes the execution substrate and the factory it boots.
type ChainConfig struct {
	ChainID           uint64   `env:"PLUSER_CHAIN_ID" env-default:"31337"`
	FactoryOwner      string   `env:"PLUSER_FACTORY_OWNER" env-required:"true"`
	FactoryAddress    string   `env:"PLUSER_FACTORY_ADDRESS"`
	TwoFactorVerifier string   `env:"PLUSER_TWO_FACTOR_VERIFIER" env-required:"true"`
	AccountDeployers  []string `env:"PLUSER_ACCOUNT_DEPLOYERS" env-separator:","`
}

type EventLogConfig struct {
	Persistence string `env:"PLUSER_EVENTLOG_PERSISTENCE" env-default:"inmem"`
	Dir         string `env:"PLUSER_EVENTLOG_DIR" env-default:"./data/eventlog"`
}

type JwtConfig struct {
	Secret string `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
}

// Config is the pluserd process configuration.
type Config struct {
	LogLevel        string `env:"LOG_LEVEL" env-default:"info"`
	BaseURL         string `env:"PLUSER_BASE_URL" env-default:"http://localhost:8080"`
	AuditEnabled    bool   `env:"PLUSER_AUDIT_ENABLED" env-default:"true"`
	ChainConfig     ChainConfig
	EventLogConfig  EventLogConfig
	DatabaseConfig  DatabaseConfig
	JwtConfig       JwtConfig
	RateLimitConfig RateLimitConfig
	AppConfig       app.AppConfig
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	return Validate(
		func() ValidationErrors {
			return CollectErrors(
				RequireOneOf("LOG_LEVEL", strings.ToLower(c.LogLevel), []string{"debug", "info", "warn", "error"}),
				RequireMinLength("JWT_SECRET", c.JwtConfig.Secret, 16),
			)
		},
		c.ChainConfig.validate,
		c.EventLogConfig.validate,
		func() ValidationErrors {
			if c.EventLogConfig.Persistence != PersistencePostgres {
				return nil
			}
			return c.DatabaseConfig.validate()
		},
		c.RateLimitConfig.validate,
	)
}

func (c ChainConfig) validate() ValidationErrors {
	errs := CollectErrors(
		RequireGreaterThan("PLUSER_CHAIN_ID", int(c.ChainID), 0),
		RequireAddress("PLUSER_FACTORY_OWNER", c.FactoryOwner),
		RequireAddress("PLUSER_TWO_FACTOR_VERIFIER", c.TwoFactorVerifier),
		WhenSet(c.FactoryAddress, func() *ValidationError {
			return RequireAddress("PLUSER_FACTORY_ADDRESS", c.FactoryAddress)
		}),
	)
	for i, d := range c.AccountDeployers {
		if err := RequireAddress(fmt.Sprintf("PLUSER_ACCOUNT_DEPLOYERS[%d]", i), d); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

func (c EventLogConfig) validate() ValidationErrors {
	return CollectErrors(
		RequireOneOf("PLUSER_EVENTLOG_PERSISTENCE", c.Persistence, []string{PersistenceInMem, PersistenceFile, PersistencePostgres}),
		func() *ValidationError {
			if c.Persistence != PersistenceFile {
				return nil
			}
			return RequireNonEmpty("PLUSER_EVENTLOG_DIR", c.Dir)
		}(),
	)
}

// ChainIDBig returns the chain id as used in typed-data domains.
func (c ChainConfig) ChainIDBig() *big.Int {
	return new(big.Int).SetUint64(c.ChainID)
}

func (c ChainConfig) Owner() common.Address {
	return common.HexToAddress(c.FactoryOwner)
}

func (c ChainConfig) Verifier() common.Address {
	return common.HexToAddress(c.TwoFactorVerifier)
}

// Factory returns the configured factory address, zero when it should be
// derived from the owner.
func (c ChainConfig) Factory() common.Address {
	if c.FactoryAddress == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.FactoryAddress)
}

func (c ChainConfig) Deployers() []common.Address {
	out := make([]common.Address, 0, len(c.AccountDeployers))
	for _, d := range c.AccountDeployers {
		out = append(out, common.HexToAddress(d))
	}
	return out
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
