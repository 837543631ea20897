package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

type Config struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`

	RedisURL  string `mapstructure:"redis_url"`
	RedisPass string `mapstructure:"redis_pass"`
	RedisDB   int    `mapstructure:"redis_db"`

	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTTTL    time.Duration `mapstructure:"jwt_ttl"`

	StartingBalance float64       `mapstructure:"starting_balance"`
	DefaultBet      float64       `mapstructure:"default_bet"`
	SettleDelay     time.Duration `mapstructure:"settle_delay"`
	// Ledgers idle this long are flushed and dropped from memory; 0 disables.
	LedgerIdleTTL   time.Duration `mapstructure:"ledger_idle_ttl"`

	// Wallet display collaborator; disabled when RPCURL is empty.
	RPCURL               string        `mapstructure:"rpc_url"`
	WalletAddress        string        `mapstructure:"wallet_address"`
	WalletRefreshTimeout time.Duration `mapstructure:"wallet_refresh_timeout"`
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("port", "8080")
	v.SetDefault("env", "development")
	v.SetDefault("redis_url", "localhost:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("jwt_ttl", "24h")
	v.SetDefault("starting_balance", 1000)
	v.SetDefault("default_bet", 10)
	v.SetDefault("settle_delay", "1s")
	v.SetDefault("ledger_idle_ttl", "30m")
	v.SetDefault("wallet_refresh_timeout", "5s")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindings := map[string]string{
		"port":                   "PORT",
		"env":                    "APP_ENV",
		"redis_url":              "REDIS_URL",
		"redis_pass":             "REDIS_PASSWORD",
		"redis_db":               "REDIS_DB",
		"jwt_secret":             "JWT_SECRET",
		"jwt_ttl":                "JWT_TTL",
		"starting_balance":       "STARTING_BALANCE",
		"default_bet":            "DEFAULT_BET",
		"settle_delay":           "SETTLE_DELAY",
		"ledger_idle_ttl":        "LEDGER_IDLE_TTL",
		"rpc_url":                "RPC_URL",
		"wallet_address":         "WALLET_ADDRESS",
		"wallet_refresh_timeout": "WALLET_REFRESH_TIMEOUT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("required config missing: JWT_SECRET")
	}
	if c.StartingBalance <= 0 {
		return fmt.Errorf("STARTING_BALANCE must be positive, got %v", c.StartingBalance)
	}
	if c.DefaultBet < 0 {
		return fmt.Errorf("DEFAULT_BET must not be negative, got %v", c.DefaultBet)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("SETTLE_DELAY must not be negative, got %s", c.SettleDelay)
	}
	if c.LedgerIdleTTL < 0 {
		return fmt.Errorf("LEDGER_IDLE_TTL must not be negative, got %s", c.LedgerIdleTTL)
	}
	if c.WalletAddress != "" && !common.IsHexAddress(c.WalletAddress) {
		return fmt.Errorf("WALLET_ADDRESS is not a hex address: %s", c.WalletAddress)
	}
	if c.RPCURL != "" && c.WalletAddress == "" {
		return fmt.Errorf("required config missing: WALLET_ADDRESS (RPC_URL is set)")
	}
	return nil
}

// WalletEnabled reports whether the on-chain balance collaborator should run.
func (c *Config) WalletEnabled() bool {
	return c.RPCURL != "" && c.WalletAddress != ""
}
