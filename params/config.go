// Package params loads the crank's configuration: the RPC endpoint, the
// payer keypair path, and the set of markets to crank. Grounded on
// Synnergy's pkg/config/config.go for the viper wiring and on
// original_source/src/config.rs for the field set.
package params

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// MarketConfig names one market to crank and the wallets its
// ConsumeEvents instruction credits.
type MarketConfig struct {
	Name          string `mapstructure:"name" json:"name"`
	MarketAccount string `mapstructure:"market_account" json:"market_account"`
	CoinWallet    string `mapstructure:"coin_wallet" json:"coin_wallet"`
	PcWallet      string `mapstructure:"pc_wallet" json:"pc_wallet"`
}

// Config is the crank's full runtime configuration.
type Config struct {
	HTTPRPCURL string `mapstructure:"http_rpc_url" json:"http_rpc_url"`
	WSRPCURL   string `mapstructure:"ws_rpc_url" json:"ws_rpc_url"`
	KeyPath    string `mapstructure:"key_path" json:"key_path"`
	LogFile    string `mapstructure:"log_file" json:"log_file"`
	DebugLog   bool   `mapstructure:"debug_log" json:"debug_log"`

	Markets []MarketConfig `mapstructure:"markets" json:"markets"`
}

// Default mirrors original_source's Configuration::default(): the
// mainnet Project Serum RPC endpoints and no markets configured.
func Default() Config {
	return Config{
		HTTPRPCURL: "https://solana-api.projectserum.com",
		WSRPCURL:   "wss://solana-api.projectserum.com",
	}
}

// Load reads path (YAML or JSON, by extension) into a Config seeded with
// Default. An empty path returns the default configuration. A .env file
// in the working directory, if present, is loaded first so CRANK_-prefixed
// environment variables can override individual fields.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		return &cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("CRANK")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	return &cfg, nil
}
