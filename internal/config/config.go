package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Core
	DatabaseURL string `env:"DATABASE_URL"`
	Port        int    `env:"PORT" envDefault:"8080"`

	// Farcaster identity provider
	NeynarAPIURL string `env:"NEYNAR_API_URL" envDefault:"https://api.neynar.com/v2/farcaster"`
	NeynarAPIKey string `env:"NEYNAR_API_KEY,required"`

	// Reward ledger
	RPCURL              string `env:"RPC_URL,required"`
	ChainID             int64  `env:"CHAIN_ID" envDefault:"8453"`
	RewardContract      string `env:"REWARD_CONTRACT_ADDRESS,required"`
	AuthorityPrivateKey string `env:"AUTHORITY_PRIVATE_KEY,required"`

	// Gas sponsorship (optional; claims degrade to claimant-pays-gas)
	PaymasterURL      string `env:"PAYMASTER_URL"`
	PaymasterPolicyID string `env:"PAYMASTER_POLICY_ID"`

	// CORS
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
