package config

import "time"

const (
	// Task limits
	MaxParticipantsLimit = 1000
	MaxTitleLen          = 200
	MaxDescriptionLen    = 2000
	MaxProofLen          = 4096

	// Reputation granted per completed task
	ReputationPerTask = 10

	// External call timeouts
	ProviderTimeout  = 15 * time.Second
	PaymasterTimeout = 10 * time.Second

	// Escrow transactions wait this long to be mined before the task
	// creation is abandoned
	EscrowMinedTimeout = 2 * time.Minute

	// Token decimals used for display-only amounts in API responses
	RewardDisplayDecimals = 18

	// HTTP server
	ReadTimeout     = 10 * time.Second
	WriteTimeout    = 30 * time.Second
	ShutdownTimeout = 15 * time.Second

	// Pagination
	DefaultPageSize = 20
	MaxPageSize     = 100
)
