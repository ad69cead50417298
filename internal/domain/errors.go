package domain

import "errors"

var (
	ErrValidation            = errors.New("invalid input")
	ErrForbidden             = errors.New("forbidden")
	ErrTaskNotFound          = errors.New("task not found")
	ErrParticipantNotFound   = errors.New("participant not found")
	ErrUserNotFound          = errors.New("user not found")
	ErrInvalidState          = errors.New("operation not allowed in current state")
	ErrTaskNotActive         = errors.New("task is not active")
	ErrTaskFull              = errors.New("task has no remaining slots")
	ErrTaskExpired           = errors.New("task has expired")
	ErrAlreadyJoined         = errors.New("user already joined this task")
	ErrRequirementNotMet     = errors.New("task requirements not met")
	ErrAlreadyClaimedOnChain = errors.New("reward already claimed on chain")
	ErrInsufficientFunds     = errors.New("insufficient funds for escrow")
	ErrLedgerUnavailable     = errors.New("reward ledger unavailable")
	ErrProviderUnavailable   = errors.New("identity provider unavailable")
)

// Retryable reports whether the caller may safely retry the same request
// later. Everything else is rejected because of current state or input and
// will keep failing until the state changes.
func Retryable(err error) bool {
	return errors.Is(err, ErrLedgerUnavailable) || errors.Is(err, ErrProviderUnavailable)
}
