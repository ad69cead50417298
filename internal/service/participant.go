package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/castquest/castquest-backend/internal/config"
	"github.com/castquest/castquest-backend/internal/domain"
	"github.com/castquest/castquest-backend/internal/repository"
	"github.com/castquest/castquest-backend/internal/sponsorship"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ParticipantService owns the participant lifecycle and the two-phase
// claim protocol: verification (auto or manual) moves PENDING to VERIFIED,
// RequestClaim issues the signature, and ConfirmClaim records settlement.
// Status never moves backward; every transition checks the current state
// first and fails loudly instead of no-op-ing.
type ParticipantService struct {
	store    repository.Store
	ledger   Ledger
	verifier Verifier
	sponsor  Sponsor
}

func NewParticipantService(store repository.Store, ledger Ledger, verifier Verifier, sponsor Sponsor) *ParticipantService {
	return &ParticipantService{store: store, ledger: ledger, verifier: verifier, sponsor: sponsor}
}

func (s *ParticipantService) Get(ctx context.Context, id int64) (*domain.Participant, error) {
	return s.store.GetParticipant(ctx, id)
}

func (s *ParticipantService) ListByTask(ctx context.Context, taskID int64) ([]*domain.Participant, error) {
	return s.store.ListParticipantsByTask(ctx, taskID)
}

// SubmitProof records the attestation payload and immediately attempts
// auto-verification. A failed auto-check keeps the participant PENDING so
// manual review or a retry can still verify them; only an explicit
// decision ever sets REJECTED.
func (s *ParticipantService) SubmitProof(ctx context.Context, participantID, requesterID int64, proofData string) (*domain.Participant, error) {
	if len(proofData) > config.MaxProofLen {
		return nil, fmt.Errorf("%w: proof too large", domain.ErrValidation)
	}

	p, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if p.UserID != requesterID {
		return nil, fmt.Errorf("%w: not your participation", domain.ErrForbidden)
	}
	if p.Status != domain.ParticipantStatusPending {
		return nil, fmt.Errorf("%w: proof can only be submitted while pending", domain.ErrInvalidState)
	}

	if err := s.store.SetProof(ctx, participantID, proofData); err != nil {
		return nil, err
	}

	s.autoVerify(ctx, p)
	return s.store.GetParticipant(ctx, participantID)
}

// ManualVerify lets the task creator approve or reject a pending
// participant.
func (s *ParticipantService) ManualVerify(ctx context.Context, participantID, requesterID int64, approved bool, notes string) (*domain.Participant, error) {
	p, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	task, err := s.store.GetTask(ctx, p.TaskID)
	if err != nil {
		return nil, err
	}
	if task.CreatorID != requesterID {
		return nil, fmt.Errorf("%w: only the task creator can verify", domain.ErrForbidden)
	}
	if p.Status != domain.ParticipantStatusPending {
		return nil, fmt.Errorf("%w: participant is not pending", domain.ErrInvalidState)
	}

	to := domain.ParticipantStatusRejected
	if approved {
		to = domain.ParticipantStatusVerified
	}
	if err := s.store.SetParticipantStatus(ctx, participantID, domain.ParticipantStatusPending, to, notes); err != nil {
		return nil, err
	}
	return s.store.GetParticipant(ctx, participantID)
}

// ReVerify re-runs auto-verification. It is idempotent: already VERIFIED
// participants are returned unchanged, PENDING ones get another attempt.
func (s *ParticipantService) ReVerify(ctx context.Context, participantID, requesterID int64) (*domain.Participant, error) {
	p, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	task, err := s.store.GetTask(ctx, p.TaskID)
	if err != nil {
		return nil, err
	}
	if p.UserID != requesterID && task.CreatorID != requesterID {
		return nil, fmt.Errorf("%w: not your participation", domain.ErrForbidden)
	}

	switch p.Status {
	case domain.ParticipantStatusVerified:
		return p, nil
	case domain.ParticipantStatusPending:
		s.autoVerify(ctx, p)
		return s.store.GetParticipant(ctx, participantID)
	default:
		return nil, fmt.Errorf("%w: cannot re-verify from %s", domain.ErrInvalidState, p.Status)
	}
}

// autoVerify promotes PENDING to VERIFIED when the identity provider
// confirms the action. Provider errors leave the participant untouched.
func (s *ParticipantService) autoVerify(ctx context.Context, p *domain.Participant) {
	task, err := s.store.GetTask(ctx, p.TaskID)
	if err != nil {
		slog.Error("auto-verify: task lookup failed", "task_id", p.TaskID, "error", err)
		return
	}
	user, err := s.store.GetUser(ctx, p.UserID)
	if err != nil {
		slog.Error("auto-verify: user lookup failed", "user_id", p.UserID, "error", err)
		return
	}

	if !s.verifier.Verify(ctx, task.TaskType, task.TargetData, user.FID) {
		return
	}

	err = s.store.SetParticipantStatus(ctx, p.ID,
		domain.ParticipantStatusPending, domain.ParticipantStatusVerified, "auto-verified")
	if err != nil {
		// A concurrent manual decision may have won the transition.
		slog.Warn("auto-verify transition lost", "participant_id", p.ID, "error", err)
	}
}

// ClaimResult is returned by RequestClaim; the caller submits the
// settlement transaction themselves and reports back via ConfirmClaim.
type ClaimResult struct {
	Participant     *domain.Participant
	Signature       string
	RewardAmount    domain.BigInt
	OnChainTaskID   domain.BigInt
	ContractAddress string
	ChainID         int64
	CallData        string
	Sponsorship     sponsorship.Result
}

// RequestClaim runs the claim-authorization protocol for a VERIFIED
// participant. Order matters: the on-chain duplicate check guards
// signature issuance, sponsorship is best-effort, and the signature is
// only returned once it is durably recorded. A second request after a
// signature exists fails; no second distinct signature is ever issued.
func (s *ParticipantService) RequestClaim(ctx context.Context, participantID, requesterID int64) (*ClaimResult, error) {
	p, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if p.UserID != requesterID {
		return nil, fmt.Errorf("%w: not your participation", domain.ErrForbidden)
	}
	if p.Status != domain.ParticipantStatusVerified {
		return nil, fmt.Errorf("%w: claim requires verified status, have %s", domain.ErrInvalidState, p.Status)
	}
	if p.SignatureIssued() || p.Claimed() {
		return nil, fmt.Errorf("%w: claim already authorized", domain.ErrInvalidState)
	}

	task, err := s.store.GetTask(ctx, p.TaskID)
	if err != nil {
		return nil, err
	}
	if task.OnChainID == nil {
		return nil, fmt.Errorf("%w: task has no on-chain escrow", domain.ErrInvalidState)
	}
	user, err := s.store.GetUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if user.WalletAddress == "" {
		return nil, fmt.Errorf("%w: user has no wallet address", domain.ErrValidation)
	}

	claimed, err := s.ledger.HasClaimed(ctx, task.OnChainID, user.WalletAddress)
	if err != nil {
		return nil, err
	}
	if claimed {
		return nil, domain.ErrAlreadyClaimedOnChain
	}

	signature, err := s.ledger.Sign(task.OnChainID, user.WalletAddress, task.RewardPerParticipant)
	if err != nil {
		return nil, fmt.Errorf("sign claim: %w", err)
	}

	// Pre-flight: mirror the contract's own check before handing the
	// signature out.
	valid, err := s.ledger.VerifySignature(task.OnChainID, user.WalletAddress, task.RewardPerParticipant, signature)
	if err != nil {
		return nil, fmt.Errorf("verify signature: %w", err)
	}
	if !valid {
		return nil, fmt.Errorf("issued signature failed pre-flight verification")
	}

	sponsorResult := s.negotiateSponsorship(ctx, task, user, signature)

	// Persist before returning: the record, not this response, is the
	// authority on whether a signature was issued.
	if err := s.store.SetClaimAuthorization(ctx, participantID, signature, task.RewardPerParticipant); err != nil {
		return nil, err
	}

	updated, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}

	slog.Info("claim authorized",
		"participant_id", participantID,
		"on_chain_id", task.OnChainID.String(),
		"reward", task.RewardPerParticipant.String(),
		"sponsored", sponsorResult.Sponsored,
	)

	callData, err := s.ledger.ClaimCallData(task.OnChainID, task.RewardPerParticipant, signature)
	if err != nil {
		return nil, fmt.Errorf("build claim calldata: %w", err)
	}

	return &ClaimResult{
		Participant:     updated,
		Signature:       signature,
		RewardAmount:    domain.NewBigInt(task.RewardPerParticipant),
		OnChainTaskID:   domain.NewBigInt(task.OnChainID),
		ContractAddress: s.ledger.ContractAddress(),
		ChainID:         s.ledger.ChainID(),
		CallData:        callData,
		Sponsorship:     sponsorResult,
	}, nil
}

func (s *ParticipantService) negotiateSponsorship(ctx context.Context, task *domain.Task, user *domain.User, signature string) sponsorship.Result {
	callData, err := s.ledger.ClaimCallData(task.OnChainID, task.RewardPerParticipant, signature)
	if err != nil {
		slog.Debug("sponsorship skipped: calldata build failed", "error", err)
		return sponsorship.Result{}
	}
	return s.sponsor.Negotiate(ctx, sponsorship.Operation{
		Sender:   user.WalletAddress,
		To:       s.ledger.ContractAddress(),
		CallData: callData,
		ChainID:  s.ledger.ChainID(),
	})
}

// ConfirmClaim records the settlement transaction hash reported by the
// claimant and marks the participant CLAIMED, updating the user's
// aggregates in the same store transaction. The hash is taken on the
// caller's word; the ledger is not re-polled here.
func (s *ParticipantService) ConfirmClaim(ctx context.Context, participantID, requesterID int64, txHash string) (*domain.Participant, error) {
	if !txHashPattern.MatchString(txHash) {
		return nil, fmt.Errorf("%w: malformed transaction hash", domain.ErrValidation)
	}

	p, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if p.UserID != requesterID {
		return nil, fmt.Errorf("%w: not your participation", domain.ErrForbidden)
	}
	if !p.SignatureIssued() {
		return nil, fmt.Errorf("%w: no claim authorization issued", domain.ErrInvalidState)
	}
	if p.Claimed() {
		return nil, fmt.Errorf("%w: claim already confirmed", domain.ErrInvalidState)
	}

	confirmed, err := s.store.ConfirmClaim(ctx, participantID, txHash, config.ReputationPerTask)
	if err != nil {
		return nil, err
	}

	slog.Info("claim confirmed",
		"participant_id", participantID,
		"tx_hash", txHash,
		"reward", confirmed.RewardAmount.String(),
	)
	return confirmed, nil
}
