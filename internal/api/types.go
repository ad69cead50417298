package api

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/castquest/castquest-backend/internal/config"
	"github.com/castquest/castquest-backend/internal/domain"
	"github.com/castquest/castquest-backend/internal/sponsorship"
)

type taskResponse struct {
	ID                   int64                   `json:"id"`
	CreatorID            int64                   `json:"creator_id"`
	Title                string                  `json:"title"`
	Description          string                  `json:"description"`
	TaskType             domain.TaskType         `json:"task_type"`
	TargetData           string                  `json:"target_data"`
	RewardPerParticipant domain.BigInt           `json:"reward_per_participant"`
	RewardDisplay        string                  `json:"reward_display"`
	MaxParticipants      int                     `json:"max_participants"`
	CurrentParticipants  int                     `json:"current_participants"`
	TotalFunding         domain.BigInt           `json:"total_funding"`
	OnChainID            *domain.BigInt          `json:"on_chain_id,omitempty"`
	SettlementRef        string                  `json:"settlement_ref,omitempty"`
	Status               domain.TaskStatus       `json:"status"`
	ExpiresAt            time.Time               `json:"expires_at"`
	Requirements         taskRequirementsPayload `json:"requirements"`
	CreatedAt            time.Time               `json:"created_at"`
}

type taskRequirementsPayload struct {
	MinimumFollowers int  `json:"minimum_followers"`
	MustBeVerified   bool `json:"must_be_verified"`
}

func toTaskResponse(t *domain.Task) taskResponse {
	resp := taskResponse{
		ID:                   t.ID,
		CreatorID:            t.CreatorID,
		Title:                t.Title,
		Description:          t.Description,
		TaskType:             t.TaskType,
		TargetData:           t.TargetData,
		RewardPerParticipant: domain.NewBigInt(t.RewardPerParticipant),
		RewardDisplay:        displayAmount(t.RewardPerParticipant),
		MaxParticipants:      t.MaxParticipants,
		CurrentParticipants:  t.CurrentParticipants,
		TotalFunding:         domain.NewBigInt(t.TotalFunding),
		SettlementRef:        t.SettlementRef,
		Status:               t.Status,
		ExpiresAt:            t.ExpiresAt,
		Requirements: taskRequirementsPayload{
			MinimumFollowers: t.Requirements.MinimumFollowers,
			MustBeVerified:   t.Requirements.MustBeVerified,
		},
		CreatedAt: t.CreatedAt,
	}
	if t.OnChainID != nil {
		id := domain.NewBigInt(t.OnChainID)
		resp.OnChainID = &id
	}
	return resp
}

type participantResponse struct {
	ID                int64                    `json:"id"`
	TaskID            int64                    `json:"task_id"`
	UserID            int64                    `json:"user_id"`
	Status            domain.ParticipantStatus `json:"status"`
	ProofSubmitted    bool                     `json:"proof_submitted"`
	VerificationNotes string                   `json:"verification_notes,omitempty"`
	RewardAmount      *domain.BigInt           `json:"reward_amount,omitempty"`
	ClaimSignature    string                   `json:"claim_signature,omitempty"`
	ClaimedAt         *time.Time               `json:"claimed_at,omitempty"`
	SettlementTxHash  string                   `json:"settlement_tx_hash,omitempty"`
	CreatedAt         time.Time                `json:"created_at"`
}

func toParticipantResponse(p *domain.Participant) participantResponse {
	resp := participantResponse{
		ID:                p.ID,
		TaskID:            p.TaskID,
		UserID:            p.UserID,
		Status:            p.Status,
		ProofSubmitted:    p.ProofSubmitted,
		VerificationNotes: p.VerificationNotes,
		ClaimSignature:    p.ClaimSignature,
		ClaimedAt:         p.ClaimedAt,
		SettlementTxHash:  p.SettlementTxHash,
		CreatedAt:         p.CreatedAt,
	}
	if p.RewardAmount != nil {
		amount := domain.NewBigInt(p.RewardAmount)
		resp.RewardAmount = &amount
	}
	return resp
}

type userResponse struct {
	ID                  int64         `json:"id"`
	FID                 int64         `json:"fid"`
	Username            string        `json:"username"`
	WalletAddress       string        `json:"wallet_address,omitempty"`
	TotalTasksCompleted int           `json:"total_tasks_completed"`
	TotalRewardsEarned  domain.BigInt `json:"total_rewards_earned"`
	RewardsDisplay      string        `json:"rewards_display"`
	Reputation          int           `json:"reputation"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:                  u.ID,
		FID:                 u.FID,
		Username:            u.Username,
		WalletAddress:       u.WalletAddress,
		TotalTasksCompleted: u.TotalTasksCompleted,
		TotalRewardsEarned:  domain.NewBigInt(u.TotalRewardsEarned),
		RewardsDisplay:      displayAmount(u.TotalRewardsEarned),
		Reputation:          u.Reputation,
	}
}

type claimResponse struct {
	Participant     participantResponse `json:"participant"`
	Signature       string              `json:"signature"`
	RewardAmount    domain.BigInt       `json:"reward_amount"`
	OnChainTaskID   domain.BigInt       `json:"on_chain_task_id"`
	ContractAddress string              `json:"contract_address"`
	ChainID         int64               `json:"chain_id"`
	CallData        string              `json:"call_data"`
	Sponsorship     sponsorship.Result  `json:"sponsorship"`
}

// displayAmount renders a smallest-unit integer in whole tokens for
// humans; on-wire amounts stay integer strings.
func displayAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -config.RewardDisplayDecimals).String()
}
