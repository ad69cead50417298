package api

import (
	"net/http"
)

func (h *Handler) GetParticipant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := h.participants.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toParticipantResponse(p))
}

type submitProofRequest struct {
	FID       int64  `json:"fid"`
	ProofData string `json:"proof_data"`
}

func (h *Handler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req submitProofRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, err := h.users.GetByFID(r.Context(), req.FID)
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := h.participants.SubmitProof(r.Context(), id, user.ID, req.ProofData)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toParticipantResponse(p))
}

type manualVerifyRequest struct {
	FID      int64  `json:"fid"`
	Approved bool   `json:"approved"`
	Notes    string `json:"notes"`
}

func (h *Handler) ManualVerify(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req manualVerifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, err := h.users.GetByFID(r.Context(), req.FID)
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := h.participants.ManualVerify(r.Context(), id, user.ID, req.Approved, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toParticipantResponse(p))
}

func (h *Handler) ReVerify(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req requesterRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, err := h.users.GetByFID(r.Context(), req.FID)
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := h.participants.ReVerify(r.Context(), id, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toParticipantResponse(p))
}

func (h *Handler) RequestClaim(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req requesterRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, err := h.users.GetByFID(r.Context(), req.FID)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.participants.RequestClaim(r.Context(), id, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{
		Participant:     toParticipantResponse(result.Participant),
		Signature:       result.Signature,
		RewardAmount:    result.RewardAmount,
		OnChainTaskID:   result.OnChainTaskID,
		ContractAddress: result.ContractAddress,
		ChainID:         result.ChainID,
		CallData:        result.CallData,
		Sponsorship:     result.Sponsorship,
	})
}

type confirmClaimRequest struct {
	FID    int64  `json:"fid"`
	TxHash string `json:"tx_hash"`
}

func (h *Handler) ConfirmClaim(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req confirmClaimRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, err := h.users.GetByFID(r.Context(), req.FID)
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := h.participants.ConfirmClaim(r.Context(), id, user.ID, req.TxHash)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toParticipantResponse(p))
}
