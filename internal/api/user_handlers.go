package api

import (
	"net/http"
)

type registerUserRequest struct {
	FID           int64  `json:"fid"`
	Username      string `json:"username"`
	WalletAddress string `json:"wallet_address"`
}

func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Register(r.Context(), req.FID, req.Username, req.WalletAddress)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	fid, err := pathID(r, "fid")
	if err != nil {
		writeError(w, err)
		return
	}
	user, err := h.users.GetByFID(r.Context(), fid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}
