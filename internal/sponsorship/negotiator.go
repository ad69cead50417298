package sponsorship

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/castquest/castquest-backend/internal/config"
)

// Operation describes the unsigned claim call a participant wants
// sponsored.
type Operation struct {
	Sender   string `json:"sender"`
	To       string `json:"to"`
	CallData string `json:"callData"`
	ChainID  int64  `json:"chainId"`
}

// Result is attached to a claim authorization. Sponsored=false means the
// claimant pays their own gas; that is never an error.
type Result struct {
	Sponsored            bool   `json:"sponsored"`
	PaymasterAndData     string `json:"paymasterAndData,omitempty"`
	VerificationGasLimit string `json:"verificationGasLimit,omitempty"`
	CallGasLimit         string `json:"callGasLimit,omitempty"`
	PreVerificationGas   string `json:"preVerificationGas,omitempty"`
}

// Negotiator asks a paymaster service to sponsor claim transactions.
// Sponsorship is strictly additive: a missing endpoint, transport error or
// malformed response all degrade to an unsponsored result.
type Negotiator struct {
	httpClient *http.Client
	endpoint   string
	policyID   string
}

func NewNegotiator(endpoint, policyID string) *Negotiator {
	return &Negotiator{
		httpClient: &http.Client{Timeout: config.PaymasterTimeout},
		endpoint:   endpoint,
		policyID:   policyID,
	}
}

func (n *Negotiator) Negotiate(ctx context.Context, op Operation) Result {
	if n.endpoint == "" {
		return Result{}
	}

	result, err := n.sponsor(ctx, op)
	if err != nil {
		slog.Debug("sponsorship unavailable, claimant pays gas", "error", err)
		return Result{}
	}
	return result
}

func (n *Negotiator) sponsor(ctx context.Context, op Operation) (Result, error) {
	payload, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "pm_sponsorUserOperation",
		"params":  []any{op, n.policyID},
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("paymaster returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	var rpcResp struct {
		Result struct {
			PaymasterAndData     string `json:"paymasterAndData"`
			VerificationGasLimit string `json:"verificationGasLimit"`
			CallGasLimit         string `json:"callGasLimit"`
			PreVerificationGas   string `json:"preVerificationGas"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return Result{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return Result{}, fmt.Errorf("paymaster error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if rpcResp.Result.PaymasterAndData == "" {
		return Result{}, fmt.Errorf("paymaster declined operation")
	}

	return Result{
		Sponsored:            true,
		PaymasterAndData:     rpcResp.Result.PaymasterAndData,
		VerificationGasLimit: rpcResp.Result.VerificationGasLimit,
		CallGasLimit:         rpcResp.Result.CallGasLimit,
		PreVerificationGas:   rpcResp.Result.PreVerificationGas,
	}, nil
}
