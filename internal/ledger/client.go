package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/castquest/castquest-backend/internal/config"
	"github.com/castquest/castquest-backend/internal/domain"
)

const questRewardsABI = `[
	{"type":"function","name":"createTask","stateMutability":"payable","inputs":[{"name":"maxParticipants","type":"uint256"}],"outputs":[{"name":"taskId","type":"uint256"}]},
	{"type":"function","name":"claim","stateMutability":"nonpayable","inputs":[{"name":"taskId","type":"uint256"},{"name":"amount","type":"uint256"},{"name":"signature","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"hasClaimed","stateMutability":"view","inputs":[{"name":"taskId","type":"uint256"},{"name":"claimant","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"event","name":"TaskCreated","inputs":[{"name":"taskId","type":"uint256","indexed":true},{"name":"creator","type":"address","indexed":true},{"name":"totalFunding","type":"uint256","indexed":false}],"anonymous":false}
]`

// Client wraps the QuestRewards escrow contract. The authority key held by
// the embedded Signer both funds escrows and authorizes claims; it never
// leaves this package.
type Client struct {
	eth      *ethclient.Client
	abi      abi.ABI
	contract common.Address
	chainID  *big.Int
	signer   *Signer
}

// EscrowResult identifies the on-chain task created for an escrow.
type EscrowResult struct {
	OnChainID     *big.Int
	SettlementRef string
}

func New(rpcURL, contractAddr, authorityKeyHex string, chainID int64) (*Client, error) {
	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("invalid contract address %q", contractAddr)
	}

	parsed, err := abi.JSON(strings.NewReader(questRewardsABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract ABI: %w", err)
	}

	signer, err := NewSigner(authorityKeyHex)
	if err != nil {
		return nil, err
	}

	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	return &Client{
		eth:      eth,
		abi:      parsed,
		contract: common.HexToAddress(contractAddr),
		chainID:  big.NewInt(chainID),
		signer:   signer,
	}, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

func (c *Client) ContractAddress() string { return c.contract.Hex() }
func (c *Client) ChainID() int64          { return c.chainID.Int64() }
func (c *Client) AuthorityAddress() string {
	return c.signer.Address().Hex()
}

// Escrow locks totalFunding for a new on-chain task. It must be called at
// most once per task; any failure means the task never went live and the
// caller discards its draft record.
func (c *Client) Escrow(ctx context.Context, maxParticipants int, totalFunding *big.Int) (*EscrowResult, error) {
	from := c.signer.Address()

	balance, err := c.eth.BalanceAt(ctx, from, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: balance lookup: %v", domain.ErrLedgerUnavailable, err)
	}
	if balance.Cmp(totalFunding) < 0 {
		return nil, domain.ErrInsufficientFunds
	}

	input, err := c.abi.Pack("createTask", big.NewInt(int64(maxParticipants)))
	if err != nil {
		return nil, fmt.Errorf("pack createTask: %w", err)
	}

	tx, err := c.buildAndSend(ctx, input, totalFunding)
	if err != nil {
		return nil, err
	}

	minedCtx, cancel := context.WithTimeout(ctx, config.EscrowMinedTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(minedCtx, c.eth, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: wait mined: %v", domain.ErrLedgerUnavailable, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: escrow transaction %s reverted", domain.ErrLedgerUnavailable, tx.Hash())
	}

	onChainID, err := c.taskIDFromReceipt(receipt)
	if err != nil {
		return nil, err
	}

	slog.Info("escrow confirmed",
		"on_chain_id", onChainID.String(),
		"total_funding", totalFunding.String(),
		"tx_hash", tx.Hash().Hex(),
	)

	return &EscrowResult{
		OnChainID:     onChainID,
		SettlementRef: tx.Hash().Hex(),
	}, nil
}

// Sign issues the claim authorization for (onChainID, claimant, amount).
func (c *Client) Sign(onChainID *big.Int, claimant string, amount *big.Int) (string, error) {
	return c.signer.Sign(onChainID, claimant, amount)
}

// VerifySignature is the pre-flight mirror of the contract's check.
func (c *Client) VerifySignature(onChainID *big.Int, claimant string, amount *big.Int, signature string) (bool, error) {
	return c.signer.Verify(onChainID, claimant, amount, signature)
}

// HasClaimed asks the contract whether this (task, claimant) pair was
// already paid. The contract is the single source of truth here.
func (c *Client) HasClaimed(ctx context.Context, onChainID *big.Int, claimant string) (bool, error) {
	addr, err := parseAddress(claimant)
	if err != nil {
		return false, err
	}

	input, err := c.abi.Pack("hasClaimed", onChainID, addr)
	if err != nil {
		return false, fmt.Errorf("pack hasClaimed: %w", err)
	}

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: input}, nil)
	if err != nil {
		return false, fmt.Errorf("%w: hasClaimed call: %v", domain.ErrLedgerUnavailable, err)
	}

	results, err := c.abi.Unpack("hasClaimed", out)
	if err != nil {
		return false, fmt.Errorf("unpack hasClaimed: %w", err)
	}
	claimed, ok := results[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected hasClaimed result %T", results[0])
	}
	return claimed, nil
}

// ClaimCallData builds the calldata a claimant submits to settle, used by
// the sponsorship negotiation.
func (c *Client) ClaimCallData(onChainID *big.Int, amount *big.Int, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("invalid signature: %w", err)
	}
	input, err := c.abi.Pack("claim", onChainID, amount, sig)
	if err != nil {
		return "", fmt.Errorf("pack claim: %w", err)
	}
	return hexutil.Encode(input), nil
}

func (c *Client) buildAndSend(ctx context.Context, input []byte, value *big.Int) (*types.Transaction, error) {
	from := c.signer.Address()

	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce lookup: %v", domain.ErrLedgerUnavailable, err)
	}

	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &c.contract,
		Value: value,
		Data:  input,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: gas estimate: %v", domain.ErrLedgerUnavailable, err)
	}

	tipCap, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: gas tip: %v", domain.ErrLedgerUnavailable, err)
	}
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: head block: %v", domain.ErrLedgerUnavailable, err)
	}
	feeCap := new(big.Int).Add(tipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &c.contract,
		Value:     value,
		Data:      input,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.signer.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("%w: send transaction: %v", domain.ErrLedgerUnavailable, err)
	}
	return signed, nil
}

func (c *Client) taskIDFromReceipt(receipt *types.Receipt) (*big.Int, error) {
	eventID := c.abi.Events["TaskCreated"].ID
	for _, log := range receipt.Logs {
		if log.Address != c.contract || len(log.Topics) < 2 || log.Topics[0] != eventID {
			continue
		}
		return new(big.Int).SetBytes(log.Topics[1].Bytes()), nil
	}
	return nil, fmt.Errorf("%w: TaskCreated event missing from receipt %s", domain.ErrLedgerUnavailable, receipt.TxHash)
}
