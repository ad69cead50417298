package ledger

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds the escrow authority key and issues claim authorizations.
// A signature binds (onChainID, claimant, amount) so it cannot be replayed
// against a different task, address or reward. Signing is deterministic:
// the same tuple always yields the same signature, so retries are safe.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewSigner(privateKeyHex string) (*Signer, error) {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid authority key: %w", err)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (s *Signer) Address() common.Address {
	return s.address
}

// Sign produces the authorization the contract accepts for a claim:
// an EIP-191 signature over keccak256(taskID ‖ claimant ‖ amount),
// matching abi.encodePacked(uint256, address, uint256) on-chain.
func (s *Signer) Sign(onChainID *big.Int, claimant string, amount *big.Int) (string, error) {
	addr, err := parseAddress(claimant)
	if err != nil {
		return "", err
	}

	digest := prefixedClaimHash(onChainID, addr, amount)
	sig, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return "", fmt.Errorf("sign claim: %w", err)
	}

	// Recovery id adjustment expected by ecrecover (v = sig[64] + 27)
	sig[64] += 27

	return hexutil.Encode(sig), nil
}

// Verify mirrors the contract's own check: recover the signer from the
// claim digest and compare it to the authority address.
func (s *Signer) Verify(onChainID *big.Int, claimant string, amount *big.Int, signature string) (bool, error) {
	addr, err := parseAddress(claimant)
	if err != nil {
		return false, err
	}

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return false, fmt.Errorf("invalid signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return false, fmt.Errorf("invalid signature length %d", len(sig))
	}
	if sig[64] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[64] -= 27
	}

	digest := prefixedClaimHash(onChainID, addr, amount)
	pubKeyRaw, err := crypto.Ecrecover(digest.Bytes(), sig)
	if err != nil {
		return false, fmt.Errorf("recover public key: %w", err)
	}
	pubKey, err := crypto.UnmarshalPubkey(pubKeyRaw)
	if err != nil {
		return false, fmt.Errorf("unmarshal public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey) == s.address, nil
}

func prefixedClaimHash(onChainID *big.Int, claimant common.Address, amount *big.Int) common.Hash {
	packed := make([]byte, 0, 84)
	packed = append(packed, common.LeftPadBytes(onChainID.Bytes(), 32)...)
	packed = append(packed, claimant.Bytes()...)
	packed = append(packed, common.LeftPadBytes(amount.Bytes(), 32)...)
	inner := crypto.Keccak256(packed)

	return crypto.Keccak256Hash([]byte("\x19Ethereum Signed Message:\n32"), inner)
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid claimant address %q", s)
	}
	return common.HexToAddress(s), nil
}
