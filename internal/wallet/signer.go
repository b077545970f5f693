package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	clierr "github.com/SiphoYawe/mina-cli/internal/errors"
	"github.com/SiphoYawe/mina-cli/internal/gateway"
)

// supportedChainIDs are the source networks bridging is allowed from, plus
// the HyperEVM destinations (999 mainnet, 998 testnet).
var supportedChainIDs = []int64{1, 10, 56, 137, 998, 999, 8453, 42161, 43114}

// Signer signs bridge transactions with an in-memory private key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner builds a signer for a bridge starting on chainID. Chains
// outside the supported set are rejected before any key material is parsed.
func NewSigner(key string, chainID int64) (*Signer, error) {
	if !IsSupportedChain(chainID) {
		return nil, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("chain id %d is not supported (supported: %s)", chainID, supportedChainList()))
	}
	normalized, err := Normalize(key)
	if err != nil {
		return nil, err
	}
	pk, err := crypto.HexToECDSA(normalized)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInvalidKey, "parse private key", err)
	}
	return &Signer{privateKey: pk, address: crypto.PubkeyToAddress(pk.PublicKey)}, nil
}

func IsSupportedChain(chainID int64) bool {
	for _, id := range supportedChainIDs {
		if id == chainID {
			return true
		}
	}
	return false
}

func supportedChainList() string {
	parts := make([]string, len(supportedChainIDs))
	for i, id := range supportedChainIDs {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

func (s *Signer) Address() common.Address {
	return s.address
}

// SignTx signs tx for chainID with EIP-155 replay protection.
func (s *Signer) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if s == nil || s.privateKey == nil {
		return nil, errors.New("signer is not initialized")
	}
	signer := types.LatestSignerForChainID(chainID)
	return types.SignTx(tx, signer, s.privateKey)
}

// SendTransaction signs tx and hands it to the backend. Nonce, gas and fee
// fields are forwarded exactly as given; the gateway plan supplies them.
func (s *Signer) SendTransaction(ctx context.Context, backend gateway.TxBroadcaster, tx *types.Transaction) (common.Hash, error) {
	signed, err := s.SignTx(tx.ChainId(), tx)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeExecution, "sign transaction", err)
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeExecution, "broadcast transaction", err)
	}
	return signed.Hash(), nil
}
