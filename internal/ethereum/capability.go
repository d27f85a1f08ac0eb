package ethereum

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxRequest is one transaction to be signed and broadcast by the owner wallet.
// A nil To means contract creation.
type TxRequest struct {
	From  common.Address
	To    *common.Address
	Value *big.Int
	Data  []byte
}

// Wallet is the capability the surrounding wallet (browser extension, local
// dev key, hardware signer) must provide. The core never touches key material
// through anything but this interface.
type Wallet interface {
	// Address returns the currently selected owner account.
	Address() common.Address
	// SignMessage signs a personal message (EIP-191 prefixed) and returns the
	// 65-byte signature hex encoded with yellow-paper V (27/28).
	SignMessage(ctx context.Context, msg []byte) (string, error)
	// SendTransaction signs and broadcasts tx, returning the transaction hash.
	SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error)
	// SubscribeAccountChanges registers a callback fired when the selected
	// account changes.
	SubscribeAccountChanges(fn func(common.Address))
	// SubscribeChainChanges registers a callback fired when the selected
	// chain changes.
	SubscribeChainChanges(fn func(chainID int))
}

// ChainReader is the read-only chain capability the core needs: receipt
// lookups during deployment polling.
type ChainReader interface {
	// TransactionReceipt returns nil with no error while the transaction is
	// still pending.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}
