package ethereum

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"faktoro.io/faktoro-relay/pkg/errors"
	"faktoro.io/faktoro-relay/pkg/log"
)

const fallbackGasLimit = 1_500_000

// KeyWallet is a development stand-in for the browser-extension wallet: a
// single hex private key signing legacy transactions against one chain.
type KeyWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	dialer  *Dialer

	lock             sync.Mutex
	chainID          int
	accountListeners []func(common.Address)
	chainListeners   []func(int)
}

func NewKeyWallet(privateKeyHex string, chainID int, dialer *Dialer) (*KeyWallet, error) {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, errors.Wrap(err, "parse owner private key")
	}
	return &KeyWallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		dialer:  dialer,
		chainID: chainID,
	}, nil
}

func (w *KeyWallet) Address() common.Address {
	return w.address
}

func (w *KeyWallet) ChainID() int {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.chainID
}

// SwitchChain changes the wallet's selected chain and notifies subscribers,
// mirroring the extension's chainChanged event.
func (w *KeyWallet) SwitchChain(chainID int) {
	w.lock.Lock()
	w.chainID = chainID
	listeners := append([]func(int){}, w.chainListeners...)
	w.lock.Unlock()
	for _, fn := range listeners {
		fn(chainID)
	}
}

func (w *KeyWallet) SubscribeAccountChanges(fn func(common.Address)) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.accountListeners = append(w.accountListeners, fn)
}

func (w *KeyWallet) SubscribeChainChanges(fn func(chainID int)) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.chainListeners = append(w.chainListeners, fn)
}

// SignMessage signs an EIP-191 personal message, returning the signature with
// yellow-paper V (27/28) as wallets do.
func (w *KeyWallet) SignMessage(_ context.Context, msg []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), w.key)
	if err != nil {
		return "", errors.Wrap(err, "sign personal message")
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

func (w *KeyWallet) SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error) {
	if tx.From != (common.Address{}) && tx.From != w.address {
		return common.Hash{}, errors.Errorf("from %v is not the wallet account %v", tx.From.Hex(), w.address.Hex())
	}
	chainID := w.ChainID()
	client, err := w.dialer.Client(chainID)
	if err != nil {
		return common.Hash{}, err
	}
	nonce, err := client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "fetch pending nonce")
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "suggest gas price")
	}
	value := tx.Value
	if value == nil {
		value = big.NewInt(0)
	}
	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From:  w.address,
		To:    tx.To,
		Value: value,
		Data:  tx.Data,
	})
	if err != nil {
		log.Warnf("gas estimation failed, using fallback limit: %v", err)
		gasLimit = fallbackGasLimit
	}
	signed, err := types.SignNewTx(w.key, types.NewEIP155Signer(big.NewInt(int64(chainID))), &types.LegacyTx{
		Nonce:    nonce,
		To:       tx.To,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     tx.Data,
	})
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "sign transaction")
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, errors.Wrap(err, "broadcast transaction")
	}
	return signed.Hash(), nil
}
