package ethereum

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"faktoro.io/faktoro-relay/internal/chains"
	"faktoro.io/faktoro-relay/pkg/errors"
)

// Dialer hands out one chain client per chain id, using the registry's rpc
// endpoint unless overridden in configuration.
type Dialer struct {
	lock      sync.Mutex
	overrides map[int]string
	clients   map[int]*ethclient.Client
}

func NewDialer(rpcOverrides map[int]string) *Dialer {
	return &Dialer{
		overrides: rpcOverrides,
		clients:   map[int]*ethclient.Client{},
	}
}

func (d *Dialer) rpcURL(chainID int) (string, error) {
	if url := d.overrides[chainID]; url != "" {
		return url, nil
	}
	network := chains.Resolve(chainID)
	if network.RPCURL == "" {
		return "", errors.Errorf("no rpc endpoint for chain %v (%v)", chainID, network.Name)
	}
	return network.RPCURL, nil
}

// Client returns a cached ethclient for the chain.
func (d *Dialer) Client(chainID int) (*ethclient.Client, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if client := d.clients[chainID]; client != nil {
		return client, nil
	}
	url, err := d.rpcURL(chainID)
	if err != nil {
		return nil, err
	}
	client, err := ethclient.Dial(url)
	if err != nil {
		return nil, errors.Wrapf(err, "dial chain %v rpc", chainID)
	}
	d.clients[chainID] = client
	return client, nil
}

// Reader adapts the chain client to the polling capability: a missing receipt
// is reported as nil, not an error.
func (d *Dialer) Reader(chainID int) (ChainReader, error) {
	client, err := d.Client(chainID)
	if err != nil {
		return nil, err
	}
	return &receiptReader{client: client}, nil
}

type receiptReader struct {
	client *ethclient.Client
}

func (r *receiptReader) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, err := r.client.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "fetch transaction receipt")
	}
	return receipt, nil
}
