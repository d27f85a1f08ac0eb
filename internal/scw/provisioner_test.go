package scw

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"faktoro.io/faktoro-relay/internal/ethereum"
	"faktoro.io/faktoro-relay/pkg/errors"
)

type fakeWallet struct {
	address common.Address
	sent    []ethereum.TxRequest
	txHash  common.Hash
	sendErr error
}

func (w *fakeWallet) Address() common.Address { return w.address }

func (w *fakeWallet) SignMessage(ctx context.Context, msg []byte) (string, error) {
	return "0x00", nil
}

func (w *fakeWallet) SendTransaction(ctx context.Context, tx ethereum.TxRequest) (common.Hash, error) {
	w.sent = append(w.sent, tx)
	return w.txHash, w.sendErr
}

func (w *fakeWallet) SubscribeAccountChanges(fn func(common.Address)) {}
func (w *fakeWallet) SubscribeChainChanges(fn func(chainID int))     {}

type countingReader struct {
	calls   int
	receipt *types.Receipt
	// receipt is returned once calls reaches availableAt; zero means never.
	availableAt int
}

func (r *countingReader) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	r.calls++
	if r.availableAt > 0 && r.calls >= r.availableAt {
		return r.receipt, nil
	}
	return nil, nil
}

func newTestProvisioner(wallet ethereum.Wallet, reader ethereum.ChainReader) *Provisioner {
	p := NewProvisioner(wallet, func(chainID int) (ethereum.ChainReader, error) {
		return reader, nil
	}, 1)
	p.pollInterval = time.Millisecond
	return p
}

func TestDeployExhaustsPollAttempts(t *testing.T) {
	wallet := &fakeWallet{address: testOwner, txHash: common.HexToHash("0xabc")}
	reader := &countingReader{}
	p := newTestProvisioner(wallet, reader)

	_, err := p.Deploy(context.Background(), testOwner, 137)
	require.ErrorIs(t, err, errors.ErrDeploymentFailed)
	require.Equal(t, MaxPollAttempts, reader.calls)
}

func TestDeployReturnsContractAddress(t *testing.T) {
	deployed := common.HexToAddress("0x3333333333333333333333333333333333333333")
	wallet := &fakeWallet{address: testOwner, txHash: common.HexToHash("0xabc")}
	reader := &countingReader{
		receipt:     &types.Receipt{ContractAddress: deployed},
		availableAt: 3,
	}
	p := newTestProvisioner(wallet, reader)

	addr, err := p.Deploy(context.Background(), testOwner, 137)
	require.NoError(t, err)
	require.Equal(t, deployed, addr)
	require.Equal(t, 3, reader.calls)
}

func TestDeploySubmitsCreationTransaction(t *testing.T) {
	wallet := &fakeWallet{address: testOwner, txHash: common.HexToHash("0xabc")}
	reader := &countingReader{receipt: &types.Receipt{}, availableAt: 1}
	p := newTestProvisioner(wallet, reader)

	_, err := p.Deploy(context.Background(), testOwner, 1)
	require.NoError(t, err)
	require.Len(t, wallet.sent, 1)

	tx := wallet.sent[0]
	require.Nil(t, tx.To)
	require.Equal(t, testOwner, tx.From)

	want, err := ConstructorData(testOwner)
	require.NoError(t, err)
	require.Equal(t, want, tx.Data)
}

func TestDeployCancelledBetweenPolls(t *testing.T) {
	wallet := &fakeWallet{address: testOwner, txHash: common.HexToHash("0xabc")}
	reader := &countingReader{}
	p := newTestProvisioner(wallet, reader)
	p.pollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Deploy(ctx, testOwner, 1)
	require.Error(t, err)
	require.NotErrorIs(t, err, errors.ErrDeploymentFailed)
	require.Equal(t, 1, reader.calls)
}

func TestDeploySubmissionFailure(t *testing.T) {
	wallet := &fakeWallet{address: testOwner, sendErr: errors.New("rpc down")}
	reader := &countingReader{}
	p := newTestProvisioner(wallet, reader)

	_, err := p.Deploy(context.Background(), testOwner, 1)
	require.Error(t, err)
	require.Zero(t, reader.calls)
}
