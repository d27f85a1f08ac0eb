package scw

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"faktoro.io/faktoro-relay/internal/ethereum"
	"faktoro.io/faktoro-relay/pkg/concurrent"
	"faktoro.io/faktoro-relay/pkg/errors"
	"faktoro.io/faktoro-relay/pkg/log"
)

const (
	// MaxPollAttempts bounds receipt polling after a deployment submission.
	MaxPollAttempts = 25
	// PollInterval separates consecutive receipt queries. Linear, no backoff.
	PollInterval = 3300 * time.Millisecond
)

// ReaderSource resolves the receipt-polling capability for a chain.
type ReaderSource func(chainID int) (ethereum.ChainReader, error)

// Provisioner deploys new wallet contracts and waits for their on-chain
// confirmation. It does not register the deployed address anywhere; that is
// the caller's concern.
type Provisioner struct {
	wallet  ethereum.Wallet
	readers ReaderSource
	limiter concurrent.Limiter

	// Overridable for tests.
	pollInterval time.Duration
}

func NewProvisioner(wallet ethereum.Wallet, readers ReaderSource, maxConcurrency int) *Provisioner {
	return &Provisioner{
		wallet:       wallet,
		readers:      readers,
		limiter:      concurrent.NewLimiter(maxConcurrency),
		pollInterval: PollInterval,
	}
}

// Deploy submits the wallet creation transaction for owner and polls until
// the receipt arrives or MaxPollAttempts is exhausted. Exhaustion yields
// ErrDeploymentFailed; the caller must treat the address as unknown and not
// retry automatically.
func (p *Provisioner) Deploy(ctx context.Context, owner common.Address, chainID int) (common.Address, error) {
	p.limiter.Add()
	defer p.limiter.Done()

	data, err := ConstructorData(owner)
	if err != nil {
		return common.Address{}, err
	}
	txHash, err := p.wallet.SendTransaction(ctx, ethereum.TxRequest{
		From: owner,
		Data: data,
	})
	if err != nil {
		return common.Address{}, errors.Wrap(err, "submit wallet creation")
	}
	log.Infof("wallet deployment - submitted tx %v for owner %v on chain %v", txHash.Hex(), owner.Hex(), chainID)

	reader, err := p.readers(chainID)
	if err != nil {
		return common.Address{}, err
	}
	for attempt := 0; attempt < MaxPollAttempts; attempt++ {
		receipt, err := reader.TransactionReceipt(ctx, txHash)
		if err != nil {
			log.Warnf("wallet deployment - receipt query %v failed: %v", attempt, err)
		}
		if receipt != nil {
			log.Infof("wallet deployment - confirmed at %v after %v attempts", receipt.ContractAddress.Hex(), attempt+1)
			return receipt.ContractAddress, nil
		}
		log.Debugf("wallet deployment - attempt %v/%v, receipt pending", attempt+1, MaxPollAttempts)
		if attempt == MaxPollAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return common.Address{}, errors.Wrap(ctx.Err(), "wallet deployment cancelled")
		case <-time.After(p.pollInterval):
		}
	}
	return common.Address{}, errors.Wrapf(errors.ErrDeploymentFailed,
		"no receipt for %v after %v attempts", txHash.Hex(), MaxPollAttempts)
}
