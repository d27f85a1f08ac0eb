package approval

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"faktoro.io/faktoro-relay/internal/ethereum"
	"faktoro.io/faktoro-relay/internal/relay"
	"faktoro.io/faktoro-relay/internal/scw"
	"faktoro.io/faktoro-relay/pkg/errors"
	"faktoro.io/faktoro-relay/pkg/log"
)

const codeLength = 6

// Resolver resolves intercepted calls back through the bridge session.
type Resolver interface {
	ApproveRequest(requestID int64, txHash string) error
	RejectRequest(requestID int64, reason string) error
}

// Authorizer issues the meta-transaction signature once the 2FA code checks
// out.
type Authorizer interface {
	AuthorizeTransaction(ctx context.Context, address, code string, execPayload []byte) (scw.Signature, error)
}

// Flow orchestrates one pending request from 2FA code to resolution:
// authorize, build the executeWithSignature call, submit owner→SCW, then
// approve or reject the originating WalletConnect call. Each request resolves
// exactly once.
type Flow struct {
	authorizer Authorizer
	owner      ethereum.Wallet
	relay      Resolver

	lock     sync.Mutex
	resolved map[int64]bool
}

func NewFlow(authorizer Authorizer, owner ethereum.Wallet, resolver Resolver) *Flow {
	return &Flow{
		authorizer: authorizer,
		owner:      owner,
		relay:      resolver,
		resolved:   map[int64]bool{},
	}
}

// Submit drives the approval of req with the user's 2FA code. A short code
// fails fast without resolving the request, so the user may retry; any
// failure past authorization resolves the request as rejected.
func (f *Flow) Submit(ctx context.Context, req *relay.PendingTransactionRequest, code string) (string, error) {
	if len(code) != codeLength {
		return "", errors.WithStack(errors.ErrInvalidCodeLength)
	}
	if req.Discarded() {
		return "", errors.Errorf("request %v was discarded with its session", req.RequestID)
	}
	if !f.claim(req.RequestID) {
		return "", errors.Errorf("request %v already resolved", req.RequestID)
	}

	sig, err := f.authorizer.AuthorizeTransaction(ctx, req.FromOwner, code, req.EncodedExecPayload)
	if err != nil {
		f.rejectWith(req, "transaction authorization refused")
		return "", err
	}
	// The session may have died while the service was checking the code;
	// nothing must reach the chain for a request nobody can resolve.
	if req.Discarded() {
		return "", errors.Errorf("session ended during authorization of request %v", req.RequestID)
	}

	callData, err := scw.PackExecuteWithSignature(common.HexToAddress(req.TargetAddress), req.Value, req.CallData, sig)
	if err != nil {
		f.rejectWith(req, "failed to build wallet call")
		return "", err
	}

	scwAddress := common.HexToAddress(req.ToSCW)
	txHash, err := f.owner.SendTransaction(ctx, ethereum.TxRequest{
		From: common.HexToAddress(req.FromOwner),
		To:   &scwAddress,
		Data: callData,
	})
	if err != nil {
		f.rejectWith(req, "transaction submission failed")
		return "", errors.Wrap(err, "submit meta-transaction")
	}

	if err := f.relay.ApproveRequest(req.RequestID, txHash.Hex()); err != nil {
		// The chain got the transaction; only the dapp notification failed.
		log.Error(errors.Wrap(err, "approve resolved request"))
	}
	log.Infof("approval - request %v executed in tx %v", req.RequestID, txHash.Hex())
	return txHash.Hex(), nil
}

// Reject cancels req without contacting the authorization service.
func (f *Flow) Reject(req *relay.PendingTransactionRequest, reason string) error {
	if req.Discarded() {
		return errors.Errorf("request %v was discarded with its session", req.RequestID)
	}
	if !f.claim(req.RequestID) {
		return errors.Errorf("request %v already resolved", req.RequestID)
	}
	if reason == "" {
		reason = "rejected by user"
	}
	return f.relay.RejectRequest(req.RequestID, reason)
}

func (f *Flow) claim(requestID int64) bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.resolved[requestID] {
		return false
	}
	f.resolved[requestID] = true
	return true
}

func (f *Flow) rejectWith(req *relay.PendingTransactionRequest, reason string) {
	if err := f.relay.RejectRequest(req.RequestID, reason); err != nil {
		log.Error(errors.Wrap(err, "reject pending request"))
	}
}
