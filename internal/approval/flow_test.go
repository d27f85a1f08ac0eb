package approval

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"faktoro.io/faktoro-relay/internal/ethereum"
	"faktoro.io/faktoro-relay/internal/relay"
	"faktoro.io/faktoro-relay/internal/scw"
	"faktoro.io/faktoro-relay/pkg/errors"
)

const (
	ownerAddress = "0x1111111111111111111111111111111111111111"
	scwAddress   = "0x2222222222222222222222222222222222222222"
	targetHex    = "0x00000000000000000000000000000000deadbeef"
)

type fakeAuthorizer struct {
	calls int
	sig   scw.Signature
	err   error
}

func (a *fakeAuthorizer) AuthorizeTransaction(ctx context.Context, address, code string, execPayload []byte) (scw.Signature, error) {
	a.calls++
	return a.sig, a.err
}

type fakeOwner struct {
	sent    []ethereum.TxRequest
	txHash  common.Hash
	sendErr error
}

func (w *fakeOwner) Address() common.Address { return common.HexToAddress(ownerAddress) }

func (w *fakeOwner) SignMessage(ctx context.Context, msg []byte) (string, error) {
	return "0x00", nil
}

func (w *fakeOwner) SendTransaction(ctx context.Context, tx ethereum.TxRequest) (common.Hash, error) {
	w.sent = append(w.sent, tx)
	return w.txHash, w.sendErr
}

func (w *fakeOwner) SubscribeAccountChanges(fn func(common.Address)) {}
func (w *fakeOwner) SubscribeChainChanges(fn func(chainID int))     {}

type fakeResolver struct {
	approved  []int64
	approvals []string
	rejected  []int64
	reasons   []string
}

func (r *fakeResolver) ApproveRequest(requestID int64, txHash string) error {
	r.approved = append(r.approved, requestID)
	r.approvals = append(r.approvals, txHash)
	return nil
}

func (r *fakeResolver) RejectRequest(requestID int64, reason string) error {
	r.rejected = append(r.rejected, requestID)
	r.reasons = append(r.reasons, reason)
	return nil
}

func pendingRequest(id int64) *relay.PendingTransactionRequest {
	target := common.HexToAddress(targetHex)
	data := common.FromHex("0xdeadbeef")
	return &relay.PendingTransactionRequest{
		RequestID:          id,
		JSONRPCVersion:     "2.0",
		FromOwner:          ownerAddress,
		ToSCW:              scwAddress,
		TargetAddress:      targetHex,
		Value:              big.NewInt(0),
		CallData:           data,
		EncodedExecPayload: scw.PackExecPayload(target, big.NewInt(0), data),
	}
}

func TestSubmitApprovesExactlyOnce(t *testing.T) {
	authorizer := &fakeAuthorizer{sig: scw.Signature{V: 27}}
	owner := &fakeOwner{txHash: common.HexToHash("0xbeef")}
	resolver := &fakeResolver{}
	flow := NewFlow(authorizer, owner, resolver)

	req := pendingRequest(42)
	txHash, err := flow.Submit(context.Background(), req, "123456")
	require.NoError(t, err)
	require.Equal(t, owner.txHash.Hex(), txHash)

	require.Equal(t, 1, authorizer.calls)
	require.Equal(t, []int64{42}, resolver.approved)
	require.Equal(t, []string{owner.txHash.Hex()}, resolver.approvals)
	require.Empty(t, resolver.rejected)

	require.Len(t, owner.sent, 1)
	tx := owner.sent[0]
	require.Equal(t, common.HexToAddress(ownerAddress), tx.From)
	require.Equal(t, common.HexToAddress(scwAddress), *tx.To)

	want, err := scw.PackExecuteWithSignature(
		common.HexToAddress(targetHex), req.Value, req.CallData, authorizer.sig)
	require.NoError(t, err)
	require.Equal(t, want, tx.Data)
}

func TestSubmitShortCodeFailsFast(t *testing.T) {
	authorizer := &fakeAuthorizer{}
	owner := &fakeOwner{}
	resolver := &fakeResolver{}
	flow := NewFlow(authorizer, owner, resolver)

	req := pendingRequest(42)
	_, err := flow.Submit(context.Background(), req, "123")
	require.ErrorIs(t, err, errors.ErrInvalidCodeLength)

	// The request stays unresolved so the user can retry.
	require.Zero(t, authorizer.calls)
	require.Empty(t, resolver.approved)
	require.Empty(t, resolver.rejected)
	require.Empty(t, owner.sent)

	_, err = flow.Submit(context.Background(), req, "123456")
	require.NoError(t, err)
	require.Equal(t, []int64{42}, resolver.approved)
}

func TestSubmitAuthorizationRefused(t *testing.T) {
	authorizer := &fakeAuthorizer{err: errors.WithStack(errors.ErrAuthorizationRejected)}
	owner := &fakeOwner{}
	resolver := &fakeResolver{}
	flow := NewFlow(authorizer, owner, resolver)

	req := pendingRequest(42)
	_, err := flow.Submit(context.Background(), req, "999999")
	require.ErrorIs(t, err, errors.ErrAuthorizationRejected)

	require.Empty(t, owner.sent)
	require.Empty(t, resolver.approved)
	require.Equal(t, []int64{42}, resolver.rejected)
	require.Equal(t, []string{"transaction authorization refused"}, resolver.reasons)
}

func TestSubmitChainSubmissionFailure(t *testing.T) {
	authorizer := &fakeAuthorizer{sig: scw.Signature{V: 27}}
	owner := &fakeOwner{sendErr: errors.New("rpc down")}
	resolver := &fakeResolver{}
	flow := NewFlow(authorizer, owner, resolver)

	_, err := flow.Submit(context.Background(), pendingRequest(42), "123456")
	require.Error(t, err)
	require.Empty(t, resolver.approved)
	require.Equal(t, []int64{42}, resolver.rejected)
}

func TestSubmitTwiceFails(t *testing.T) {
	authorizer := &fakeAuthorizer{sig: scw.Signature{V: 27}}
	owner := &fakeOwner{txHash: common.HexToHash("0xbeef")}
	resolver := &fakeResolver{}
	flow := NewFlow(authorizer, owner, resolver)

	req := pendingRequest(42)
	_, err := flow.Submit(context.Background(), req, "123456")
	require.NoError(t, err)

	_, err = flow.Submit(context.Background(), req, "123456")
	require.Error(t, err)
	require.Equal(t, 1, authorizer.calls)
	require.Equal(t, []int64{42}, resolver.approved)
}

func TestRejectSkipsAuthorization(t *testing.T) {
	authorizer := &fakeAuthorizer{}
	owner := &fakeOwner{}
	resolver := &fakeResolver{}
	flow := NewFlow(authorizer, owner, resolver)

	req := pendingRequest(42)
	require.NoError(t, flow.Reject(req, ""))

	require.Zero(t, authorizer.calls)
	require.Empty(t, owner.sent)
	require.Equal(t, []int64{42}, resolver.rejected)
	require.Equal(t, []string{"rejected by user"}, resolver.reasons)

	// A rejected request cannot be approved afterwards.
	_, err := flow.Submit(context.Background(), req, "123456")
	require.Error(t, err)
	require.Zero(t, authorizer.calls)
}

func discardedRequest(id int64) *relay.PendingTransactionRequest {
	req := pendingRequest(id)
	done := make(chan struct{})
	close(done)
	req.SessionDone = done
	return req
}

func TestSubmitRefusesDiscardedRequest(t *testing.T) {
	authorizer := &fakeAuthorizer{sig: scw.Signature{V: 27}}
	owner := &fakeOwner{txHash: common.HexToHash("0xbeef")}
	resolver := &fakeResolver{}
	flow := NewFlow(authorizer, owner, resolver)

	_, err := flow.Submit(context.Background(), discardedRequest(42), "123456")
	require.Error(t, err)

	// Nothing must reach the service or the chain for a dead session.
	require.Zero(t, authorizer.calls)
	require.Empty(t, owner.sent)
	require.Empty(t, resolver.approved)
	require.Empty(t, resolver.rejected)
}

func TestSubmitDiscardedDuringAuthorization(t *testing.T) {
	owner := &fakeOwner{txHash: common.HexToHash("0xbeef")}
	resolver := &fakeResolver{}
	req := pendingRequest(42)
	done := make(chan struct{})
	req.SessionDone = done

	// The session dies while the authorization round trip is in flight.
	authorizer := &closingAuthorizer{done: done}
	flow := NewFlow(authorizer, owner, resolver)

	_, err := flow.Submit(context.Background(), req, "123456")
	require.Error(t, err)
	require.Equal(t, 1, authorizer.calls)
	require.Empty(t, owner.sent)
	require.Empty(t, resolver.approved)
}

type closingAuthorizer struct {
	calls int
	done  chan struct{}
}

func (a *closingAuthorizer) AuthorizeTransaction(ctx context.Context, address, code string, execPayload []byte) (scw.Signature, error) {
	a.calls++
	close(a.done)
	return scw.Signature{V: 27}, nil
}

func TestRejectRefusesDiscardedRequest(t *testing.T) {
	resolver := &fakeResolver{}
	flow := NewFlow(&fakeAuthorizer{}, &fakeOwner{}, resolver)

	require.Error(t, flow.Reject(discardedRequest(42), "user rejected"))
	require.Empty(t, resolver.rejected)
}

func TestInboxDropsDiscardedRequest(t *testing.T) {
	source := make(chan *relay.PendingTransactionRequest, 1)
	inbox := NewInbox(source)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inbox.Start(ctx)

	done := make(chan struct{})
	req := pendingRequest(42)
	req.SessionDone = done
	source <- req

	require.Eventually(t, func() bool {
		_, ok := inbox.Current()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	close(done)
	_, ok := inbox.Current()
	require.False(t, ok)
	_, err := inbox.Take(42)
	require.Error(t, err)
}

func TestInboxTracksActionableHead(t *testing.T) {
	source := make(chan *relay.PendingTransactionRequest, 2)
	inbox := NewInbox(source)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inbox.Start(ctx)

	_, ok := inbox.Current()
	require.False(t, ok)
	_, err := inbox.Take(42)
	require.Error(t, err)

	source <- pendingRequest(42)
	require.Eventually(t, func() bool {
		_, ok := inbox.Current()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	_, err = inbox.Take(7)
	require.Error(t, err)

	req, err := inbox.Take(42)
	require.NoError(t, err)
	require.Equal(t, int64(42), req.RequestID)

	// Settling a different id keeps the current request.
	inbox.Settle(7)
	_, ok = inbox.Current()
	require.True(t, ok)

	inbox.Settle(42)
	_, ok = inbox.Current()
	require.False(t, ok)
}
