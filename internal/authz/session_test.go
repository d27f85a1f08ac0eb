package authz

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"faktoro.io/faktoro-relay/internal/ethereum"
	"faktoro.io/faktoro-relay/pkg/errors"
)

type fakeOwner struct {
	address common.Address
	signed  []string
}

func (w *fakeOwner) Address() common.Address { return w.address }

func (w *fakeOwner) SignMessage(ctx context.Context, msg []byte) (string, error) {
	w.signed = append(w.signed, string(msg))
	return "0xsigned", nil
}

func (w *fakeOwner) SendTransaction(ctx context.Context, tx ethereum.TxRequest) (common.Hash, error) {
	return common.Hash{}, nil
}

func (w *fakeOwner) SubscribeAccountChanges(fn func(common.Address)) {}
func (w *fakeOwner) SubscribeChainChanges(fn func(chainID int))     {}

func newSessionWithService(t *testing.T, handler http.Handler) (*Session, *fakeOwner, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	owner := &fakeOwner{address: common.HexToAddress(testAddress)}
	return NewSession(NewClient(server.URL, 5*time.Second), owner), owner, server
}

func TestHydrateRegisteredOwner(t *testing.T) {
	session, _, _ := newSessionWithService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(RegistrationInfo{
			Registered: true,
			Wallets: []RegisteredWallet{
				{WalletAddress: "0x2222222222222222222222222222222222222222", ChainID: 1},
				{WalletAddress: "0x3333333333333333333333333333333333333333", ChainID: 137},
			},
		})
	}))

	records, err := session.Hydrate(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusRegistered, session.Status())
	require.Len(t, records, 2)
	require.Equal(t, common.HexToAddress(testAddress).Hex(), records[0].OwnerAddress)
	require.Equal(t, 137, records[1].ChainID)
}

func TestHydrateUnregisteredOwner(t *testing.T) {
	session, _, _ := newSessionWithService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(RegistrationInfo{Registered: false})
	}))

	records, err := session.Hydrate(context.Background())
	require.NoError(t, err)
	require.Empty(t, records)
	require.Equal(t, StatusNotStarted, session.Status())
}

func TestHydrateServiceUnreachable(t *testing.T) {
	session, _, server := newSessionWithService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := session.Hydrate(context.Background())
	require.Error(t, err)
	require.Equal(t, StatusNotStarted, session.Status())
}

func TestBeginRegistrationSignsChallenge(t *testing.T) {
	session, owner, _ := newSessionWithService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/checkRegistration":
			json.NewEncoder(w).Encode(RegistrationInfo{})
		case "/registerUser":
			var req registerUserRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "0xsigned", req.Signature)
			json.NewEncoder(w).Encode(registerUserResponse{QRSecretURI: "otpauth://totp/faktoro"})
		}
	}))
	_, err := session.Hydrate(context.Background())
	require.NoError(t, err)

	uri, err := session.BeginRegistration(context.Background())
	require.NoError(t, err)
	require.Equal(t, "otpauth://totp/faktoro", uri)
	require.Equal(t, StatusAwaitingCode, session.Status())
	require.Equal(t, []string{ChallengeMessage(owner.address.Hex())}, owner.signed)

	png, err := session.QRPNG(256)
	require.NoError(t, err)
	require.NotEmpty(t, png)
}

func TestBeginRegistrationRejectedOutsideNotStarted(t *testing.T) {
	session, _, _ := newSessionWithService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(RegistrationInfo{Registered: true})
	}))
	_, err := session.Hydrate(context.Background())
	require.NoError(t, err)

	_, err = session.BeginRegistration(context.Background())
	require.Error(t, err)
	require.Equal(t, StatusRegistered, session.Status())
}

func TestSubmitSetupCodeLifecycle(t *testing.T) {
	session, _, _ := newSessionWithService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/checkRegistration":
			json.NewEncoder(w).Encode(RegistrationInfo{})
		case "/registerUser":
			json.NewEncoder(w).Encode(registerUserResponse{QRSecretURI: "otpauth://totp/faktoro"})
		case "/verifyRegistration":
			var req verifyRegistrationRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			json.NewEncoder(w).Encode(verifyRegistrationResponse{Registered: req.Code == "123456"})
		}
	}))
	_, err := session.Hydrate(context.Background())
	require.NoError(t, err)
	_, err = session.BeginRegistration(context.Background())
	require.NoError(t, err)

	// Wrong length never reaches the service and keeps the state.
	err = session.SubmitSetupCode(context.Background(), "123")
	require.ErrorIs(t, err, errors.ErrInvalidCodeLength)
	require.Equal(t, StatusAwaitingCode, session.Status())

	// Refused code keeps the state so the user can retry.
	err = session.SubmitSetupCode(context.Background(), "999999")
	require.ErrorIs(t, err, errors.ErrAuthorizationRejected)
	require.Equal(t, StatusAwaitingCode, session.Status())

	require.NoError(t, session.SubmitSetupCode(context.Background(), "123456"))
	require.Equal(t, StatusRegistered, session.Status())
}

func TestSubmitSetupCodeTransportFailureDropsBack(t *testing.T) {
	calls := 0
	session, _, server := newSessionWithService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch r.URL.Path {
		case "/checkRegistration":
			json.NewEncoder(w).Encode(RegistrationInfo{})
		case "/registerUser":
			json.NewEncoder(w).Encode(registerUserResponse{QRSecretURI: "otpauth://totp/faktoro"})
		}
	}))
	_, err := session.Hydrate(context.Background())
	require.NoError(t, err)
	_, err = session.BeginRegistration(context.Background())
	require.NoError(t, err)

	server.Close()
	err = session.SubmitSetupCode(context.Background(), "123456")
	require.ErrorIs(t, err, errors.ErrTransport)
	require.Equal(t, StatusNotStarted, session.Status())
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "loading", StatusLoading.String())
	require.Equal(t, "not_started", StatusNotStarted.String())
	require.Equal(t, "awaiting_code", StatusAwaitingCode.String())
	require.Equal(t, "registered", StatusRegistered.String())
}
