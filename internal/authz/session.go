package authz

import (
	"context"
	"sync"

	qrcode "github.com/skip2/go-qrcode"

	"faktoro.io/faktoro-relay/internal/ethereum"
	"faktoro.io/faktoro-relay/internal/wallet"
	"faktoro.io/faktoro-relay/pkg/errors"
	"faktoro.io/faktoro-relay/pkg/log"
)

// RegistrationStatus of the target address with the 2FA service.
type RegistrationStatus int

const (
	StatusLoading RegistrationStatus = iota
	StatusNotStarted
	StatusAwaitingCode
	StatusRegistered
)

func (s RegistrationStatus) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusNotStarted:
		return "not_started"
	case StatusAwaitingCode:
		return "awaiting_code"
	case StatusRegistered:
		return "registered"
	default:
		return "unknown"
	}
}

const setupCodeLength = 6

// Session drives 2FA enrollment for one owner address. Status only moves
// forward; a transport failure during verification drops back to NotStarted,
// everything else keeps the current state.
type Session struct {
	client *Client
	wallet ethereum.Wallet

	lock        sync.Mutex
	status      RegistrationStatus
	qrSecretURI string
}

func NewSession(client *Client, owner ethereum.Wallet) *Session {
	return &Session{
		client: client,
		wallet: owner,
		status: StatusLoading,
	}
}

func (s *Session) Status() RegistrationStatus {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.status
}

func (s *Session) QRSecretURI() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.qrSecretURI
}

// QRPNG renders the provisioning URI as a scannable PNG.
func (s *Session) QRPNG(size int) ([]byte, error) {
	uri := s.QRSecretURI()
	if uri == "" {
		return nil, errors.New("no provisioning uri, begin registration first")
	}
	png, err := qrcode.Encode(uri, qrcode.Medium, size)
	if err != nil {
		return nil, errors.Wrap(err, "encode provisioning qr code")
	}
	return png, nil
}

// Hydrate resolves the initial status from the service and returns the wallet
// records it already knows, for registry hydration. A failure leaves the
// session usable in NotStarted.
func (s *Session) Hydrate(ctx context.Context) ([]wallet.Record, error) {
	owner := s.wallet.Address().Hex()
	info, err := s.client.CheckRegistration(ctx, owner)
	if err != nil {
		log.Warnf("2fa session - check registration for %v failed: %v", owner, err)
		s.setStatus(StatusNotStarted)
		return nil, err
	}
	if info.Registered {
		s.setStatus(StatusRegistered)
	} else {
		s.setStatus(StatusNotStarted)
	}
	records := make([]wallet.Record, 0, len(info.Wallets))
	for _, w := range info.Wallets {
		records = append(records, wallet.Record{
			OwnerAddress: owner,
			ChainID:      w.ChainID,
			SCWAddress:   w.WalletAddress,
		})
	}
	return records, nil
}

// BeginRegistration signs the fixed challenge with the owner key and starts
// enrollment. On success the session holds the provisioning URI and waits for
// the first authenticator code.
func (s *Session) BeginRegistration(ctx context.Context) (string, error) {
	if status := s.Status(); status != StatusNotStarted {
		return "", errors.Errorf("cannot begin registration in status %v", status)
	}
	owner := s.wallet.Address().Hex()
	signature, err := s.wallet.SignMessage(ctx, []byte(ChallengeMessage(owner)))
	if err != nil {
		return "", errors.Wrap(err, "sign registration challenge")
	}
	uri, err := s.client.RegisterUser(ctx, owner, signature)
	if err != nil {
		// Keep NotStarted so the user can retry.
		return "", err
	}
	s.lock.Lock()
	s.status = StatusAwaitingCode
	s.qrSecretURI = uri
	s.lock.Unlock()
	return uri, nil
}

// SubmitSetupCode verifies the first authenticator code. An explicit action:
// nothing is submitted until the caller decides to.
func (s *Session) SubmitSetupCode(ctx context.Context, code string) error {
	if len(code) != setupCodeLength {
		return errors.WithStack(errors.ErrInvalidCodeLength)
	}
	if status := s.Status(); status != StatusAwaitingCode {
		return errors.Errorf("cannot verify registration in status %v", status)
	}
	registered, err := s.client.VerifyRegistration(ctx, s.wallet.Address().Hex(), code)
	if err != nil {
		if errors.Is(err, errors.ErrTransport) {
			s.setStatus(StatusNotStarted)
		}
		return err
	}
	if !registered {
		return errors.Wrap(errors.ErrAuthorizationRejected, "verification code refused")
	}
	s.setStatus(StatusRegistered)
	return nil
}

func (s *Session) setStatus(status RegistrationStatus) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.status = status
}
