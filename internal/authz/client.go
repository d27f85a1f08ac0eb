package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"faktoro.io/faktoro-relay/internal/scw"
	"faktoro.io/faktoro-relay/pkg/errors"
	"faktoro.io/faktoro-relay/pkg/log"
)

// ChallengeMessageTemplate is the fixed message the owner signs to prove
// control of the address during 2FA registration.
const ChallengeMessageTemplate = "I want to set up a 2FA-secured wallet on my address %s"

func ChallengeMessage(address string) string {
	return fmt.Sprintf(ChallengeMessageTemplate, address)
}

// Client talks to the remote 2FA authorization service. Every call embeds the
// owner address plus either a signature over the fixed challenge or a 2FA
// code; the service is the trust boundary that validates codes and issues
// transaction signatures.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// RegisteredWallet is one wallet the service already knows for an owner.
type RegisteredWallet struct {
	WalletAddress string `json:"walletAddress"`
	ChainID       int    `json:"chainId"`
}

// RegistrationInfo answers "is this address set up, and what wallets exist".
type RegistrationInfo struct {
	Registered bool               `json:"registered"`
	Wallets    []RegisteredWallet `json:"wallets"`
}

type checkRegistrationRequest struct {
	Address string `json:"address"`
}

// CheckRegistration fetches the owner's registration state and wallet list.
func (c *Client) CheckRegistration(ctx context.Context, address string) (*RegistrationInfo, error) {
	var info RegistrationInfo
	if err := c.post(ctx, "/checkRegistration", checkRegistrationRequest{Address: address}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

type registerUserRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

type registerUserResponse struct {
	QRSecretURI string `json:"qrSecretUri"`
}

// RegisterUser starts 2FA enrollment. signature must be the owner's personal
// signature over ChallengeMessage(address). The returned provisioning URI is
// rendered as a scannable code for the user's authenticator.
func (c *Client) RegisterUser(ctx context.Context, address, signature string) (string, error) {
	var out registerUserResponse
	if err := c.post(ctx, "/registerUser", registerUserRequest{Address: address, Signature: signature}, &out); err != nil {
		return "", err
	}
	if out.QRSecretURI == "" {
		return "", errors.Wrap(errors.ErrProtocolError, "registerUser returned no provisioning uri")
	}
	return out.QRSecretURI, nil
}

type verifyRegistrationRequest struct {
	Address string `json:"address"`
	Code    string `json:"code"`
}

type verifyRegistrationResponse struct {
	Registered bool `json:"registered"`
}

// VerifyRegistration confirms enrollment with the first code from the
// authenticator.
func (c *Client) VerifyRegistration(ctx context.Context, address, code string) (bool, error) {
	var out verifyRegistrationResponse
	if err := c.post(ctx, "/verifyRegistration", verifyRegistrationRequest{Address: address, Code: code}, &out); err != nil {
		return false, err
	}
	return out.Registered, nil
}

type signTransactionRequest struct {
	Address string `json:"address"`
	Code    string `json:"code"`
	Payload string `json:"payload"`
}

type signTransactionResponse struct {
	Signature *wireSignature `json:"signature"`
}

type wireSignature struct {
	V uint8  `json:"v"`
	R string `json:"r"`
	S string `json:"s"`
}

// AuthorizeTransaction submits the tight-packed execution payload with a 2FA
// code. Only a valid code yields the ECDSA signature authorizing exactly that
// payload; any denial surfaces as ErrAuthorizationRejected, never as a
// silently pending state.
func (c *Client) AuthorizeTransaction(ctx context.Context, address, code string, execPayload []byte) (scw.Signature, error) {
	req := signTransactionRequest{
		Address: address,
		Code:    code,
		Payload: hexutil.Encode(execPayload),
	}
	var out signTransactionResponse
	if err := c.postStrict(ctx, "/signTransaction", req, &out, errors.ErrAuthorizationRejected); err != nil {
		return scw.Signature{}, err
	}
	if out.Signature == nil {
		return scw.Signature{}, errors.Wrap(errors.ErrProtocolError, "signTransaction returned no signature")
	}
	return decodeSignature(out.Signature)
}

func decodeSignature(in *wireSignature) (scw.Signature, error) {
	r, err := hexutil.Decode(in.R)
	if err != nil || len(r) != 32 {
		return scw.Signature{}, errors.Wrap(errors.ErrProtocolError, "malformed signature r")
	}
	s, err := hexutil.Decode(in.S)
	if err != nil || len(s) != 32 {
		return scw.Signature{}, errors.Wrap(errors.ErrProtocolError, "malformed signature s")
	}
	sig := scw.Signature{V: in.V}
	copy(sig.R[:], r)
	copy(sig.S[:], s)
	return sig, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	return c.postStrict(ctx, path, body, out, nil)
}

// postStrict performs one JSON round trip. Non-2xx responses map to denial
// (when the endpoint has a denial sentinel), malformed bodies to
// ErrProtocolError, network failures to ErrTransport.
func (c *Client) postStrict(ctx context.Context, path string, body, out interface{}, denial error) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return errors.Wrapf(err, "marshal %v request", path)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return errors.Wrapf(err, "build %v request", path)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warnf("authorization service - %v transport failure: %v", path, err)
		return errors.Wrapf(errors.ErrTransport, "%v: %v", path, err)
	}
	defer resp.Body.Close()

	raw, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(errors.ErrTransport, "read %v response: %v", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if denial != nil {
			return errors.Wrapf(denial, "%v: status %v: %s", path, resp.StatusCode, raw)
		}
		return errors.Wrapf(errors.ErrProtocolError, "%v: status %v: %s", path, resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(errors.ErrProtocolError, "decode %v response: %v", path, err)
	}
	return nil
}
