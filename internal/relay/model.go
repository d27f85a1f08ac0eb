package relay

import (
	"encoding/json"
	"math/big"
	"sync"
	"time"

	"faktoro.io/faktoro-relay/pkg/errors"
	"faktoro.io/faktoro-relay/pkg/log"
)

// wcMessage is one bridge frame: a pub/sub envelope around an encrypted
// payload.
type wcMessage struct {
	Topic string `json:"topic"`
	// pub, sub or ack
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

func newWCMessageFromBytes(data []byte) (*wcMessage, error) {
	var msg wcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(err, "unmarshal bridge message")
	}
	return &msg, nil
}

func (msg *wcMessage) Marshal() []byte {
	data, _ := json.Marshal(msg)
	return data
}

// wcMessagePayload is the encrypted payload envelope: AES-256-CBC ciphertext,
// IV and HMAC, all hex encoded.
type wcMessagePayload struct {
	Data string `json:"data"`
	Hmac string `json:"hmac"`
	IV   string `json:"iv"`
}

func newWCMessagePayloadFromBytes(data []byte) (*wcMessagePayload, error) {
	var payload wcMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, errors.Wrap(err, "unmarshal bridge message payload")
	}
	return &payload, nil
}

func (e *wcMessagePayload) Marshal() string {
	s, err := json.Marshal(e)
	if err != nil {
		log.Errorf("marshal:%v", err)
	}
	return string(s)
}

type clientMeta struct {
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
	Name        string   `json:"name"`
}

// sessionApproval is the wallet's answer to wc_sessionRequest: the active
// smart contract wallet address and chain, never the owner EOA.
type sessionApproval struct {
	PeerID   string     `json:"peerId"`
	PeerMeta clientMeta `json:"peerMeta"`
	Approved bool       `json:"approved"`
	ChainID  int        `json:"chainId"`
	Accounts []string   `json:"accounts"`
}

type jsonRpcRequest struct {
	ID      int64         `json:"id"`
	JSONRpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

func newJSONRpcRequest(method string, params ...interface{}) *jsonRpcRequest {
	r := &jsonRpcRequest{
		ID:      payloadID(),
		JSONRpc: jsonRpcVersion,
		Method:  method,
		Params:  []interface{}{},
	}
	if len(params) > 0 {
		r.Params = params
	}
	return r
}

type jsonRpcResponse struct {
	ID      int64       `json:"id"`
	JSONRpc string      `json:"jsonrpc"`
	Result  interface{} `json:"result"`
}

type jsonRpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRpcErrorResponse struct {
	ID      int64        `json:"id"`
	JSONRpc string       `json:"jsonrpc"`
	Error   jsonRpcError `json:"error"`
}

const (
	jsonRpcVersion = "2.0"

	codeMethodNotFound = -32601
	codeRejected       = -32000
)

func marshalJSON(v interface{}) string {
	s, err := json.Marshal(v)
	if err != nil {
		log.Errorf("marshal:%v", err)
	}
	return string(s)
}

var (
	payloadIDLock sync.Mutex
	lastPayloadID int64
)

// payloadID yields strictly increasing microsecond ids, the id convention of
// the v1 protocol.
func payloadID() int64 {
	payloadIDLock.Lock()
	defer payloadIDLock.Unlock()
	id := time.Now().UnixNano() / 1000
	if id <= lastPayloadID {
		id = lastPayloadID + 1
	}
	lastPayloadID = id
	return id
}

// PendingTransactionRequest is one intercepted eth_sendTransaction call
// awaiting 2FA approval. EncodedExecPayload is the tight-packed
// (target, value, data) the authorization service signs.
type PendingTransactionRequest struct {
	RequestID          int64    `json:"requestId"`
	JSONRPCVersion     string   `json:"jsonrpc"`
	FromOwner          string   `json:"fromOwner"`
	ToSCW              string   `json:"toSCW"`
	TargetAddress      string   `json:"targetAddress"`
	Value              *big.Int `json:"value"`
	CallData           []byte   `json:"callData"`
	EncodedExecPayload []byte   `json:"encodedExecPayload"`

	// SessionDone is closed when the originating connection ends. A request
	// whose session is gone can never be resolved and must not be acted on.
	SessionDone <-chan struct{} `json:"-"`
}

// Discarded reports whether the originating session ended, taking the request
// with it.
func (r *PendingTransactionRequest) Discarded() bool {
	if r.SessionDone == nil {
		return false
	}
	select {
	case <-r.SessionDone:
		return true
	default:
		return false
	}
}
