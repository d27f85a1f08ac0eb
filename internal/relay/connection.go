package relay

import (
	"encoding/hex"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tidwall/gjson"

	"faktoro.io/faktoro-relay/internal/scw"
	"faktoro.io/faktoro-relay/pkg/errors"
	"faktoro.io/faktoro-relay/pkg/log"
	wc "faktoro.io/faktoro-relay/pkg/walletconnect"
)

// connection is the per-bridge-connection state, owned exclusively by its
// run loop.
type connection struct {
	session   *Session
	transport Transport
	key       []byte

	events chan *wcMessage
	closed chan struct{}

	// Dapp peer, learned from wc_sessionRequest.
	peerID string

	// FIFO of unresolved transaction requests. Only the head is actionable.
	queue []*PendingTransactionRequest

	// Head whose emission did not fit the consumer buffer yet. Retried from
	// the run loop so the head is never lost.
	pendingEmit *PendingTransactionRequest

	stopping bool
}

// emitRetryInterval separates retries of a head emission that found the
// consumer buffer full.
const emitRetryInterval = 100 * time.Millisecond

func (c *connection) readLoop() {
	defer close(c.events)
	for {
		msg, err := c.transport.ReadMessage()
		if err != nil {
			if !errors.Is(err, errSessionClosed) {
				log.Debugf("relay - bridge read ended: %v", err)
			}
			return
		}
		select {
		case c.events <- msg:
		case <-c.closed:
			return
		}
	}
}

func (c *connection) runLoop(commands chan command) {
	defer func() {
		c.transport.Close()
		c.discardQueue()
		c.session.state.Store(int32(StateDisconnected))
		close(c.closed)
		log.Info("relay - session disconnected")
	}()
	for {
		var retry <-chan time.Time
		if c.pendingEmit != nil {
			retry = time.After(emitRetryInterval)
		}
		select {
		case msg, ok := <-c.events:
			if !ok {
				return
			}
			c.handleInbound(msg)
		case cmd := <-commands:
			cmd(c)
		case <-retry:
			c.emit(c.pendingEmit)
		}
		if c.stopping {
			return
		}
	}
}

// emit hands the actionable head to the approval consumer. A full buffer
// leaves it pending for the run loop to retry.
func (c *connection) emit(req *PendingTransactionRequest) {
	if c.session.emitHead(req) {
		c.pendingEmit = nil
		return
	}
	c.pendingEmit = req
}

func (c *connection) subscribe(topic string) error {
	return c.transport.WriteMessage(&wcMessage{
		Topic:   topic,
		Type:    "sub",
		Payload: "",
		Silent:  true,
	})
}

// ack confirms receipt to the bridge so it stops redelivering.
func (c *connection) ack() {
	err := c.transport.WriteMessage(&wcMessage{
		Topic:  c.session.clientID,
		Type:   "ack",
		Silent: true,
	})
	if err != nil {
		log.Debugf("relay - ack failed: %v", err)
	}
}

func (c *connection) handleInbound(msg *wcMessage) {
	c.ack()
	jsonRpc, err := c.decryptPayload(msg)
	if err != nil {
		log.Warn(errors.Wrap(err, "relay - drop undecryptable bridge message"))
		return
	}
	log.Debugf("relay - receive: %v", jsonRpc)

	method := gjson.Get(jsonRpc, "method").String()
	switch method {
	case "wc_sessionRequest":
		c.handleSessionRequest(jsonRpc)
	case "wc_sessionUpdate":
		c.handleSessionUpdate(jsonRpc)
	case "eth_sendTransaction":
		c.handleSendTransaction(jsonRpc)
	case "":
		// A response frame; nothing of ours expects responses from the dapp.
		log.Debugf("relay - ignoring response frame: %v", jsonRpc)
	default:
		c.handleUnsupported(jsonRpc, method)
	}
}

func (c *connection) handleSessionRequest(jsonRpc string) {
	id := gjson.Get(jsonRpc, "id").Int()
	params := gjson.Get(jsonRpc, "params").Array()
	if len(params) == 0 {
		log.Warn(errors.NewWithReport("relay - session request without params"))
		return
	}
	c.peerID = params[0].Get("peerId").String()
	peerName := params[0].Get("peerMeta.name").String()
	log.Infof("relay - session request from %v (%v)", peerName, c.peerID)

	active, ok := c.session.activeWallet()
	if !ok {
		// Approving with no wallet selected would hand the dapp a dead
		// session; reject instead.
		log.Warn("relay - no active wallet, rejecting session request")
		c.sendError(id, &jsonRpcError{Code: codeRejected, Message: "no wallet selected"})
		return
	}
	c.sendResult(id, sessionApproval{
		PeerID:   c.session.clientID,
		PeerMeta: c.session.meta,
		Approved: true,
		ChainID:  active.ChainID,
		Accounts: []string{active.SCWAddress},
	})
	c.session.state.Store(int32(StateActive))
	log.Infof("relay - session approved with wallet %v on chain %v", active.SCWAddress, active.ChainID)
}

func (c *connection) handleSessionUpdate(jsonRpc string) {
	params := gjson.Get(jsonRpc, "params").Array()
	if len(params) == 0 {
		return
	}
	approved := params[0].Get("approved")
	if !approved.Exists() || approved.Bool() {
		return
	}
	// Dapp killed the session.
	log.Warnf("relay - session closed by peer: %v", jsonRpc)
	c.shutdown(false)
}

func (c *connection) handleSendTransaction(jsonRpc string) {
	id := gjson.Get(jsonRpc, "id").Int()
	version := gjson.Get(jsonRpc, "jsonrpc").String()
	if version == "" {
		version = jsonRpcVersion
	}
	active, ok := c.session.activeWallet()
	if !ok {
		c.sendError(id, &jsonRpcError{Code: codeRejected, Message: "no wallet selected"})
		return
	}
	params := gjson.Get(jsonRpc, "params").Array()
	if len(params) == 0 {
		c.sendError(id, &jsonRpcError{Code: codeRejected, Message: "missing transaction params"})
		return
	}
	target := params[0].Get("to").String()
	if !common.IsHexAddress(target) {
		c.sendError(id, &jsonRpcError{Code: codeRejected, Message: "malformed target address"})
		return
	}
	value, err := parseWeiValue(params[0].Get("value"))
	if err != nil {
		c.sendError(id, &jsonRpcError{Code: codeRejected, Message: "malformed value"})
		return
	}
	callData := common.FromHex(params[0].Get("data").String())

	req := &PendingTransactionRequest{
		RequestID:          id,
		JSONRPCVersion:     version,
		FromOwner:          active.OwnerAddress,
		ToSCW:              active.SCWAddress,
		TargetAddress:      target,
		Value:              value,
		CallData:           callData,
		EncodedExecPayload: scw.PackExecPayload(common.HexToAddress(target), value, callData),
		SessionDone:        c.closed,
	}
	// Later calls queue behind the open one; never overwritten, never dropped.
	c.queue = append(c.queue, req)
	log.Infof("relay - intercepted eth_sendTransaction %v to %v (queue depth %v)", id, target, len(c.queue))
	if len(c.queue) == 1 {
		c.emit(req)
	}
}

func (c *connection) handleUnsupported(jsonRpc, method string) {
	id := gjson.Get(jsonRpc, "id").Int()
	log.Warnf("relay - unsupported call method %v", method)
	if id == 0 {
		return
	}
	// Answer rather than stay silent so the dapp does not hang on us.
	c.sendError(id, &jsonRpcError{
		Code:    codeMethodNotFound,
		Message: errors.ErrUnsupportedMethod.Error() + ": " + method,
	})
}

// resolveHead resolves the actionable head request. Resolving anything else,
// or the same request twice, is a caller bug and is answered with an error.
func (c *connection) resolveHead(requestID int64, txHash string, rpcErr *jsonRpcError) error {
	if len(c.queue) == 0 {
		return errors.Errorf("no pending request to resolve (request %v)", requestID)
	}
	head := c.queue[0]
	if head.RequestID != requestID {
		return errors.Errorf("request %v is not the actionable head (%v is)", requestID, head.RequestID)
	}
	if rpcErr != nil {
		c.sendErrorVersioned(head.RequestID, head.JSONRPCVersion, rpcErr)
	} else {
		c.sendResultVersioned(head.RequestID, head.JSONRPCVersion, txHash)
	}
	c.queue = c.queue[1:]
	c.pendingEmit = nil
	if len(c.queue) > 0 {
		c.emit(c.queue[0])
	}
	return nil
}

func (c *connection) discardQueue() {
	if len(c.queue) > 0 {
		log.Warnf("relay - discarding %v unresolved requests", len(c.queue))
	}
	c.queue = nil
	c.pendingEmit = nil
}

// shutdown ends the connection. When the wallet side initiates it, the peer
// is told the session is over first.
func (c *connection) shutdown(notifyPeer bool) {
	if notifyPeer && c.peerID != "" {
		update := newJSONRpcRequest("wc_sessionUpdate", map[string]interface{}{
			"approved": false,
			"chainId":  nil,
			"accounts": nil,
		})
		c.publish(c.peerID, marshalJSON(update))
	}
	c.stopping = true
}

func (c *connection) sendResult(id int64, result interface{}) {
	c.sendResultVersioned(id, jsonRpcVersion, result)
}

func (c *connection) sendResultVersioned(id int64, version string, result interface{}) {
	c.publish(c.peerID, marshalJSON(jsonRpcResponse{
		ID:      id,
		JSONRpc: version,
		Result:  result,
	}))
}

func (c *connection) sendError(id int64, rpcErr *jsonRpcError) {
	c.sendErrorVersioned(id, jsonRpcVersion, rpcErr)
}

func (c *connection) sendErrorVersioned(id int64, version string, rpcErr *jsonRpcError) {
	c.publish(c.peerID, marshalJSON(jsonRpcErrorResponse{
		ID:      id,
		JSONRpc: version,
		Error:   *rpcErr,
	}))
}

// publish encrypts one JSON-RPC payload and publishes it to a topic.
func (c *connection) publish(topic, jsonRpc string) {
	if topic == "" {
		log.Warn(errors.NewWithReport("relay - no peer topic to publish to"))
		return
	}
	payload, err := c.encryptPayload(jsonRpc)
	if err != nil {
		log.Error(errors.Wrap(err, "relay - encrypt outbound payload"))
		return
	}
	err = c.transport.WriteMessage(&wcMessage{
		Topic:   topic,
		Type:    "pub",
		Payload: payload.Marshal(),
		Silent:  true,
	})
	if err != nil {
		log.Error(errors.Wrap(err, "relay - publish to bridge"))
	}
}

func (c *connection) encryptPayload(jsonRpc string) (*wcMessagePayload, error) {
	iv, err := wc.GenerateRandomBytes(128 / 8)
	if err != nil {
		return nil, errors.Wrap(err, "generate iv")
	}
	data, err := wc.Aes256Encrypt([]byte(jsonRpc), c.key, iv)
	if err != nil {
		return nil, err
	}
	unsigned := append(data, iv...)
	mac := wc.HmacSha256(unsigned, c.key)
	return &wcMessagePayload{
		Data: hex.EncodeToString(data),
		IV:   hex.EncodeToString(iv),
		Hmac: hex.EncodeToString(mac),
	}, nil
}

func (c *connection) decryptPayload(msg *wcMessage) (string, error) {
	mp, err := newWCMessagePayloadFromBytes([]byte(msg.Payload))
	if err != nil {
		return "", err
	}
	iv, err := hex.DecodeString(mp.IV)
	if err != nil {
		return "", errors.Wrap(err, "decode iv hex")
	}
	cipher, err := hex.DecodeString(mp.Data)
	if err != nil {
		return "", errors.Wrap(err, "decode cipher hex")
	}
	expected, err := hex.DecodeString(mp.Hmac)
	if err != nil {
		return "", errors.Wrap(err, "decode hmac hex")
	}
	unsigned := append(cipher, iv...)
	if !wc.HmacEqual(wc.HmacSha256(unsigned, c.key), expected) {
		return "", errors.Wrap(errors.ErrProtocolError, "inconsistent session message hmac")
	}
	data, err := wc.Aes256Decrypt(cipher, c.key, iv)
	if err != nil {
		return "", errors.Wrap(err, "aes256 decrypt")
	}
	return string(data), nil
}

// parseWeiValue accepts the value field in any of its wire shapes; absence
// means zero.
func parseWeiValue(value gjson.Result) (*big.Int, error) {
	if !value.Exists() || value.String() == "" {
		return big.NewInt(0), nil
	}
	raw := value.String()
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		if raw == "0x" || raw == "0X" {
			return big.NewInt(0), nil
		}
		parsed, err := hexutil.DecodeBig(strings.ToLower(raw))
		if err != nil {
			return nil, errors.Wrapf(err, "decode hex value %q", raw)
		}
		return parsed, nil
	}
	parsed, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, errors.Errorf("malformed decimal value %q", raw)
	}
	return parsed, nil
}
