package relay

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"faktoro.io/faktoro-relay/internal/wallet"
	"faktoro.io/faktoro-relay/pkg/errors"
	"faktoro.io/faktoro-relay/pkg/log"
	wc "faktoro.io/faktoro-relay/pkg/walletconnect"
)

var (
	errSessionClosed = errors.New("session closed")
	errNotConnected  = errors.New("session not connected")
)

// State of the bridge connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSessionPending
	StateActive
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSessionPending:
		return "session_pending"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Meta describes this wallet to connecting dapps.
type Meta struct {
	Name        string
	Description string
	URL         string
}

// Session owns one WalletConnect v1 bridge connection on the wallet side: it
// answers the dapp's session request with the active smart contract wallet,
// intercepts eth_sendTransaction calls into pending requests, and resolves
// them when the approval flow finishes.
//
// All connection state (transport, peer, request queue) is owned by a single
// run-loop goroutine; external calls enter through a command channel.
type Session struct {
	meta clientMeta
	dial TransportDialer

	state    *atomic.Int32
	clientID string

	// Active wallet selection, updated by the registry at any time,
	// including while disconnected. Last write wins.
	active *atomic.Value // wallet.Record

	// Pending requests surface here as they become the actionable head.
	requests chan *PendingTransactionRequest

	// Per-connection, replaced by Connect under connLock.
	connLock sync.Mutex
	commands chan command
	closed   chan struct{}
}

type command func(*connection)

func NewSession(meta Meta, dial TransportDialer) *Session {
	if dial == nil {
		dial = DialBridge
	}
	return &Session{
		meta: clientMeta{
			Name:        meta.Name,
			Description: meta.Description,
			URL:         meta.URL,
			Icons:       []string{},
		},
		dial:     dial,
		state:    atomic.NewInt32(int32(StateDisconnected)),
		clientID: uuid.NewString(),
		active:   &atomic.Value{},
		requests: make(chan *PendingTransactionRequest, 16),
	}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Requests yields each pending transaction request as it becomes actionable.
func (s *Session) Requests() <-chan *PendingTransactionRequest {
	return s.requests
}

// ActiveWalletChanged implements wallet.ActiveListener. The newest selection
// always wins; it is read at session-approval time.
func (s *Session) ActiveWalletChanged(record wallet.Record) {
	s.active.Store(record)
	log.Debugf("relay - active wallet now %v on chain %v", record.SCWAddress, record.ChainID)
}

func (s *Session) activeWallet() (wallet.Record, bool) {
	v := s.active.Load()
	if v == nil {
		return wallet.Record{}, false
	}
	return v.(wallet.Record), true
}

// Connect parses a pairing uri, dials the bridge and subscribes for the
// dapp's session request. It returns once the connection is established; the
// session then runs until Disconnect or a transport failure.
func (s *Session) Connect(ctx context.Context, rawURI string) error {
	if !s.state.CAS(int32(StateDisconnected), int32(StateConnecting)) {
		return errors.New("session already connected")
	}
	uri, err := wc.ParseURI(rawURI)
	if err != nil {
		s.state.Store(int32(StateDisconnected))
		return err
	}
	if uri.Version != "1" {
		s.state.Store(int32(StateDisconnected))
		return errors.Errorf("unsupported walletconnect version %v", uri.Version)
	}
	transport, err := s.dial(ctx, uri.WebSocketURL())
	if err != nil {
		s.state.Store(int32(StateDisconnected))
		return err
	}

	conn := &connection{
		session:   s,
		transport: transport,
		key:       uri.Key,
		events:    make(chan *wcMessage, 16),
		closed:    make(chan struct{}),
	}
	// Receive the dapp's wc_sessionRequest and everything addressed to us.
	if err := conn.subscribe(uri.HandshakeTopic); err != nil {
		transport.Close()
		s.state.Store(int32(StateDisconnected))
		return err
	}
	if err := conn.subscribe(s.clientID); err != nil {
		transport.Close()
		s.state.Store(int32(StateDisconnected))
		return err
	}

	commands := make(chan command, 16)
	s.connLock.Lock()
	s.commands = commands
	s.closed = conn.closed
	s.connLock.Unlock()

	s.state.Store(int32(StateSessionPending))
	log.Infof("relay - connected to bridge %v, awaiting session request", uri.BridgeURL)

	go conn.readLoop()
	go conn.runLoop(commands)
	return nil
}

// execute runs fn inside the run loop and waits for it. Returns
// errNotConnected when no connection is live.
func (s *Session) execute(fn command) error {
	s.connLock.Lock()
	commands, closed := s.commands, s.closed
	s.connLock.Unlock()
	if commands == nil {
		return errors.WithStack(errNotConnected)
	}
	done := make(chan struct{})
	wrapped := func(c *connection) {
		defer close(done)
		fn(c)
	}
	select {
	case commands <- wrapped:
	case <-closed:
		return errors.WithStack(errNotConnected)
	}
	select {
	case <-done:
		return nil
	case <-closed:
		return errors.WithStack(errNotConnected)
	}
}

// Stop tears down any live bridge connection on shutdown.
func (s *Session) Stop() {
	s.Disconnect()
}

// Disconnect tears the session down, discarding queued requests without
// resolving them. The dapp observes a timeout on anything in flight.
func (s *Session) Disconnect() {
	err := s.execute(func(c *connection) {
		c.shutdown(true)
	})
	if err != nil {
		log.Debugf("relay - disconnect: %v", err)
	}
}

// ApproveRequest resolves the originating call with the transaction hash.
func (s *Session) ApproveRequest(requestID int64, txHash string) error {
	var result error
	if err := s.execute(func(c *connection) {
		result = c.resolveHead(requestID, txHash, nil)
	}); err != nil {
		return err
	}
	return result
}

// RejectRequest resolves the originating call with a JSON-RPC error.
func (s *Session) RejectRequest(requestID int64, reason string) error {
	var result error
	if err := s.execute(func(c *connection) {
		result = c.resolveHead(requestID, "", &jsonRpcError{
			Code:    codeRejected,
			Message: reason,
		})
	}); err != nil {
		return err
	}
	return result
}

// emitHead hands the actionable head to the approval consumer without ever
// blocking the run loop. Reports whether the emission fit the buffer; the
// connection retries a failed one.
func (s *Session) emitHead(req *PendingTransactionRequest) bool {
	select {
	case s.requests <- req:
		return true
	default:
		log.Warnf("relay - pending request channel full, emission of request %v deferred", req.RequestID)
		return false
	}
}
