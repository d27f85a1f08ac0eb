package relay

import (
	"context"

	"github.com/gorilla/websocket"

	"faktoro.io/faktoro-relay/pkg/errors"
)

// Transport carries bridge frames. Abstracted so the session state machine is
// testable without a live bridge connection.
type Transport interface {
	ReadMessage() (*wcMessage, error)
	WriteMessage(*wcMessage) error
	Close() error
}

// TransportDialer opens a Transport against a bridge websocket url.
type TransportDialer func(ctx context.Context, wsURL string) (Transport, error)

// DialBridge is the production dialer.
func DialBridge(ctx context.Context, wsURL string) (Transport, error) {
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "dial walletconnect bridge")
	}
	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) ReadMessage() (*wcMessage, error) {
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, errors.Wrap(err, "read bridge frame")
		}
		switch msgType {
		case websocket.TextMessage:
			return newWCMessageFromBytes(data)
		case websocket.CloseMessage:
			return nil, errors.Wrap(errSessionClosed, "bridge sent close")
		default:
			// Binary frames are not part of the v1 protocol.
			continue
		}
	}
}

func (t *wsTransport) WriteMessage(msg *wcMessage) error {
	if err := t.conn.WriteMessage(websocket.TextMessage, msg.Marshal()); err != nil {
		return errors.Wrap(err, "write bridge frame")
	}
	return nil
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
