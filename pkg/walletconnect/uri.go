package walletconnect

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"faktoro.io/faktoro-relay/pkg/errors"
)

// URI is a parsed WalletConnect v1 pairing uri:
// wc:{handshakeTopic}@{version}?bridge={url}&key={hex}
type URI struct {
	HandshakeTopic string
	Version        string
	BridgeURL      string
	Key            []byte
}

func ParseURI(raw string) (*URI, error) {
	if !strings.HasPrefix(raw, "wc:") {
		return nil, errors.Errorf("not a walletconnect uri: %v", raw)
	}
	head, query, found := cut(strings.TrimPrefix(raw, "wc:"), "?")
	if !found {
		return nil, errors.New("walletconnect uri missing query")
	}
	topic, version, found := cut(head, "@")
	if !found || topic == "" {
		return nil, errors.Errorf("malformed walletconnect uri head: %v", head)
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return nil, errors.Wrap(err, "parse walletconnect uri query")
	}
	bridge := values.Get("bridge")
	if bridge == "" {
		return nil, errors.New("walletconnect uri missing bridge")
	}
	key, err := hex.DecodeString(values.Get("key"))
	if err != nil {
		return nil, errors.Wrap(err, "decode walletconnect key hex")
	}
	if len(key) != 32 {
		return nil, errors.Errorf("walletconnect key must be 32 bytes, got %v", len(key))
	}
	return &URI{
		HandshakeTopic: topic,
		Version:        version,
		BridgeURL:      bridge,
		Key:            key,
	}, nil
}

func (u *URI) String() string {
	return fmt.Sprintf("wc:%s@%s?bridge=%s&key=%s",
		u.HandshakeTopic, u.Version, url.QueryEscape(u.BridgeURL), hex.EncodeToString(u.Key))
}

// WebSocketURL derives the bridge websocket endpoint from its https url.
func (u *URI) WebSocketURL() string {
	wsURL := u.BridgeURL
	if strings.HasPrefix(wsURL, "https") {
		wsURL = strings.Replace(wsURL, "https", "wss", 1)
	} else if strings.HasPrefix(wsURL, "http") {
		wsURL = strings.Replace(wsURL, "http", "ws", 1)
	}
	return wsURL + "?protocol=wc&version=" + u.Version
}

func cut(s, sep string) (before, after string, found bool) {
	idx := strings.Index(s, sep)
	if idx < 0 {
		return s, "", false
	}
	return s[:idx], s[idx+len(sep):], true
}
