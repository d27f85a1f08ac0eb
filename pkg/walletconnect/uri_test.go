package walletconnect

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	exampleTopic  = "8a5e5bdc-a0e4-4702-ba63-8f1a5655744f"
	exampleKeyHex = "41791102999c339c844880b23950704cc43aa840f3739e365323cda4dfa89e7a"
)

const exampleURI = "wc:" + exampleTopic + "@1?bridge=https%3A%2F%2Fbridge.walletconnect.org&key=" + exampleKeyHex

func TestParseURI(t *testing.T) {
	uri, err := ParseURI(exampleURI)
	require.NoError(t, err)
	require.Equal(t, exampleTopic, uri.HandshakeTopic)
	require.Equal(t, "1", uri.Version)
	require.Equal(t, "https://bridge.walletconnect.org", uri.BridgeURL)

	key, err := hex.DecodeString(exampleKeyHex)
	require.NoError(t, err)
	require.Equal(t, key, uri.Key)
}

func TestParseURIRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"wrong scheme":  "http://bridge.walletconnect.org",
		"missing query": "wc:" + exampleTopic + "@1",
		"missing topic": "wc:@1?bridge=https%3A%2F%2Fbridge.walletconnect.org&key=" + exampleKeyHex,
		"no version":    "wc:" + exampleTopic + "?bridge=https%3A%2F%2Fbridge.walletconnect.org&key=" + exampleKeyHex,
		"no bridge":     "wc:" + exampleTopic + "@1?key=" + exampleKeyHex,
		"bad key hex":   "wc:" + exampleTopic + "@1?bridge=https%3A%2F%2Fbridge.walletconnect.org&key=zz",
		"short key":     "wc:" + exampleTopic + "@1?bridge=https%3A%2F%2Fbridge.walletconnect.org&key=aabb",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseURI(raw)
			require.Error(t, err)
		})
	}
}

func TestURIStringRoundTrip(t *testing.T) {
	uri, err := ParseURI(exampleURI)
	require.NoError(t, err)
	require.Equal(t, exampleURI, uri.String())

	again, err := ParseURI(uri.String())
	require.NoError(t, err)
	require.Equal(t, uri, again)
}

func TestWebSocketURL(t *testing.T) {
	uri, err := ParseURI(exampleURI)
	require.NoError(t, err)
	require.Equal(t, "wss://bridge.walletconnect.org?protocol=wc&version=1", uri.WebSocketURL())

	uri.BridgeURL = "http://localhost:5001"
	require.Equal(t, "ws://localhost:5001?protocol=wc&version=1", uri.WebSocketURL())
}
