package chains

// Network describes one supported chain.
type Network struct {
	ID          int
	IDHex       string
	Name        string
	NativeToken string
	RPCURL      string
}

// UnknownNetworkName is returned by Resolve for chain ids outside the table.
const UnknownNetworkName = "unknown network"

const (
	EthereumChainID  = 1
	GoerliChainID    = 5
	OptimismChainID  = 10
	GnosisChainID    = 100
	PolygonChainID   = 137
	ArbitrumChainID  = 42161
	CeloChainID      = 42220
	AvalancheChainID = 43114
)

var (
	Array = []*Network{
		{
			ID:          EthereumChainID,
			IDHex:       "0x1",
			Name:        "Ethereum",
			NativeToken: "ETH",
			RPCURL:      "https://mainnet.infura.io/v3/9aa3d95b3bc440fa88ea12eaa4456161",
		},
		{
			ID:          GoerliChainID,
			IDHex:       "0x5",
			Name:        "Goerli",
			NativeToken: "GoETH",
			RPCURL:      "https://goerli.infura.io/v3/946aa7017b65442d8d865c2a59bec77f",
		},
		{
			ID:          OptimismChainID,
			IDHex:       "0xa",
			Name:        "Optimism",
			NativeToken: "ETH",
			RPCURL:      "https://rpc.ankr.com/optimism",
		},
		{
			ID:          GnosisChainID,
			IDHex:       "0x64",
			Name:        "Gnosis",
			NativeToken: "XDAI",
			RPCURL:      "https://rpc.gnosischain.com/",
		},
		{
			ID:          PolygonChainID,
			IDHex:       "0x89",
			Name:        "Polygon",
			NativeToken: "MATIC",
			RPCURL:      "https://polygon-rpc.com",
		},
		{
			ID:          ArbitrumChainID,
			IDHex:       "0xa4b1",
			Name:        "Arbitrum",
			NativeToken: "ETH",
			RPCURL:      "https://rpc.ankr.com/arbitrum",
		},
		{
			ID:          CeloChainID,
			IDHex:       "0xa4ec",
			Name:        "Celo",
			NativeToken: "CELO",
			RPCURL:      "https://forno.celo.org",
		},
		{
			ID:          AvalancheChainID,
			IDHex:       "0xa86a",
			Name:        "Avalanche",
			NativeToken: "AVAX",
			RPCURL:      "https://api.avax.network/ext/bc/C/rpc",
		},
	}

	byID = func() map[int]*Network {
		m := make(map[int]*Network, len(Array))
		for _, n := range Array {
			m[n.ID] = n
		}
		return m
	}()
)

// Resolve looks up a chain id. It never fails: unknown ids yield a marker
// network carrying the id so display code has something to show.
func Resolve(chainID int) *Network {
	if n := byID[chainID]; n != nil {
		return n
	}
	return &Network{
		ID:   chainID,
		Name: UnknownNetworkName,
	}
}

// Known reports whether the chain id is in the table.
func Known(chainID int) bool {
	return byID[chainID] != nil
}
