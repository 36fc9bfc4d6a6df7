package config

import "sync"

// Currency describes the native currency of a network.
type Currency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// Network is a chain descriptor: everything a wallet needs to activate a
// network it has never seen before. The field set mirrors the
// wallet_addEthereumChain parameter object.
type Network struct {
	ChainID      uint64   `json:"chain_id"`
	Name         string   `json:"name"`
	Currency     Currency `json:"currency"`
	RPCURLs      []string `json:"rpc_urls"`
	ExplorerURLs []string `json:"explorer_urls"`
}

// ShardeumSphinx is the default target network.
var ShardeumSphinx = Network{
	ChainID: 8080,
	Name:    "Shardeum Sphinx 1.X",
	Currency: Currency{
		Name:     "Shardeum",
		Symbol:   "SHM",
		Decimals: 18,
	},
	RPCURLs:      []string{"https://sphinx.shardeum.org/"},
	ExplorerURLs: []string{"https://explorer-sphinx.shardeum.org/"},
}

// NetworkRegistry is the set of networks the wallet knows how to reach.
// The connection manager consults it when activating the target network
// and registers the target's descriptor if it is missing, mirroring the
// switch-then-add dance browser wallets do.
type NetworkRegistry struct {
	mu   sync.RWMutex
	byID map[uint64]Network
}

// NewNetworkRegistry creates a registry pre-populated with the given networks.
func NewNetworkRegistry(known ...Network) *NetworkRegistry {
	r := &NetworkRegistry{byID: make(map[uint64]Network, len(known))}
	for _, n := range known {
		r.byID[n.ChainID] = n
	}
	return r
}

// Lookup returns the descriptor for a chain id, if registered.
func (r *NetworkRegistry) Lookup(chainID uint64) (Network, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.byID[chainID]
	return n, ok
}

// Register adds or replaces a network descriptor.
func (r *NetworkRegistry) Register(n Network) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[n.ChainID] = n
}

// Networks returns all registered descriptors.
func (r *NetworkRegistry) Networks() []Network {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Network, 0, len(r.byID))
	for _, n := range r.byID {
		out = append(out, n)
	}
	return out
}
