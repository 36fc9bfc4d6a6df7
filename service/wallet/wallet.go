// Package wallet is the chain connection manager. It turns a local
// go-ethereum keystore plus a target network descriptor into a signing
// session: the capability every mutating contract operation requires.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fundlift/fundlift/service/chain"
	"github.com/fundlift/fundlift/service/config"
)

var (
	// ErrNoWalletFound indicates an empty keystore: there is no account
	// to sign with.
	ErrNoWalletFound = errors.New("no wallet account found in keystore")

	// ErrUserRejected indicates the keystore refused to unlock the
	// account, the local analogue of a declined signing request.
	ErrUserRejected = errors.New("wallet access rejected")

	// ErrNetworkSwitchFailed indicates the target network could not be
	// activated: the endpoint is unreachable or reports the wrong chain.
	ErrNetworkSwitchFailed = errors.New("failed to activate target network")
)

// NodeClient is the capability a dialed RPC endpoint provides: the
// contract backend plus chain identification.
type NodeClient interface {
	chain.Backend
	ChainID(ctx context.Context) (*big.Int, error)
}

// DialFunc opens a NodeClient for an RPC URL. Injected so tests can
// connect sessions to an emulated chain.
type DialFunc func(ctx context.Context, rawurl string) (NodeClient, error)

// DialEthereum is the production DialFunc.
func DialEthereum(ctx context.Context, rawurl string) (NodeClient, error) {
	client, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Session is an established wallet connection: the active account, the
// activated network, a node handle, and the signing capability.
type Session struct {
	Account common.Address
	Network config.Network
	Node    NodeClient
	Signer  *bind.TransactOpts
}

// Connector establishes wallet sessions against a fixed target network.
type Connector struct {
	keystore *keystore.KeyStore
	target   config.Network
	registry *config.NetworkRegistry
	dial     DialFunc
	logger   *slog.Logger
}

// NewConnector creates a connector over the keystore at keystoreDir.
// If dial is nil, DialEthereum is used.
func NewConnector(keystoreDir string, target config.Network, registry *config.NetworkRegistry, dial DialFunc, logger *slog.Logger) *Connector {
	if dial == nil {
		dial = DialEthereum
	}
	return &Connector{
		keystore: keystore.NewKeyStore(keystoreDir, keystore.StandardScryptN, keystore.StandardScryptP),
		target:   target,
		registry: registry,
		dial:     dial,
		logger:   logger,
	}
}

// Accounts lists the addresses available in the keystore.
func (c *Connector) Accounts() []common.Address {
	all := c.keystore.Accounts()
	out := make([]common.Address, len(all))
	for i, a := range all {
		out[i] = a.Address
	}
	return out
}

// Connect opens a signing session. account selects the keystore account
// by hex address; when empty the first account is used. The target
// network is activated first: if its descriptor is unknown to the
// registry it is registered and activation retried, mirroring the
// add-then-switch dance browser wallets do. Any other activation failure
// is surfaced, not retried.
func (c *Connector) Connect(ctx context.Context, account, passphrase string) (*Session, error) {
	acct, err := c.selectAccount(account)
	if err != nil {
		return nil, err
	}

	if err := c.keystore.Unlock(acct, passphrase); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserRejected, err)
	}

	network, node, err := c.activateNetwork(ctx)
	if err != nil {
		return nil, err
	}

	chainID := new(big.Int).SetUint64(network.ChainID)
	signer, err := bind.NewKeyStoreTransactorWithChainID(c.keystore, acct, chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserRejected, err)
	}

	c.logger.InfoContext(ctx, "wallet connected",
		"account", acct.Address.Hex(),
		"chain_id", network.ChainID,
		"network", network.Name,
	)

	return &Session{
		Account: acct.Address,
		Network: network,
		Node:    node,
		Signer:  signer,
	}, nil
}

// AutoConnect attempts a connection without an explicit user gesture.
// It only proceeds when the keystore already holds an account and a
// passphrase was provided through configuration; otherwise it reports
// (nil, nil) and the caller stays disconnected until an explicit connect.
func (c *Connector) AutoConnect(ctx context.Context, account, passphrase string) (*Session, error) {
	if passphrase == "" || len(c.keystore.Accounts()) == 0 {
		c.logger.DebugContext(ctx, "auto-connect skipped",
			"have_passphrase", passphrase != "",
			"accounts", len(c.keystore.Accounts()),
		)
		return nil, nil
	}
	return c.Connect(ctx, account, passphrase)
}

func (c *Connector) selectAccount(account string) (accounts.Account, error) {
	all := c.keystore.Accounts()
	if len(all) == 0 {
		return accounts.Account{}, ErrNoWalletFound
	}
	if account == "" {
		return all[0], nil
	}
	want := common.HexToAddress(account)
	for _, a := range all {
		if a.Address == want {
			return a, nil
		}
	}
	return accounts.Account{}, fmt.Errorf("%w: account %s not in keystore", ErrNoWalletFound, account)
}

// activateNetwork resolves the target descriptor (registering it when
// the registry has never seen the chain) and verifies the endpoint
// actually serves the target chain.
func (c *Connector) activateNetwork(ctx context.Context) (config.Network, NodeClient, error) {
	network, known := c.registry.Lookup(c.target.ChainID)
	if !known {
		c.registry.Register(c.target)
		c.logger.InfoContext(ctx, "registered target network descriptor",
			"chain_id", c.target.ChainID,
			"network", c.target.Name,
		)
		network = c.target
	}

	if len(network.RPCURLs) == 0 {
		return config.Network{}, nil, fmt.Errorf("%w: network %q has no RPC URL", ErrNetworkSwitchFailed, network.Name)
	}

	node, err := c.dial(ctx, network.RPCURLs[0])
	if err != nil {
		return config.Network{}, nil, fmt.Errorf("%w: %v", ErrNetworkSwitchFailed, err)
	}

	chainID, err := node.ChainID(ctx)
	if err != nil {
		return config.Network{}, nil, fmt.Errorf("%w: %v", ErrNetworkSwitchFailed, err)
	}
	if chainID.Uint64() != network.ChainID {
		return config.Network{}, nil, fmt.Errorf("%w: endpoint %s serves chain %d, want %d",
			ErrNetworkSwitchFailed, network.RPCURLs[0], chainID.Uint64(), network.ChainID)
	}

	return network, node, nil
}

// ShortAddress renders an address in the truncated 0x1234...abcd form
// used across the UI.
func ShortAddress(a common.Address) string {
	hex := a.Hex()
	if len(hex) <= 10 {
		return hex
	}
	return hex[:6] + "..." + strings.ToLower(hex[len(hex)-4:])
}
