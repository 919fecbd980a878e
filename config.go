package alphasec

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Network selects the deployment the client talks to.
type Network string

// Supported networks.
const (
	Mainnet Network = "mainnet"
	Kairos  Network = "kairos"
)

// ParseNetwork converts a string into a Network.
func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(s) {
	case "mainnet":
		return Mainnet, nil
	case "kairos":
		return Kairos, nil
	default:
		return "", fmt.Errorf("%w: network %q, use mainnet or kairos", ErrConfig, s)
	}
}

// ConfigOptions carries the caller-supplied construction parameters for a
// Config. Keys are raw hex secrets; the zero value of optional fields
// means absent.
type ConfigOptions struct {
	// APIURL is the REST base URL, e.g. https://api-testnet.alphasec.trade.
	APIURL string
	// Network is "mainnet" or "kairos".
	Network string
	// L1Address is the owner address. Ignored when L1PrivateKey is set:
	// the address is then derived from the key.
	L1Address string
	// L1PrivateKey is the owner key in hex, with or without 0x prefix.
	L1PrivateKey string
	// L2PrivateKey is the delegated session key in hex.
	L2PrivateKey string
	// SessionEnabled selects the L2 session key for signing L2 envelopes.
	SessionEnabled bool
	// ChainID overrides the L2 chain id when non-zero.
	ChainID uint64
}

// Config holds the immutable runtime parameters of a client.
type Config struct {
	apiURL         string
	wsURL          string
	network        Network
	chainID        uint64
	l1Address      string
	l1Wallet       *wallet
	l2Wallet       *wallet
	sessionEnabled bool

	// Timeout applies per REST request.
	Timeout time.Duration
	// MaxRetries bounds transport-level retries per REST request.
	MaxRetries int
}

// NewConfig validates opts and builds a Config. The websocket URL is
// derived from the API URL by swapping the scheme to ws/wss and
// appending /ws when absent.
func NewConfig(opts ConfigOptions) (*Config, error) {
	apiURL, err := url.Parse(opts.APIURL)
	if err != nil || apiURL.Host == "" {
		return nil, fmt.Errorf("%w: invalid API URL %q", ErrConfig, opts.APIURL)
	}

	wsURL := *apiURL
	switch apiURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	case "http":
		wsURL.Scheme = "ws"
	default:
		return nil, fmt.Errorf("%w: unsupported URL scheme %q", ErrConfig, apiURL.Scheme)
	}
	if !strings.HasSuffix(wsURL.Path, "/ws") {
		wsURL.Path = strings.TrimSuffix(wsURL.Path, "/") + "/ws"
	}

	network, err := ParseNetwork(opts.Network)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		apiURL:         strings.TrimSuffix(apiURL.String(), "/"),
		wsURL:          wsURL.String(),
		network:        network,
		chainID:        opts.ChainID,
		sessionEnabled: opts.SessionEnabled,
		Timeout:        30 * time.Second,
		MaxRetries:     3,
	}

	if opts.L1PrivateKey != "" {
		cfg.l1Wallet, err = newWalletFromHex(opts.L1PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("%w: L1 key: %w", ErrConfig, err)
		}
		// A supplied address never wins over the key-derived one.
		cfg.l1Address = cfg.l1Wallet.hexAddress()
	} else {
		if !validAddress(opts.L1Address) {
			return nil, fmt.Errorf("%w: invalid L1 address %q", ErrConfig, opts.L1Address)
		}
		cfg.l1Address = strings.ToLower(opts.L1Address)
	}

	if opts.L2PrivateKey != "" {
		cfg.l2Wallet, err = newWalletFromHex(opts.L2PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("%w: L2 key: %w", ErrConfig, err)
		}
	}

	if cfg.sessionEnabled && cfg.l2Wallet == nil {
		return nil, fmt.Errorf("%w: session mode requires an L2 private key", ErrConfig)
	}

	return cfg, nil
}

// APIURL returns the REST base URL without a trailing slash.
func (c *Config) APIURL() string { return c.apiURL }

// WSURL returns the derived websocket URL.
func (c *Config) WSURL() string { return c.wsURL }

// NetworkName returns the configured network.
func (c *Config) NetworkName() Network { return c.network }

// L1Address returns the lowercase owner address.
func (c *Config) L1Address() string { return c.l1Address }

// SessionEnabled reports whether L2 envelopes are signed with the
// session key.
func (c *Config) SessionEnabled() bool { return c.sessionEnabled }

// IsMainnet reports whether the config targets mainnet.
func (c *Config) IsMainnet() bool { return c.network == Mainnet }

// activeWallet is the key that signs L2 envelopes: the session key when
// session mode is on, the owner key otherwise.
func (c *Config) activeWallet() (*wallet, error) {
	if c.sessionEnabled {
		if c.l2Wallet == nil {
			return nil, fmt.Errorf("%w: L2 wallet is not available", ErrConfig)
		}
		return c.l2Wallet, nil
	}
	if c.l1Wallet == nil {
		return nil, fmt.Errorf("%w: L1 wallet is not available", ErrConfig)
	}
	return c.l1Wallet, nil
}

// l1ChainID is the settlement chain id for the configured network. It is
// used for L1 bridge transactions and the session authorization domain.
func (c *Config) l1ChainID() uint64 {
	if c.network == Mainnet {
		return kaiaMainnetChainID
	}
	return kaiaKairosChainID
}

// l2ChainID is the rollup chain id used in L2 envelopes. An explicit
// ChainID override wins over the network constant.
func (c *Config) l2ChainID() uint64 {
	if c.chainID != 0 {
		return c.chainID
	}
	return alphasecChainID
}

// l1RPCURL is the public RPC endpoint for the settlement chain.
func (c *Config) l1RPCURL() string {
	if c.network == Mainnet {
		return mainnetL1RPCURL
	}
	return kairosL1RPCURL
}

// inboxAddress is the L1 inbox contract for native deposits.
func (c *Config) inboxAddress() string {
	if c.network == Mainnet {
		return mainnetInboxAddr
	}
	return kairosInboxAddr
}

// erc20GatewayAddress is the L1 gateway that must be approved to pull
// ERC-20 deposits.
func (c *Config) erc20GatewayAddress() string {
	if c.network == Mainnet {
		return mainnetERC20GatewayAddr
	}
	return kairosERC20GatewayAddr
}

// erc20RouterAddress is the L1 router that initiates ERC-20 deposits.
func (c *Config) erc20RouterAddress() string {
	if c.network == Mainnet {
		return mainnetERC20RouterAddr
	}
	return kairosERC20RouterAddr
}
