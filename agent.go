package alphasec

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Agent is the unified entry point: REST queries, signed trading
// commands, bridge transfers and streaming subscriptions behind one
// struct.
type Agent struct {
	cfg    *Config
	api    *Client
	signer *Signer
	bridge *bridge
	meta   *TokenMetadata
	stream *Stream
	log    *zap.Logger

	// dialBackend is injectable for tests; the default dials the
	// network's public L1 RPC endpoint.
	dialBackend func(ctx context.Context) (ChainBackend, error)

	receiptPoll time.Duration
}

// NewAgent builds an Agent over cfg and loads token metadata from the
// exchange. A nil logger disables logging. The stream stays idle until
// Start.
func NewAgent(ctx context.Context, cfg *Config, log *zap.Logger) (*Agent, error) {
	if log == nil {
		log = zap.NewNop()
	}
	api := NewClient(cfg, log)
	tokens, err := api.GetTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("load token metadata: %w", err)
	}
	a := &Agent{
		cfg:         cfg,
		api:         api,
		signer:      NewSigner(cfg),
		bridge:      newBridge(cfg, log),
		meta:        NewTokenMetadata(tokens),
		stream:      NewStream(DefaultStreamConfig(cfg.WSURL()), log),
		log:         log,
		receiptPoll: 2 * time.Second,
	}
	a.dialBackend = func(ctx context.Context) (ChainBackend, error) {
		return ethclient.DialContext(ctx, cfg.l1RPCURL())
	}
	log.Info("agent initialized", zap.String("network", string(cfg.NetworkName())))
	return a, nil
}

// L1Address returns the owner address.
func (a *Agent) L1Address() string { return a.cfg.L1Address() }

// SessionEnabled reports whether L2 envelopes are signed with the
// session key.
func (a *Agent) SessionEnabled() bool { return a.cfg.SessionEnabled() }

// Metadata exposes the loaded token metadata.
func (a *Agent) Metadata() *TokenMetadata { return a.meta }

// NewSessionID generates a random session identifier.
func NewSessionID() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return id.String(), nil
}

// resultOrError unwraps the response envelope into its result string.
func resultOrError(resp *APIResponse) (string, error) {
	if !resp.Success() {
		return "", newAPIError(resp.Code, resp.ErrMsg)
	}
	return resp.ResultString(), nil
}

// === Streaming ===

// Start launches the websocket connection.
func (a *Agent) Start() error {
	return a.stream.Start()
}

// Stop closes the websocket connection.
func (a *Agent) Stop() {
	a.stream.Stop()
}

// Subscribe registers a channel of the form "type@target".
// trade/ticker/depth targets are BASE/QUOTE market names resolved to
// market ids through the token metadata; userEvent targets are wallet
// addresses passed through unchanged. Blocks until the connection is
// established or ctx expires.
func (a *Agent) Subscribe(ctx context.Context, channel string) (int, error) {
	kind, target, ok := strings.Cut(channel, "@")
	if !ok {
		return 0, fmt.Errorf("%w: channel format is 'type@target', got %q", ErrInvalidParameter, channel)
	}

	var actual string
	switch kind {
	case "trade", "ticker", "depth":
		marketID, err := a.meta.MarketToMarketID(target)
		if err != nil {
			return 0, err
		}
		actual = kind + "@" + marketID
	case "userEvent":
		actual = channel
	default:
		return 0, fmt.Errorf("%w: channel type %q, use trade, ticker, depth or userEvent", ErrInvalidParameter, kind)
	}

	if err := a.waitConnected(ctx); err != nil {
		return 0, err
	}
	id, err := a.stream.Subscribe(actual)
	if err != nil {
		return 0, err
	}
	a.log.Info("subscribed", zap.String("channel", channel), zap.Int("id", id))
	return id, nil
}

// Unsubscribe removes a subscription by id.
func (a *Agent) Unsubscribe(id int) error {
	return a.stream.Unsubscribe(id)
}

// TakeMessages hands out the stream's receive channel. One take only.
func (a *Agent) TakeMessages() (<-chan StreamMessage, error) {
	return a.stream.TakeMessages()
}

// SendRaw writes a raw text frame on the active connection.
func (a *Agent) SendRaw(raw []byte) error {
	return a.stream.Send(raw)
}

// StreamStats returns the stream's cumulative counters.
func (a *Agent) StreamStats() ConnectionStats {
	return a.stream.Stats()
}

func (a *Agent) waitConnected(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		switch a.stream.State() {
		case StateConnected:
			return nil
		case StateClosed:
			return ErrStreamClosed
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("await connection: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// === Trading ===

// Order places an order on market ("BASE/QUOTE"). Price and quantity
// are normalized before encoding. A zero timestampMS means a fresh
// millisecond nonce.
func (a *Agent) Order(ctx context.Context, market string, side Side, price, quantity decimal.Decimal, orderType OrderType, orderMode OrderMode, tpsl *TPSL, timestampMS uint64) (string, error) {
	baseID, quoteID, err := a.marketTokenIDs(market)
	if err != nil {
		return "", err
	}
	data, err := a.signer.orderData(baseID, quoteID, side, price, quantity, orderType, orderMode, tpsl)
	if err != nil {
		return "", err
	}
	signedTx, err := a.signer.buildEnvelope(timestampMS, data, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.api.submitTx(ctx, "/api/v1/order", signedTx)
	if err != nil {
		return "", err
	}
	return resultOrError(resp)
}

// Cancel cancels one order by id.
func (a *Agent) Cancel(ctx context.Context, orderID string, timestampMS uint64) (string, error) {
	data, err := a.signer.cancelData(orderID)
	if err != nil {
		return "", err
	}
	signedTx, err := a.signer.buildEnvelope(timestampMS, data, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.api.submitTx(ctx, "/api/v1/wallet/order/cancel", signedTx)
	if err != nil {
		return "", err
	}
	return resultOrError(resp)
}

// CancelAll cancels every working order of the owner.
func (a *Agent) CancelAll(ctx context.Context, timestampMS uint64) (string, error) {
	data, err := a.signer.cancelAllData()
	if err != nil {
		return "", err
	}
	signedTx, err := a.signer.buildEnvelope(timestampMS, data, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.api.submitTx(ctx, "/api/v1/order/cancel/all", signedTx)
	if err != nil {
		return "", err
	}
	return resultOrError(resp)
}

// Modify replaces the price and quantity of a working order.
func (a *Agent) Modify(ctx context.Context, orderID string, newPrice, newQty decimal.Decimal, orderMode OrderMode, timestampMS uint64) (string, error) {
	data, err := a.signer.modifyData(orderID, newPrice, newQty, orderMode)
	if err != nil {
		return "", err
	}
	signedTx, err := a.signer.buildEnvelope(timestampMS, data, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.api.submitTx(ctx, "/api/v1/wallet/order/modify", signedTx)
	if err != nil {
		return "", err
	}
	return resultOrError(resp)
}

// StopOrder places a stop order. Base and quote are token symbols.
func (a *Agent) StopOrder(ctx context.Context, baseSymbol, quoteSymbol string, stopPrice, price, quantity decimal.Decimal, side Side, orderType OrderType, orderMode OrderMode, timestampMS uint64) (string, error) {
	baseID, err := a.meta.TokenID(baseSymbol)
	if err != nil {
		return "", err
	}
	quoteID, err := a.meta.TokenID(quoteSymbol)
	if err != nil {
		return "", err
	}
	data, err := a.signer.stopOrderData(baseID, quoteID, stopPrice, price, quantity, side, orderType, orderMode)
	if err != nil {
		return "", err
	}
	signedTx, err := a.signer.buildEnvelope(timestampMS, data, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.api.submitTx(ctx, "/api/v1/wallet/order/stop", signedTx)
	if err != nil {
		return "", err
	}
	return resultOrError(resp)
}

// === Transfers ===

// NativeTransfer moves native value to another L2 account.
func (a *Agent) NativeTransfer(ctx context.Context, to string, value decimal.Decimal, timestampMS uint64) (string, error) {
	if !validAddress(to) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, to)
	}
	data, err := a.signer.valueTransferData(to, value)
	if err != nil {
		return "", err
	}
	signedTx, err := a.signer.buildEnvelope(timestampMS, data, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.api.submitTx(ctx, "/api/v1/wallet/transfer", signedTx)
	if err != nil {
		return "", err
	}
	return resultOrError(resp)
}

// TokenTransfer moves a token balance to another L2 account. Token is a
// symbol resolved through the metadata.
func (a *Agent) TokenTransfer(ctx context.Context, to string, value decimal.Decimal, token string, timestampMS uint64) (string, error) {
	if !validAddress(to) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, to)
	}
	tokenID, err := a.meta.TokenID(token)
	if err != nil {
		return "", err
	}
	data, err := a.signer.tokenTransferData(to, value, tokenID)
	if err != nil {
		return "", err
	}
	signedTx, err := a.signer.buildEnvelope(timestampMS, data, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.api.submitTx(ctx, "/api/v1/wallet/transfer", signedTx)
	if err != nil {
		return "", err
	}
	return resultOrError(resp)
}

// === Sessions ===

// sessionWallet resolves the delegated key: an explicit hex key wins,
// otherwise the configured L2 key is used.
func (a *Agent) sessionWallet(sessionKeyHex string) (*wallet, error) {
	if sessionKeyHex != "" {
		w, err := newWalletFromHex(sessionKeyHex)
		if err != nil {
			return nil, fmt.Errorf("%w: session key: %w", ErrInvalidParameter, err)
		}
		return w, nil
	}
	if a.cfg.l2Wallet == nil {
		return nil, fmt.Errorf("%w: L2 wallet is required for session operations", ErrInvalidParameter)
	}
	return a.cfg.l2Wallet, nil
}

// CreateSession registers a session wallet under sessionID. An empty
// sessionID generates a random one; an empty sessionKeyHex uses the
// configured L2 key. The envelope is signed with the session key itself
// so the exchange can bind it to the authorization.
func (a *Agent) CreateSession(ctx context.Context, sessionID, sessionKeyHex string, timestampMS, expiresAt uint64, metadata []byte) (string, error) {
	if sessionID == "" {
		var err error
		sessionID, err = NewSessionID()
		if err != nil {
			return "", err
		}
	}
	w, err := a.sessionWallet(sessionKeyHex)
	if err != nil {
		return "", err
	}
	data, err := a.signer.sessionCommandData(sessionCreate, w, timestampMS, expiresAt, metadata)
	if err != nil {
		return "", err
	}
	signedTx, err := a.signer.buildEnvelope(timestampMS, data, w)
	if err != nil {
		return "", err
	}
	resp, err := a.api.submitSessionTx(ctx, "/api/v1/wallet/session", sessionID, signedTx)
	if err != nil {
		return "", err
	}
	return resultOrError(resp)
}

// UpdateSession refreshes the expiry or metadata of a session.
func (a *Agent) UpdateSession(ctx context.Context, sessionID, sessionKeyHex string, timestampMS, expiresAt uint64, metadata []byte) (string, error) {
	w, err := a.sessionWallet(sessionKeyHex)
	if err != nil {
		return "", err
	}
	data, err := a.signer.sessionCommandData(sessionUpdate, w, timestampMS, expiresAt, metadata)
	if err != nil {
		return "", err
	}
	signedTx, err := a.signer.buildEnvelope(timestampMS, data, w)
	if err != nil {
		return "", err
	}
	resp, err := a.api.submitSessionTx(ctx, "/api/v1/wallet/session/update", sessionID, signedTx)
	if err != nil {
		return "", err
	}
	return resultOrError(resp)
}

// DeleteSession revokes a session wallet.
func (a *Agent) DeleteSession(ctx context.Context, sessionKeyHex string, timestampMS uint64) (string, error) {
	w, err := a.sessionWallet(sessionKeyHex)
	if err != nil {
		return "", err
	}
	data, err := a.signer.sessionCommandData(sessionDelete, w, timestampMS, 0, nil)
	if err != nil {
		return "", err
	}
	signedTx, err := a.signer.buildEnvelope(timestampMS, data, w)
	if err != nil {
		return "", err
	}
	resp, err := a.api.submitTx(ctx, "/api/v1/wallet/session/delete", signedTx)
	if err != nil {
		return "", err
	}
	return resultOrError(resp)
}

// === Bridge ===

// DepositToken moves amount of a token (by symbol) from L1 into the
// rollup. The signed L1 transaction is submitted through the network's
// RPC endpoint and the call blocks until its receipt confirms. Returns
// the L1 transaction hash.
func (a *Agent) DepositToken(ctx context.Context, token string, amount decimal.Decimal) (string, error) {
	tokenID, err := a.meta.TokenID(token)
	if err != nil {
		return "", err
	}
	var l1Address string
	decimals := uint32(18)
	if tokenID != NativeTokenID {
		if l1Address, err = a.meta.L1Address(tokenID); err != nil {
			return "", err
		}
		if decimals, err = a.meta.L1Decimals(tokenID); err != nil {
			return "", err
		}
	}
	backend, err := a.dialBackend(ctx)
	if err != nil {
		return "", fmt.Errorf("dial L1 RPC: %w", err)
	}
	signedTx, err := a.bridge.depositTransaction(ctx, backend, tokenID, amount, l1Address, decimals)
	if err != nil {
		return "", err
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(signedTx, "0x"))
	if err != nil {
		return "", fmt.Errorf("decode signed transaction: %w", err)
	}
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return "", fmt.Errorf("decode signed transaction: %w", err)
	}
	if err := backend.SendTransaction(ctx, &tx); err != nil {
		return "", fmt.Errorf("send deposit: %w", err)
	}
	receipt, err := awaitReceipt(ctx, backend, tx.Hash(), a.receiptPoll)
	if err != nil {
		return "", err
	}
	a.log.Info("deposit confirmed",
		zap.String("token", token),
		zap.String("tx", receipt.TxHash.Hex()))
	return receipt.TxHash.Hex(), nil
}

// WithdrawToken moves amount of a token (by symbol) from the rollup
// back to the owner on L1. The signed L2 transaction goes through the
// REST withdraw endpoint.
func (a *Agent) WithdrawToken(ctx context.Context, token string, amount decimal.Decimal, timestampMS uint64) (string, error) {
	tokenID, err := a.meta.TokenID(token)
	if err != nil {
		return "", err
	}
	var l1Address string
	if tokenID != NativeTokenID {
		if l1Address, err = a.meta.L1Address(tokenID); err != nil {
			return "", err
		}
	}
	signedTx, err := a.bridge.withdrawTransaction(tokenID, amount, l1Address, timestampMS)
	if err != nil {
		return "", err
	}
	resp, err := a.api.submitTx(ctx, "/api/v1/wallet/withdraw", signedTx)
	if err != nil {
		return "", err
	}
	return resultOrError(resp)
}

// === Market data ===

func (a *Agent) marketTokenIDs(market string) (string, string, error) {
	base, quote, ok := strings.Cut(market, "/")
	if !ok {
		return "", "", fmt.Errorf("%w: market format is BASE/QUOTE, got %q", ErrInvalidParameter, market)
	}
	baseID, err := a.meta.TokenID(base)
	if err != nil {
		return "", "", err
	}
	quoteID, err := a.meta.TokenID(quote)
	if err != nil {
		return "", "", err
	}
	return baseID, quoteID, nil
}

// GetMarkets lists all markets.
func (a *Agent) GetMarkets(ctx context.Context) ([]MarketInfo, error) {
	return a.api.GetMarkets(ctx)
}

// GetTokens lists all tokens.
func (a *Agent) GetTokens(ctx context.Context) ([]Token, error) {
	return a.api.GetTokens(ctx)
}

// GetTicker fetches the 24h summary for one market ("BASE/QUOTE").
func (a *Agent) GetTicker(ctx context.Context, market string) (*Ticker, error) {
	marketID, err := a.meta.MarketToMarketID(market)
	if err != nil {
		return nil, err
	}
	tickers, err := a.api.GetTickers(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("%w: ticker for market %q", ErrNotFound, market)
	}
	return &tickers[0], nil
}

// GetTickers lists 24h summaries for all markets.
func (a *Agent) GetTickers(ctx context.Context) ([]Ticker, error) {
	return a.api.GetTickers(ctx, "")
}

// GetTrades lists recent public trades for a market ("BASE/QUOTE").
func (a *Agent) GetTrades(ctx context.Context, market string, limit uint32) ([]Trade, error) {
	marketID, err := a.meta.MarketToMarketID(market)
	if err != nil {
		return nil, err
	}
	return a.api.GetTrades(ctx, marketID, limit)
}

// GetOpenOrders lists working orders. Market, when set, is BASE/QUOTE.
func (a *Agent) GetOpenOrders(ctx context.Context, address, market string, limit uint32) ([]Order, error) {
	q, err := a.ordersQuery(address, market, limit)
	if err != nil {
		return nil, err
	}
	return a.api.GetOpenOrders(ctx, q)
}

// GetOrderHistory lists filled and canceled orders.
func (a *Agent) GetOrderHistory(ctx context.Context, address, market string, limit uint32) ([]Order, error) {
	q, err := a.ordersQuery(address, market, limit)
	if err != nil {
		return nil, err
	}
	return a.api.GetOrderHistory(ctx, q)
}

func (a *Agent) ordersQuery(address, market string, limit uint32) (*OrdersQuery, error) {
	q := &OrdersQuery{Address: address, Limit: limit}
	if market != "" {
		marketID, err := a.meta.MarketToMarketID(market)
		if err != nil {
			return nil, err
		}
		q.Market = marketID
	}
	return q, nil
}

// GetOrderByID fetches one order, or (nil, nil) when it does not exist.
func (a *Agent) GetOrderByID(ctx context.Context, orderID string) (*Order, error) {
	return a.api.GetOrderByID(ctx, orderID)
}

// GetBalance lists per-token balances for address.
func (a *Agent) GetBalance(ctx context.Context, address string) (*Balances, error) {
	return a.api.GetBalance(ctx, address)
}

// GetSessions lists registered sessions for address.
func (a *Agent) GetSessions(ctx context.Context, address string) ([]Session, error) {
	return a.api.GetSessions(ctx, address)
}

// GetTransferHistory lists deposit/withdraw/transfer records.
func (a *Agent) GetTransferHistory(ctx context.Context, q *TransferHistoryQuery) (*APIResponse, error) {
	return a.api.GetTransferHistory(ctx, q)
}
