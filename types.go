package alphasec

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Side is the order side as the exchange encodes it.
type Side uint32

// Order sides.
const (
	Buy  Side = 0
	Sell Side = 1
)

func (s Side) String() string {
	if s == Sell {
		return "sell"
	}
	return "buy"
}

// OrderType distinguishes limit and market orders.
type OrderType uint32

// Order types.
const (
	Limit  OrderType = 0
	Market OrderType = 1
)

func (o OrderType) String() string {
	if o == Market {
		return "market"
	}
	return "limit"
}

// OrderMode selects whether quantity is denominated in the base or quote token.
type OrderMode uint32

// Order modes.
const (
	ModeBase  OrderMode = 0
	ModeQuote OrderMode = 1
)

func (m OrderMode) String() string {
	if m == ModeQuote {
		return "quote"
	}
	return "base"
}

// Order status strings as reported by the exchange.
const (
	OrderStatusNew             = "NEW"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusFilled          = "FILLED"
	OrderStatusCanceled        = "CANCELED"
	OrderStatusRejected        = "REJECTED"
	OrderStatusExpired         = "EXPIRED"
)

// Token describes a listed token from /api/v1/market/tokens.
type Token struct {
	TokenID   string `json:"tokenId"`
	L1Symbol  string `json:"l1Symbol"`
	L1Address string `json:"l1Address"`
	Decimals  uint32 `json:"l1Decimal"`
	IsActive  bool   `json:"isActive"`
}

// MarketInfo describes a listed market from /api/v1/market.
type MarketInfo struct {
	MarketID     string `json:"marketId"`
	BaseTokenID  string `json:"baseTokenId"`
	QuoteTokenID string `json:"quoteTokenId"`
	Ticker       string `json:"ticker"`
	Description  string `json:"description"`
	Exchange     string `json:"exchange"`
	Type         string `json:"type"`
	Listed       bool   `json:"listed"`
	TakerFee     string `json:"takerFee"`
	MakerFee     string `json:"makerFee"`
}

// Ticker is a 24h market summary from /api/v1/market/ticker.
type Ticker struct {
	MarketID       string `json:"marketId"`
	BaseTokenID    string `json:"baseTokenId"`
	QuoteTokenID   string `json:"quoteTokenId"`
	Price          string `json:"price"`
	Open24H        string `json:"open24h"`
	High24H        string `json:"high24h"`
	Low24H         string `json:"low24h"`
	Volume24H      string `json:"volume24h"`
	QuoteVolume24H string `json:"quoteVolume24h"`
}

// Trade is a public trade from /api/v1/market/trades.
type Trade struct {
	TradeID      string `json:"tradeId"`
	MarketID     string `json:"marketId"`
	Price        string `json:"price"`
	Quantity     string `json:"quantity"`
	BuyOrderID   string `json:"buyOrderId"`
	SellOrderID  string `json:"sellOrderId"`
	CreatedAt    uint64 `json:"createdAt"`
	IsBuyerMaker bool   `json:"isBuyerMaker"`
}

// Order is an order record from the order endpoints.
type Order struct {
	ID                uint64 `json:"id"`
	OrderID           string `json:"orderId"`
	AccountAddress    string `json:"accountAddress"`
	MarketID          string `json:"marketId"`
	Side              string `json:"side"`
	OrderType         string `json:"orderType"`
	Price             string `json:"price"`
	OrigQty           string `json:"origQty"`
	OrigQuoteOrderQty string `json:"origQuoteOrderQty"`
	IsTrigger         bool   `json:"isTrigger"`
	IsTriggered       bool   `json:"isTriggered"`
	TriggerPrice      string `json:"triggerPrice"`
	Status            string `json:"status"`
	ContingencyType   string `json:"contingencyType"`
	OtoLegType        string `json:"otoLegType"`
	TxHash            string `json:"txHash"`
	CreatedAt         uint64 `json:"createdAt"`
	UpdatedAt         uint64 `json:"updatedAt"`
	ExecutedQty       string `json:"executedQty"`
	ExecutedQuoteQty  string `json:"executedQuoteQty"`
}

// IsActive reports whether the order is still working.
func (o *Order) IsActive() bool {
	return o.Status == OrderStatusNew || o.Status == OrderStatusPartiallyFilled
}

// Balance is a per-token balance from /api/v1/wallet/balance. Amounts
// are decimal strings in the smallest on-chain unit.
type Balance struct {
	TokenID  string `json:"tokenId"`
	Locked   string `json:"locked,omitempty"`
	Unlocked string `json:"unlocked,omitempty"`
}

// AvailableDecimal converts the unlocked amount to trading units given
// the token's decimal count. An absent amount reads as zero.
func (b *Balance) AvailableDecimal(decimals uint32) (decimal.Decimal, error) {
	return onchainToDecimal(b.Unlocked, decimals)
}

// LockedDecimal converts the locked amount to trading units.
func (b *Balance) LockedDecimal(decimals uint32) (decimal.Decimal, error) {
	return onchainToDecimal(b.Locked, decimals)
}

func onchainToDecimal(raw string, decimals uint32) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Shift(-int32(decimals)), nil
}

// Balances is the /api/v1/wallet/balance result: the per-token list and
// the block it was read at.
type Balances struct {
	Balances    []Balance `json:"balances"`
	BlockNumber uint64    `json:"blockNumber"`
}

// Session is a delegated session record from /api/v1/wallet/session.
type Session struct {
	Name           string `json:"name"`
	SessionAddress string `json:"sessionAddress"`
	OwnerAddress   string `json:"ownerAddress"`
	Expiry         uint64 `json:"expiry"`
	Applied        bool   `json:"applied"`
}

// OrdersQuery filters order listings.
type OrdersQuery struct {
	Address string
	Market  string
	Limit   uint32
}

// TransferHistoryQuery filters /api/v1/wallet/transfer listings.
type TransferHistoryQuery struct {
	Address  string
	TokenID  string
	FromMsec int64
	ToMsec   int64
	Limit    uint32
}

// APIResponse is the exchange's uniform response envelope.
type APIResponse struct {
	Code   int             `json:"code"`
	Result json.RawMessage `json:"result"`
	ErrMsg string          `json:"errMsg,omitempty"`
}

// Success reports whether the application-level code signals success.
func (r *APIResponse) Success() bool {
	return r.Code == 200
}

// ResultString renders the result for callers that expect an order id or
// transaction hash: string results are unquoted, everything else is the
// raw JSON.
func (r *APIResponse) ResultString() string {
	if len(r.Result) == 0 {
		if r.ErrMsg != "" {
			return "Error: " + r.ErrMsg
		}
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Result, &s); err == nil {
		return s
	}
	return string(r.Result)
}
