package alphasec

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

// wireJSON is the canonical wire codec: stdlib-compatible output with
// struct field order preserved and no insignificant whitespace.
var wireJSON = sonic.ConfigStd

// sessionContext is the body of a session command (tag 0x01). The type
// field carries the subcommand (create=1, update=2, delete=3).
type sessionContext struct {
	Type        byte   `json:"type"`
	PublicKey   string `json:"publickey"`
	ExpiresAt   uint64 `json:"expiresAt"`
	Nonce       uint64 `json:"nonce"`
	L1Owner     string `json:"l1owner"`
	L1Signature string `json:"l1signature"`
	Metadata    string `json:"metadata,omitempty"`
}

type valueTransfer struct {
	L1Owner string `json:"l1owner"`
	To      string `json:"to"`
	Value   string `json:"value"`
}

type tokenTransfer struct {
	L1Owner string `json:"l1owner"`
	To      string `json:"to"`
	Value   string `json:"value"`
	Token   string `json:"token"`
}

// TPSL is an optional take-profit / stop-loss attachment for an order.
type TPSL struct {
	TPLimit   *decimal.Decimal `json:"tpLimit,omitempty"`
	SLTrigger *decimal.Decimal `json:"slTrigger,omitempty"`
	SLLimit   *decimal.Decimal `json:"slLimit,omitempty"`
}

type tpslWire struct {
	TPLimit   string `json:"tpLimit,omitempty"`
	SLTrigger string `json:"slTrigger,omitempty"`
	SLLimit   string `json:"slLimit,omitempty"`
}

func (t *TPSL) toWire() *tpslWire {
	if t == nil || (t.TPLimit == nil && t.SLTrigger == nil && t.SLLimit == nil) {
		return nil
	}
	w := &tpslWire{}
	if t.TPLimit != nil {
		w.TPLimit = t.TPLimit.String()
	}
	if t.SLTrigger != nil {
		w.SLTrigger = t.SLTrigger.String()
	}
	if t.SLLimit != nil {
		w.SLLimit = t.SLLimit.String()
	}
	return w
}

type orderCommand struct {
	L1Owner    string    `json:"l1owner"`
	BaseToken  string    `json:"baseToken"`
	QuoteToken string    `json:"quoteToken"`
	Side       Side      `json:"side"`
	Price      string    `json:"price"`
	Quantity   string    `json:"quantity"`
	OrderType  OrderType `json:"orderType"`
	OrderMode  OrderMode `json:"orderMode"`
	TPSL       *tpslWire `json:"tpsl,omitempty"`
}

type cancelCommand struct {
	L1Owner string `json:"l1owner"`
	OrderID string `json:"orderId"`
}

type cancelAllCommand struct {
	L1Owner string `json:"l1owner"`
}

type modifyCommand struct {
	L1Owner   string    `json:"l1owner"`
	OrderID   string    `json:"orderId"`
	NewPrice  string    `json:"newPrice"`
	NewQty    string    `json:"newQty"`
	OrderMode OrderMode `json:"orderMode"`
}

type stopOrderCommand struct {
	L1Owner    string    `json:"l1owner"`
	BaseToken  string    `json:"baseToken"`
	QuoteToken string    `json:"quoteToken"`
	StopPrice  string    `json:"stopPrice"`
	Price      string    `json:"price"`
	Quantity   string    `json:"quantity"`
	Side       Side      `json:"side"`
	OrderType  OrderType `json:"orderType"`
	OrderMode  OrderMode `json:"orderMode"`
}

// encodeCommand produces the wire form of a command: the tag byte
// followed by the canonical JSON body.
func encodeCommand(tag byte, body any) ([]byte, error) {
	raw, err := wireJSON.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode command 0x%02x: %w", tag, err)
	}
	payload := make([]byte, 0, len(raw)+1)
	payload = append(payload, tag)
	return append(payload, raw...), nil
}
