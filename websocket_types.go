package alphasec

import (
	"encoding/json"
	"strings"

	"github.com/buger/jsonparser"
)

// StreamMessage is a typed inbound message delivered on the stream's
// receive channel.
type StreamMessage interface {
	isStreamMessage()
}

// AckMessage acknowledges a subscribe/unsubscribe request. Acks are
// consumed by the stream itself and never reach the consumer.
type AckMessage struct {
	ID     int    `json:"id"`
	Result string `json:"result"`
}

// TradeMessage carries public trades for a subscribed market.
type TradeMessage struct {
	Channel string  `json:"channel"`
	Trades  []Trade `json:"result"`
}

// DepthUpdate is an order-book delta for a subscribed market.
type DepthUpdate struct {
	MarketID string     `json:"marketId"`
	Bids     [][]string `json:"bids,omitempty"`
	Asks     [][]string `json:"asks,omitempty"`
	FirstID  int64      `json:"firstId"`
	FinalID  int64      `json:"finalId"`
	Time     int64      `json:"time"`
}

// DepthMessage carries an order-book delta.
type DepthMessage struct {
	Channel string      `json:"channel"`
	Depth   DepthUpdate `json:"result"`
}

// TickerMessage carries 24h summaries for subscribed markets.
type TickerMessage struct {
	Channel string   `json:"channel"`
	Tickers []Ticker `json:"result"`
}

// UserOrderEvent is the ORDER-topic body of a user event.
type UserOrderEvent struct {
	OrderID           string `json:"orderId"`
	MarketID          string `json:"marketId"`
	Side              string `json:"side"`
	OrderType         string `json:"orderType"`
	OrderMode         int32  `json:"orderMode"`
	OrigPrice         string `json:"origPrice"`
	OrigQty           string `json:"origQty"`
	OrigQuoteOrderQty string `json:"origQuoteOrderQty"`
	Status            string `json:"status"`
	CreatedAt         int64  `json:"createdAt"`
	ExecutedQty       string `json:"executedQty"`
	ExecutedQuoteQty  string `json:"executedQuoteQty"`
	LastPrice         string `json:"lastPrice"`
	LastQty           string `json:"lastQty"`
	Fee               string `json:"fee"`
	FeeTokenID        string `json:"feeTokenId,omitempty"`
	TradeID           string `json:"tradeId"`
	IsMaker           bool   `json:"isMaker"`
}

// UserAccountEvent is the ACCOUNT-topic body of a user event.
type UserAccountEvent struct {
	TokenID     string `json:"tokenId"`
	Amount      string `json:"amount"`
	FromAddress string `json:"fromAddress,omitempty"`
	ToAddress   string `json:"toAddress,omitempty"`
}

// UserEvent is a private account or order update. Topic discriminates
// which of Order and Account is populated.
type UserEvent struct {
	Topic          string `json:"topic"`
	EventType      string `json:"eventType"`
	EventTime      int64  `json:"eventTime"`
	BlockNumber    int64  `json:"blockNumber"`
	AccountAddress string `json:"accountAddress"`
	TxHash         string `json:"txHash"`

	Order   *UserOrderEvent   `json:"-"`
	Account *UserAccountEvent `json:"-"`
}

// User event topics.
const (
	TopicOrder   = "ORDER"
	TopicAccount = "ACCOUNT"
)

// UnmarshalJSON decodes the flat wire schema, then the topic-specific
// fields into Order or Account.
func (e *UserEvent) UnmarshalJSON(data []byte) error {
	type base UserEvent
	if err := wireJSON.Unmarshal(data, (*base)(e)); err != nil {
		return err
	}
	switch strings.ToUpper(e.Topic) {
	case TopicOrder:
		e.Topic = TopicOrder
		e.Order = &UserOrderEvent{}
		return wireJSON.Unmarshal(data, e.Order)
	case TopicAccount:
		e.Topic = TopicAccount
		e.Account = &UserAccountEvent{}
		return wireJSON.Unmarshal(data, e.Account)
	default:
		return nil
	}
}

// UserEventMessage carries a private update for a subscribed address.
type UserEventMessage struct {
	Channel string    `json:"channel"`
	Event   UserEvent `json:"result"`
}

// GenericMessage wraps any frame that does not match a known schema.
type GenericMessage struct {
	Raw json.RawMessage
}

// PingMessage is a server ping; the stream answers it automatically.
type PingMessage struct {
	Payload []byte
}

// PongMessage is a server pong; it resets the liveness clock.
type PongMessage struct {
	Payload []byte
}

// DisconnectedMessage marks the end of a connection on the receive
// channel. Consumers observe delivery gaps through it.
type DisconnectedMessage struct{}

func (*AckMessage) isStreamMessage()          {}
func (*TradeMessage) isStreamMessage()        {}
func (*DepthMessage) isStreamMessage()        {}
func (*TickerMessage) isStreamMessage()       {}
func (*UserEventMessage) isStreamMessage()    {}
func (*GenericMessage) isStreamMessage()      {}
func (*PingMessage) isStreamMessage()         {}
func (*PongMessage) isStreamMessage()         {}
func (*DisconnectedMessage) isStreamMessage() {}

// wsRequest is the client→server subscribe/unsubscribe frame.
type wsRequest struct {
	Method string          `json:"method"`
	Params wsRequestParams `json:"params"`
	ID     int             `json:"id"`
}

type wsRequestParams struct {
	Channels []string `json:"channels"`
}

type wsUpdate struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// parseStreamMessage classifies an inbound text frame by best-effort
// schema match. Unparseable but valid JSON becomes a GenericMessage;
// invalid payloads return nil.
func parseStreamMessage(data []byte) StreamMessage {
	if !json.Valid(data) {
		return nil
	}

	// Acks echo the request id next to a result string.
	if _, err := jsonparser.GetInt(data, "id"); err == nil {
		if _, err := jsonparser.GetString(data, "result"); err == nil {
			ack := &AckMessage{}
			if wireJSON.Unmarshal(data, ack) == nil {
				return ack
			}
		}
	}

	method, _ := jsonparser.GetString(data, "method")
	if method == "subscription" {
		channel, err := jsonparser.GetString(data, "params", "channel")
		if err == nil {
			var update wsUpdate
			if wireJSON.Unmarshal(data, &update) == nil {
				if msg := parseSubscriptionUpdate(channel, update.Params); msg != nil {
					return msg
				}
			}
		}
	}

	return &GenericMessage{Raw: append(json.RawMessage(nil), data...)}
}

func parseSubscriptionUpdate(channel string, params json.RawMessage) StreamMessage {
	kind, _, _ := strings.Cut(channel, "@")
	switch kind {
	case "trade":
		msg := &TradeMessage{}
		if wireJSON.Unmarshal(params, msg) == nil {
			return msg
		}
	case "depth":
		msg := &DepthMessage{}
		if wireJSON.Unmarshal(params, msg) == nil {
			return msg
		}
	case "ticker":
		msg := &TickerMessage{}
		if wireJSON.Unmarshal(params, msg) == nil {
			return msg
		}
	case "userEvent":
		msg := &UserEventMessage{}
		if wireJSON.Unmarshal(params, msg) == nil {
			return msg
		}
	}
	return nil
}
