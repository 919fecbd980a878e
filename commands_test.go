package alphasec

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOwner = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"

func TestEncodeOrderCommand(t *testing.T) {
	t.Parallel()
	payload, err := encodeCommand(cmdOrder, &orderCommand{
		L1Owner:    testOwner,
		BaseToken:  "5",
		QuoteToken: "2",
		Side:       Buy,
		Price:      "50000",
		Quantity:   "1",
		OrderType:  Limit,
		OrderMode:  ModeBase,
	})
	require.NoError(t, err)
	require.NotEmpty(t, payload)
	assert.Equal(t, byte(0x21), payload[0])
	assert.Equal(t,
		`{"l1owner":"`+testOwner+`","baseToken":"5","quoteToken":"2","side":0,"price":"50000","quantity":"1","orderType":0,"orderMode":0}`,
		string(payload[1:]))
}

func TestEncodeCancelCommand(t *testing.T) {
	t.Parallel()
	payload, err := encodeCommand(cmdCancel, &cancelCommand{
		L1Owner: testOwner,
		OrderID: "o-123",
	})
	require.NoError(t, err)
	assert.Equal(t, byte(0x22), payload[0])
	assert.Equal(t, `{"l1owner":"`+testOwner+`","orderId":"o-123"}`, string(payload[1:]))
}

func TestEncodeTransferCommands(t *testing.T) {
	t.Parallel()
	payload, err := encodeCommand(cmdTransfer, &valueTransfer{
		L1Owner: testOwner,
		To:      "0x70997970c51812dc3a010c7d01b50e0d17dc79c8",
		Value:   "1.5",
	})
	require.NoError(t, err)
	assert.Equal(t, byte(0x02), payload[0])
	assert.Equal(t,
		`{"l1owner":"`+testOwner+`","to":"0x70997970c51812dc3a010c7d01b50e0d17dc79c8","value":"1.5"}`,
		string(payload[1:]))

	payload, err = encodeCommand(cmdTokenTransfer, &tokenTransfer{
		L1Owner: testOwner,
		To:      "0x70997970c51812dc3a010c7d01b50e0d17dc79c8",
		Value:   "10",
		Token:   "3",
	})
	require.NoError(t, err)
	assert.Equal(t, byte(0x11), payload[0])
	assert.Contains(t, string(payload[1:]), `"token":"3"`)
}

func TestTPSLToWire(t *testing.T) {
	t.Parallel()
	assert.Nil(t, (*TPSL)(nil).toWire())
	assert.Nil(t, (&TPSL{}).toWire())

	tp := decimal.RequireFromString("51000")
	slTrig := decimal.RequireFromString("49000")
	w := (&TPSL{TPLimit: &tp, SLTrigger: &slTrig}).toWire()
	require.NotNil(t, w)
	assert.Equal(t, "51000", w.TPLimit)
	assert.Equal(t, "49000", w.SLTrigger)
	assert.Empty(t, w.SLLimit)
}

func TestEncodeOrderCommandWithTPSL(t *testing.T) {
	t.Parallel()
	tp := decimal.RequireFromString("51000")
	payload, err := encodeCommand(cmdOrder, &orderCommand{
		L1Owner:    testOwner,
		BaseToken:  "5",
		QuoteToken: "2",
		Side:       Sell,
		Price:      "50000",
		Quantity:   "1",
		OrderType:  Limit,
		OrderMode:  ModeBase,
		TPSL:       (&TPSL{TPLimit: &tp}).toWire(),
	})
	require.NoError(t, err)
	assert.Contains(t, string(payload[1:]), `"tpsl":{"tpLimit":"51000"}`)
}

func TestEncodeModifyCommand(t *testing.T) {
	t.Parallel()
	payload, err := encodeCommand(cmdModify, &modifyCommand{
		L1Owner:   testOwner,
		OrderID:   "77",
		NewPrice:  "101",
		NewQty:    "2",
		OrderMode: ModeBase,
	})
	require.NoError(t, err)
	assert.Equal(t, byte(0x24), payload[0])
	assert.Equal(t,
		`{"l1owner":"`+testOwner+`","orderId":"77","newPrice":"101","newQty":"2","orderMode":0}`,
		string(payload[1:]))
}

func TestEncodeStopOrderCommand(t *testing.T) {
	t.Parallel()
	payload, err := encodeCommand(cmdStopOrder, &stopOrderCommand{
		L1Owner:    testOwner,
		BaseToken:  "5",
		QuoteToken: "2",
		StopPrice:  "48000",
		Price:      "47900",
		Quantity:   "1",
		Side:       Sell,
		OrderType:  Limit,
		OrderMode:  ModeBase,
	})
	require.NoError(t, err)
	assert.Equal(t, byte(0x25), payload[0])
	assert.Contains(t, string(payload[1:]), `"stopPrice":"48000"`)
	assert.Contains(t, string(payload[1:]), `"side":1`)
}
