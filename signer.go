package alphasec

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"
)

// Signer builds command payloads and signed L2 envelopes.
type Signer struct {
	cfg          *Config
	nonceCounter atomic.Uint64

	// now is injectable for tests.
	now func() time.Time
}

// NewSigner creates a Signer over cfg.
func NewSigner(cfg *Config) *Signer {
	return &Signer{cfg: cfg, now: time.Now}
}

// L1Address returns the owner address all payloads carry.
func (s *Signer) L1Address() string {
	return s.cfg.L1Address()
}

// nextNonce returns the current millisecond timestamp plus a process-local
// counter, so nonces stay distinct within the same millisecond.
func (s *Signer) nextNonce() uint64 {
	return uint64(s.now().UnixMilli()) + s.nonceCounter.Add(1) - 1
}

// sessionTypedData builds the EIP-712 payload authorizing sessionAddr
// until expiry. The domain is anchored to the L1 chain id; envelopes use
// the L2 chain id.
func (s *Signer) sessionTypedData(sessionAddr string, nonce, expiry uint64) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"RegisterSessionWallet": {
				{Name: "sessionWallet", Type: "address"},
				{Name: "expiry", Type: "uint64"},
				{Name: "nonce", Type: "uint64"},
			},
		},
		PrimaryType: "RegisterSessionWallet",
		Domain: apitypes.TypedDataDomain{
			Name:              eip712DomainName,
			Version:           eip712DomainVersion,
			ChainId:           ethmath.NewHexOrDecimal256(int64(s.cfg.l1ChainID())),
			VerifyingContract: zeroAddr,
		},
		Message: apitypes.TypedDataMessage{
			"sessionWallet": sessionAddr,
			"expiry":        hexOrDecimalFromUint64(expiry),
			"nonce":         hexOrDecimalFromUint64(nonce),
		},
	}
}

// sessionCommandData builds a session payload (tag 0x01): the subcommand,
// the session wallet's checksummed address, and the owner's base64
// EIP-712 signature over {sessionWallet, expiry, nonce}.
func (s *Signer) sessionCommandData(subcmd byte, sessionWallet *wallet, nonce, expiresAt uint64, metadata []byte) ([]byte, error) {
	if s.cfg.l1Wallet == nil {
		return nil, fmt.Errorf("%w: L1 key is required for session operations", ErrSigner)
	}
	sessionAddr := sessionWallet.checksumAddress()
	td := s.sessionTypedData(sessionAddr, nonce, expiresAt)
	sig, err := s.cfg.l1Wallet.signTypedData(&td)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigner, err)
	}
	body := sessionContext{
		Type:        subcmd,
		PublicKey:   sessionAddr,
		ExpiresAt:   expiresAt,
		Nonce:       nonce,
		L1Owner:     s.L1Address(),
		L1Signature: base64.StdEncoding.EncodeToString(sig),
	}
	if len(metadata) > 0 {
		body.Metadata = base64.StdEncoding.EncodeToString(metadata)
	}
	return encodeCommand(cmdSession, &body)
}

// valueTransferData builds a native transfer payload (tag 0x02).
func (s *Signer) valueTransferData(to string, value decimal.Decimal) ([]byte, error) {
	return encodeCommand(cmdTransfer, &valueTransfer{
		L1Owner: s.L1Address(),
		To:      to,
		Value:   value.String(),
	})
}

// tokenTransferData builds a token transfer payload (tag 0x11).
func (s *Signer) tokenTransferData(to string, value decimal.Decimal, tokenID string) ([]byte, error) {
	return encodeCommand(cmdTokenTransfer, &tokenTransfer{
		L1Owner: s.L1Address(),
		To:      to,
		Value:   value.String(),
		Token:   tokenID,
	})
}

// orderData builds an order payload (tag 0x21) with normalized price and
// quantity.
func (s *Signer) orderData(baseToken, quoteToken string, side Side, price, quantity decimal.Decimal, orderType OrderType, orderMode OrderMode, tpsl *TPSL) ([]byte, error) {
	normPrice, normQty, err := normalizePriceQuantity(price, quantity)
	if err != nil {
		return nil, err
	}
	return encodeCommand(cmdOrder, &orderCommand{
		L1Owner:    s.L1Address(),
		BaseToken:  baseToken,
		QuoteToken: quoteToken,
		Side:       side,
		Price:      normPrice.String(),
		Quantity:   normQty.String(),
		OrderType:  orderType,
		OrderMode:  orderMode,
		TPSL:       tpsl.toWire(),
	})
}

// cancelData builds a cancel payload (tag 0x22).
func (s *Signer) cancelData(orderID string) ([]byte, error) {
	return encodeCommand(cmdCancel, &cancelCommand{
		L1Owner: s.L1Address(),
		OrderID: orderID,
	})
}

// cancelAllData builds a cancel-all payload (tag 0x23).
func (s *Signer) cancelAllData() ([]byte, error) {
	return encodeCommand(cmdCancelAll, &cancelAllCommand{L1Owner: s.L1Address()})
}

// modifyData builds a modify payload (tag 0x24) with normalized values.
func (s *Signer) modifyData(orderID string, newPrice, newQty decimal.Decimal, orderMode OrderMode) ([]byte, error) {
	normPrice, normQty, err := normalizePriceQuantity(newPrice, newQty)
	if err != nil {
		return nil, err
	}
	return encodeCommand(cmdModify, &modifyCommand{
		L1Owner:   s.L1Address(),
		OrderID:   orderID,
		NewPrice:  normPrice.String(),
		NewQty:    normQty.String(),
		OrderMode: orderMode,
	})
}

// stopOrderData builds a stop order payload (tag 0x25). The stop price is
// normalized with the same schedule as the limit price.
func (s *Signer) stopOrderData(baseToken, quoteToken string, stopPrice, price, quantity decimal.Decimal, side Side, orderType OrderType, orderMode OrderMode) ([]byte, error) {
	normPrice, normQty, err := normalizePriceQuantity(price, quantity)
	if err != nil {
		return nil, err
	}
	normStop, _, err := normalizePriceQuantity(stopPrice, quantity)
	if err != nil {
		return nil, err
	}
	return encodeCommand(cmdStopOrder, &stopOrderCommand{
		L1Owner:    s.L1Address(),
		BaseToken:  baseToken,
		QuoteToken: quoteToken,
		StopPrice:  normStop.String(),
		Price:      normPrice.String(),
		Quantity:   normQty.String(),
		Side:       side,
		OrderType:  orderType,
		OrderMode:  orderMode,
	})
}

// buildEnvelope wraps a command payload in an EIP-1559 L2 transaction and
// signs it. timestampMS, when non-zero, becomes the nonce; otherwise a
// fresh millisecond nonce is generated. signWith overrides the active
// wallet (session create/update/delete sign with the session key itself).
func (s *Signer) buildEnvelope(timestampMS uint64, data []byte, signWith *wallet) (string, error) {
	w := signWith
	if w == nil {
		var err error
		w, err = s.cfg.activeWallet()
		if err != nil {
			return "", err
		}
	}
	nonce := timestampMS
	if nonce == 0 {
		nonce = s.nextNonce()
	}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(s.cfg.l2ChainID()),
		Nonce:     nonce,
		GasTipCap: new(big.Int).SetUint64(defaultMaxPriorityFee),
		GasFeeCap: new(big.Int).SetUint64(defaultMaxFeePerGas),
		Gas:       defaultGasLimit,
		To:        addrPtr(orderContractAddr),
		Value:     new(big.Int),
		Data:      data,
	})
	return w.signTx(tx, s.cfg.l2ChainID())
}

func addrPtr(hexAddr string) *common.Address {
	addr := common.HexToAddress(hexAddr)
	return &addr
}

func hexOrDecimalFromUint64(v uint64) *ethmath.HexOrDecimal256 {
	return (*ethmath.HexOrDecimal256)(new(big.Int).SetUint64(v))
}
