package alphasec

import (
	"fmt"
	"strings"
)

// TokenMetadata resolves symbols and markets to the numeric ids the
// exchange uses on the wire. It is built once at startup and read-only
// afterwards.
type TokenMetadata struct {
	tokenIDToSymbol  map[string]string
	symbolToTokenID  map[string]string
	tokenIDToAddress map[string]string
	tokenIDToDecimal map[string]uint32
}

// NewTokenMetadata builds the lookup maps from a token list.
func NewTokenMetadata(tokens []Token) *TokenMetadata {
	m := &TokenMetadata{
		tokenIDToSymbol:  make(map[string]string, len(tokens)),
		symbolToTokenID:  make(map[string]string, len(tokens)),
		tokenIDToAddress: make(map[string]string, len(tokens)),
		tokenIDToDecimal: make(map[string]uint32, len(tokens)),
	}
	for i := range tokens {
		t := &tokens[i]
		m.tokenIDToSymbol[t.TokenID] = t.L1Symbol
		m.symbolToTokenID[t.L1Symbol] = t.TokenID
		m.tokenIDToAddress[t.TokenID] = t.L1Address
		m.tokenIDToDecimal[t.TokenID] = t.Decimals
	}
	return m
}

// TokenID resolves a symbol like "USDT" to its token id.
func (m *TokenMetadata) TokenID(symbol string) (string, error) {
	id, ok := m.symbolToTokenID[symbol]
	if !ok {
		return "", fmt.Errorf("%w: token %q", ErrNotFound, symbol)
	}
	return id, nil
}

// Symbol resolves a token id to its L1 symbol.
func (m *TokenMetadata) Symbol(tokenID string) (string, error) {
	sym, ok := m.tokenIDToSymbol[tokenID]
	if !ok {
		return "", fmt.Errorf("%w: token id %q", ErrNotFound, tokenID)
	}
	return sym, nil
}

// L1Address resolves a token id to its L1 contract address.
func (m *TokenMetadata) L1Address(tokenID string) (string, error) {
	addr, ok := m.tokenIDToAddress[tokenID]
	if !ok {
		return "", fmt.Errorf("%w: token id %q", ErrNotFound, tokenID)
	}
	return addr, nil
}

// L1Decimals resolves a token id to its L1 decimal count.
func (m *TokenMetadata) L1Decimals(tokenID string) (uint32, error) {
	dec, ok := m.tokenIDToDecimal[tokenID]
	if !ok {
		return 0, fmt.Errorf("%w: token id %q", ErrNotFound, tokenID)
	}
	return dec, nil
}

// MarketToMarketID converts "BASE/QUOTE" to "<base_id>_<quote_id>".
func (m *TokenMetadata) MarketToMarketID(market string) (string, error) {
	base, quote, ok := strings.Cut(market, "/")
	if !ok {
		return "", fmt.Errorf("%w: market %q, expected BASE/QUOTE", ErrInvalidParameter, market)
	}
	baseID, err := m.TokenID(base)
	if err != nil {
		return "", err
	}
	quoteID, err := m.TokenID(quote)
	if err != nil {
		return "", err
	}
	return baseID + "_" + quoteID, nil
}

// MarketIDToMarket converts "<base_id>_<quote_id>" back to "BASE/QUOTE".
func (m *TokenMetadata) MarketIDToMarket(marketID string) (string, error) {
	baseID, quoteID, ok := strings.Cut(marketID, "_")
	if !ok {
		return "", fmt.Errorf("%w: market id %q", ErrInvalidParameter, marketID)
	}
	base, err := m.Symbol(baseID)
	if err != nil {
		return "", err
	}
	quote, err := m.Symbol(quoteID)
	if err != nil {
		return "", err
	}
	return base + "/" + quote, nil
}
