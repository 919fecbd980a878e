package alphasec

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var hexAddressRE = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// validAddress reports whether addr is a 0x-prefixed 20-byte hex address.
func validAddress(addr string) bool {
	return hexAddressRE.MatchString(addr)
}

type wallet struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func newWalletFromHex(hexKey string) (*wallet, error) {
	key := strings.TrimPrefix(hexKey, "0x")
	if key == "" {
		return nil, errPrivateKeyNotProvided
	}
	keyBytes, err := hex.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("invalid private key length %d", len(keyBytes))
	}
	priv, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("construct private key: %w", err)
	}
	return &wallet{
		privateKey: priv,
		address:    crypto.PubkeyToAddress(priv.PublicKey),
	}, nil
}

func (w *wallet) hexAddress() string {
	return strings.ToLower(w.address.Hex())
}

func (w *wallet) checksumAddress() string {
	return w.address.Hex()
}

// signTypedData hashes td per EIP-712 and returns the 65-byte signature
// with the recovery byte shifted to 27/28.
func (w *wallet) signTypedData(td *apitypes.TypedData) ([]byte, error) {
	if td == nil {
		return nil, errTypedDataMissing
	}
	hash, _, err := apitypes.TypedDataAndHash(*td)
	if err != nil {
		return nil, fmt.Errorf("typed data hash: %w", err)
	}
	sig, err := crypto.Sign(hash, w.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign typed data: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// signTx signs tx for chainID and returns the 0x-prefixed canonical
// encoding of the signed transaction.
func (w *wallet) signTx(tx *types.Transaction, chainID uint64) (string, error) {
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(chainID))
	signed, err := types.SignTx(tx, signer, w.privateKey)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSigner, err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("encode signed transaction: %w", err)
	}
	return "0x" + hex.EncodeToString(raw), nil
}
