package alphasec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known development key; never funded.
const (
	testPrivateKey  = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testChecksummed = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestNewWalletFromHex(t *testing.T) {
	t.Parallel()
	w, err := newWalletFromHex(testPrivateKey)
	require.NoError(t, err)
	assert.Equal(t, testOwner, w.hexAddress())
	assert.Equal(t, testChecksummed, w.checksumAddress())

	// The 0x prefix is optional.
	w2, err := newWalletFromHex(testPrivateKey[2:])
	require.NoError(t, err)
	assert.Equal(t, w.hexAddress(), w2.hexAddress())
}

func TestNewWalletFromHexInvalid(t *testing.T) {
	t.Parallel()
	for _, key := range []string{"", "0x", "zz", "0x1234", testPrivateKey + "00"} {
		_, err := newWalletFromHex(key)
		assert.Error(t, err, "key %q", key)
	}
}

func TestValidAddress(t *testing.T) {
	t.Parallel()
	assert.True(t, validAddress(testOwner))
	assert.True(t, validAddress(testChecksummed))
	assert.False(t, validAddress(""))
	assert.False(t, validAddress("f39Fd6e51aad88F6F4ce6aB8827279cffFb92266"))
	assert.False(t, validAddress("0x123"))
	assert.False(t, validAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb9226g"))
}
