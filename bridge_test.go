package alphasec

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-memory ChainBackend for bridge tests.
type fakeBackend struct {
	mu                 sync.Mutex
	nonce              uint64
	gasPrice           *big.Int
	allowanceVal       *big.Int
	allowanceAfterSend *big.Int
	autoReceipt        bool
	sent               []*types.Transaction
	receiptStatus      map[common.Hash]uint64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		gasPrice:      big.NewInt(25_000_000_000),
		allowanceVal:  new(big.Int),
		receiptStatus: make(map[common.Hash]uint64),
	}
}

func (f *fakeBackend) NonceAt(context.Context, common.Address, *big.Int) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeBackend) CallContract(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return common.LeftPadBytes(f.allowanceVal.Bytes(), 32), nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	if f.allowanceAfterSend != nil {
		f.allowanceVal = f.allowanceAfterSend
	}
	if f.autoReceipt {
		f.receiptStatus[tx.Hash()] = types.ReceiptStatusSuccessful
	}
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.receiptStatus[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return &types.Receipt{Status: status, TxHash: hash}, nil
}

func (f *fakeBackend) sentTxs() []*types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.Transaction(nil), f.sent...)
}

func newTestBridge(t *testing.T) *bridge {
	t.Helper()
	cfg := newTestConfig(t, ConfigOptions{L1PrivateKey: testPrivateKey})
	b := newBridge(cfg, nil)
	b.allowancePollInterval = time.Millisecond
	return b
}

func TestScaleToOnchain(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		amount   string
		decimals uint32
		want     string
	}{
		{"1.5", 18, "1500000000000000000"},
		{"0.000001", 6, "1"},
		{"100", 6, "100000000"},
		{"0.1234567", 6, "123456"},
	} {
		got, err := scaleToOnchain(decimal.RequireFromString(tc.amount), tc.decimals)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.String(), "amount %s", tc.amount)
	}

	_, err := scaleToOnchain(decimal.RequireFromString("-1"), 18)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestDepositTransactionNative(t *testing.T) {
	t.Parallel()
	b := newTestBridge(t)
	backend := newFakeBackend()
	backend.nonce = 7

	signedTx, err := b.depositTransaction(context.Background(), backend, NativeTokenID, decimal.RequireFromString("1.5"), "", 18)
	require.NoError(t, err)
	tx := decodeEnvelope(t, signedTx)

	assert.Equal(t, uint8(types.LegacyTxType), tx.Type())
	assert.Equal(t, uint64(7), tx.Nonce())
	require.NotNil(t, tx.To())
	assert.Equal(t, common.HexToAddress(kairosInboxAddr), *tx.To())
	assert.Equal(t, "1500000000000000000", tx.Value().String())

	expectedData, err := parsedInboxABI.Pack("depositEth")
	require.NoError(t, err)
	assert.Equal(t, expectedData, tx.Data())

	// Nothing was sent; the caller submits the returned transaction.
	assert.Empty(t, backend.sentTxs())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1001)), tx)
	require.NoError(t, err)
	assert.Equal(t, testChecksummed, sender.Hex())
}

func TestDepositTransactionERC20WithApproval(t *testing.T) {
	t.Parallel()
	b := newTestBridge(t)
	backend := newFakeBackend()
	tokenAddr := "0xaaaa000000000000000000000000000000000001"
	amount := decimal.RequireFromString("100") // 6 decimals -> 100000000
	backend.allowanceAfterSend = big.NewInt(100_000_000)

	signedTx, err := b.depositTransaction(context.Background(), backend, "2", amount, tokenAddr, 6)
	require.NoError(t, err)

	// The approve went through the backend and targeted the token.
	sent := backend.sentTxs()
	require.Len(t, sent, 1)
	require.NotNil(t, sent[0].To())
	assert.Equal(t, common.HexToAddress(tokenAddr), *sent[0].To())

	tx := decodeEnvelope(t, signedTx)
	require.NotNil(t, tx.To())
	assert.Equal(t, common.HexToAddress(kairosERC20RouterAddr), *tx.To())
	assert.Equal(t, depositCallValue, tx.Value())
}

func TestDepositTransactionERC20SkipsApproveWhenCovered(t *testing.T) {
	t.Parallel()
	b := newTestBridge(t)
	backend := newFakeBackend()
	backend.allowanceVal = big.NewInt(100_000_000)

	_, err := b.depositTransaction(context.Background(), backend, "2", decimal.RequireFromString("100"), "0xaaaa000000000000000000000000000000000001", 6)
	require.NoError(t, err)
	assert.Empty(t, backend.sentTxs())
}

func TestDepositTransactionERC20BadAddress(t *testing.T) {
	t.Parallel()
	b := newTestBridge(t)
	_, err := b.depositTransaction(context.Background(), newFakeBackend(), "2", decimal.NewFromInt(1), "not-an-address", 6)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestWithdrawTransactionNative(t *testing.T) {
	t.Parallel()
	b := newTestBridge(t)

	signedTx, err := b.withdrawTransaction(NativeTokenID, decimal.RequireFromString("2.5"), "", 1700000000000)
	require.NoError(t, err)
	tx := decodeEnvelope(t, signedTx)

	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(41001), tx.ChainId().Uint64())
	assert.Equal(t, uint64(1700000000000), tx.Nonce())
	require.NotNil(t, tx.To())
	assert.Equal(t, common.HexToAddress(systemContractAddr), *tx.To())
	assert.Equal(t, "2500000000000000000", tx.Value().String())
}

func TestWithdrawTransactionERC20(t *testing.T) {
	t.Parallel()
	b := newTestBridge(t)

	signedTx, err := b.withdrawTransaction("2", decimal.RequireFromString("10"), "0xaaaa000000000000000000000000000000000001", 5)
	require.NoError(t, err)
	tx := decodeEnvelope(t, signedTx)

	assert.Equal(t, uint64(5), tx.Nonce())
	require.NotNil(t, tx.To())
	assert.Equal(t, common.HexToAddress(l2GatewayRouterAddr), *tx.To())
	assert.Zero(t, tx.Value().Sign())
	assert.NotEmpty(t, tx.Data())
}

func TestWithdrawTransactionFreshNonce(t *testing.T) {
	t.Parallel()
	b := newTestBridge(t)
	fixed := time.UnixMilli(1700000000123)
	b.now = func() time.Time { return fixed }

	signedTx, err := b.withdrawTransaction(NativeTokenID, decimal.NewFromInt(1), "", 0)
	require.NoError(t, err)
	tx := decodeEnvelope(t, signedTx)
	assert.Equal(t, uint64(1700000000123), tx.Nonce())
}

func TestAwaitReceipt(t *testing.T) {
	t.Parallel()
	backend := newFakeBackend()
	hash := common.HexToHash("0x01")
	backend.receiptStatus[hash] = types.ReceiptStatusSuccessful

	receipt, err := awaitReceipt(context.Background(), backend, hash, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, hash, receipt.TxHash)

	reverted := common.HexToHash("0x02")
	backend.receiptStatus[reverted] = types.ReceiptStatusFailed
	_, err = awaitReceipt(context.Background(), backend, reverted, time.Millisecond)
	assert.Error(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = awaitReceipt(ctx, backend, common.HexToHash("0x03"), time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAwaitApprovalContextCancel(t *testing.T) {
	t.Parallel()
	b := newTestBridge(t)
	backend := newFakeBackend() // allowance never grows

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.depositTransaction(ctx, backend, "2", decimal.RequireFromString("100"), "0xaaaa000000000000000000000000000000000001", 6)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
