package alphasec

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ChainBackend is the subset of an Ethereum RPC client the bridge needs.
// *ethclient.Client satisfies it.
type ChainBackend interface {
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var (
	parsedInboxABI         = mustParseABI(inboxABI)
	parsedERC20ABI         = mustParseABI(erc20ABI)
	parsedERC20RouterABI   = mustParseABI(erc20RouterABI)
	parsedL2SystemABI      = mustParseABI(l2SystemABI)
	parsedL2ERC20RouterABI = mustParseABI(l2ERC20RouterABI)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Deposit funding for the retryable L2 message, in L1 native wei.
var (
	depositMaxSubmissionCost = new(big.Int).SetUint64(10_000_000_000_000_000) // 0.01
	depositCallValue         = new(big.Int).SetUint64(20_000_000_000_000_000) // 0.02
)

const (
	depositL2GasLimit = uint64(1_000_000)
	depositL2GasPrice = uint64(1_000_000)
)

// bridge builds and signs deposit/withdraw transactions crossing the
// L1/L2 boundary.
type bridge struct {
	cfg *Config
	log *zap.Logger

	// allowancePollInterval paces the approve confirmation loop.
	allowancePollInterval time.Duration
	now                   func() time.Time
}

func newBridge(cfg *Config, log *zap.Logger) *bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &bridge{
		cfg:                   cfg,
		log:                   log,
		allowancePollInterval: 2 * time.Second,
		now:                   time.Now,
	}
}

// scaleToOnchain converts a trading-unit amount to the smallest on-chain
// unit without passing through binary floats.
func scaleToOnchain(amount decimal.Decimal, decimals uint32) (*big.Int, error) {
	scaled := amount.Shift(int32(decimals))
	if !scaled.IsInteger() {
		scaled = scaled.Truncate(0)
	}
	if scaled.IsNegative() {
		return nil, fmt.Errorf("%w: amount cannot be negative", ErrInvalidParameter)
	}
	return scaled.BigInt(), nil
}

// l1TxParams fetches the nonce and gas price for an L1 transaction.
func (b *bridge) l1TxParams(ctx context.Context, backend ChainBackend, from common.Address) (uint64, *big.Int, error) {
	nonce, err := backend.NonceAt(ctx, from, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: fetch account nonce: %w", ErrNonce, err)
	}
	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("fetch gas price: %w", err)
	}
	return nonce, gasPrice, nil
}

// depositTransaction builds and signs the L1 transaction that deposits
// amount of tokenID into the rollup. For ERC-20 tokens the gateway
// allowance is topped up first: the approve is submitted through backend
// and confirmed by polling the allowance, then the router transfer is
// built. The returned hex is not submitted; the caller sends it.
func (b *bridge) depositTransaction(ctx context.Context, backend ChainBackend, tokenID string, amount decimal.Decimal, tokenL1Address string, tokenDecimals uint32) (string, error) {
	if b.cfg.l1Wallet == nil {
		return "", fmt.Errorf("%w: L1 key is required for deposits", ErrSigner)
	}
	onchain, err := scaleToOnchain(amount, tokenDecimals)
	if err != nil {
		return "", err
	}
	owner := b.cfg.l1Wallet.address

	if tokenID == NativeTokenID {
		data, err := parsedInboxABI.Pack("depositEth")
		if err != nil {
			return "", fmt.Errorf("encode depositEth: %w", err)
		}
		nonce, gasPrice, err := b.l1TxParams(ctx, backend, owner)
		if err != nil {
			return "", err
		}
		tx := types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      defaultGasLimit,
			To:       addrPtr(b.cfg.inboxAddress()),
			Value:    onchain,
			Data:     data,
		})
		return b.cfg.l1Wallet.signTx(tx, b.cfg.l1ChainID())
	}

	if !validAddress(tokenL1Address) {
		return "", fmt.Errorf("%w: token L1 address %q", ErrInvalidAddress, tokenL1Address)
	}
	token := common.HexToAddress(tokenL1Address)
	gateway := common.HexToAddress(b.cfg.erc20GatewayAddress())

	allowance, err := b.allowance(ctx, backend, token, owner, gateway)
	if err != nil {
		return "", err
	}
	if allowance.Cmp(onchain) < 0 {
		if err := b.approveGateway(ctx, backend, token, gateway, owner, onchain); err != nil {
			return "", err
		}
	}

	// abi.encode(maxSubmissionCost, emptyCalldata) rides in the data arg.
	extraData, err := abiEncodeUintBytes(depositMaxSubmissionCost, nil)
	if err != nil {
		return "", err
	}
	data, err := parsedERC20RouterABI.Pack("outboundTransfer",
		token,
		owner,
		onchain,
		new(big.Int).SetUint64(depositL2GasLimit),
		new(big.Int).SetUint64(depositL2GasPrice),
		extraData,
	)
	if err != nil {
		return "", fmt.Errorf("encode outboundTransfer: %w", err)
	}
	nonce, gasPrice, err := b.l1TxParams(ctx, backend, owner)
	if err != nil {
		return "", err
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      defaultGasLimit,
		To:       addrPtr(b.cfg.erc20RouterAddress()),
		Value:    depositCallValue,
		Data:     data,
	})
	return b.cfg.l1Wallet.signTx(tx, b.cfg.l1ChainID())
}

func (b *bridge) allowance(ctx context.Context, backend ChainBackend, token, owner, spender common.Address) (*big.Int, error) {
	data, err := parsedERC20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("encode allowance: %w", err)
	}
	out, err := backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call allowance: %w", err)
	}
	vals, err := parsedERC20ABI.Unpack("allowance", out)
	if err != nil {
		return nil, fmt.Errorf("decode allowance: %w", err)
	}
	allowance, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode allowance: unexpected type %T", vals[0])
	}
	return allowance, nil
}

// approveGateway submits approve(spender, amount) and polls the
// allowance until it covers the amount. Polling replaces a fixed sleep:
// the router transfer must not be built before the approval is live.
func (b *bridge) approveGateway(ctx context.Context, backend ChainBackend, token, spender, owner common.Address, amount *big.Int) error {
	data, err := parsedERC20ABI.Pack("approve", spender, amount)
	if err != nil {
		return fmt.Errorf("encode approve: %w", err)
	}
	nonce, gasPrice, err := b.l1TxParams(ctx, backend, owner)
	if err != nil {
		return err
	}
	raw := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      defaultGasLimit,
		To:       &token,
		Value:    new(big.Int),
		Data:     data,
	})
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(b.cfg.l1ChainID()))
	signed, err := types.SignTx(raw, signer, b.cfg.l1Wallet.privateKey)
	if err != nil {
		return fmt.Errorf("%w: sign approve: %w", ErrSigner, err)
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("send approve: %w", err)
	}
	b.log.Debug("approve submitted, polling allowance",
		zap.String("token", token.Hex()),
		zap.String("tx", signed.Hash().Hex()))

	ticker := time.NewTicker(b.allowancePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("await approval: %w", ctx.Err())
		case <-ticker.C:
			current, err := b.allowance(ctx, backend, token, owner, spender)
			if err != nil {
				return err
			}
			if current.Cmp(amount) >= 0 {
				return nil
			}
		}
	}
}

// withdrawTransaction builds and signs the L2 transaction that withdraws
// amount of tokenID back to the owner on L1. The signed hex is submitted
// via the REST withdraw endpoint, not an RPC node. L2 balances are
// 18-decimal regardless of the token's L1 decimals.
func (b *bridge) withdrawTransaction(tokenID string, amount decimal.Decimal, tokenL1Address string, timestampMS uint64) (string, error) {
	if b.cfg.l1Wallet == nil {
		return "", fmt.Errorf("%w: L1 key is required for withdrawals", ErrSigner)
	}
	onchain, err := scaleToOnchain(amount, 18)
	if err != nil {
		return "", err
	}
	owner := b.cfg.l1Wallet.address
	nonce := timestampMS
	if nonce == 0 {
		nonce = uint64(b.now().UnixMilli())
	}
	chainID := b.cfg.l2ChainID()

	if tokenID == NativeTokenID {
		data, err := parsedL2SystemABI.Pack("withdrawEth", owner)
		if err != nil {
			return "", fmt.Errorf("encode withdrawEth: %w", err)
		}
		tx := types.NewTx(&types.DynamicFeeTx{
			ChainID:   new(big.Int).SetUint64(chainID),
			Nonce:     nonce,
			GasTipCap: new(big.Int).SetUint64(defaultMaxPriorityFee),
			GasFeeCap: new(big.Int).SetUint64(defaultMaxFeePerGas),
			Gas:       defaultGasLimit,
			To:        addrPtr(systemContractAddr),
			Value:     onchain,
			Data:      data,
		})
		return b.cfg.l1Wallet.signTx(tx, chainID)
	}

	if !validAddress(tokenL1Address) {
		return "", fmt.Errorf("%w: token L1 address %q", ErrInvalidAddress, tokenL1Address)
	}
	data, err := parsedL2ERC20RouterABI.Pack("outboundTransfer",
		common.HexToAddress(tokenL1Address),
		owner,
		onchain,
		[]byte{},
	)
	if err != nil {
		return "", fmt.Errorf("encode outboundTransfer: %w", err)
	}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(chainID),
		Nonce:     nonce,
		GasTipCap: new(big.Int).SetUint64(defaultMaxPriorityFee),
		GasFeeCap: new(big.Int).SetUint64(defaultMaxFeePerGas),
		Gas:       defaultGasLimit,
		To:        addrPtr(l2GatewayRouterAddr),
		Value:     new(big.Int),
		Data:      data,
	})
	return b.cfg.l1Wallet.signTx(tx, chainID)
}

// abiEncodeUintBytes is abi.encode(uint256, bytes).
func abiEncodeUintBytes(v *big.Int, data []byte) ([]byte, error) {
	uintType, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return nil, err
	}
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return nil, err
	}
	args := abi.Arguments{{Type: uintType}, {Type: bytesType}}
	encoded, err := args.Pack(v, data)
	if err != nil {
		return nil, fmt.Errorf("abi encode: %w", err)
	}
	return encoded, nil
}

// awaitReceipt polls for the receipt of txHash until ctx expires and
// returns an error when the transaction reverted.
func awaitReceipt(ctx context.Context, backend ChainBackend, txHash common.Hash, poll time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		receipt, err := backend.TransactionReceipt(ctx, txHash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("transaction %s reverted", txHash.Hex())
			}
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("await receipt: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
