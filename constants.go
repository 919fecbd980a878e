package alphasec

// L2 contract addresses. These are network-independent.
const (
	orderContractAddr         = "0x00000000000000000000000000000000000000cc"
	systemContractAddr        = "0x0000000000000000000000000000000000000064"
	l2GatewayRouterAddr       = "0xD2b30f9548DEE14093CF903ec70866469EFff97A"
	zeroAddr                  = "0x0000000000000000000000000000000000000000"
	mainnetInboxAddr          = "0x6EE619c6E74e34a802279437e22c98633c28643e"
	kairosInboxAddr           = "0x6EE619c6E74e34a802279437e22c98633c28643e"
	mainnetERC20GatewayAddr   = "0xec5cD95184124Ee2cc4C90fb7f74E3b717160d51"
	kairosERC20GatewayAddr    = "0xec5cD95184124Ee2cc4C90fb7f74E3b717160d51"
	mainnetERC20RouterAddr    = "0x6c1f5fef508715b6E1a541594046DB2831f0F6CE"
	kairosERC20RouterAddr     = "0x6c1f5fef508715b6E1a541594046DB2831f0F6CE"
	mainnetL1RPCURL           = "https://public-en-cypress.klaytn.net"
	kairosL1RPCURL            = "https://public-en-kairos.node.kaia.io"
	defaultAPIURL             = "https://api-testnet.alphasec.trade"
	alphasecMainnetL2RPCURL   = "https://rpc.alphasec.trade"
	alphasecKairosL2RPCURL    = "https://kairos-rpc.alphasec.trade"
	alphasecChainID           = uint64(41001)
	kaiaMainnetChainID        = uint64(8217)
	kaiaKairosChainID         = uint64(1001)
	defaultGasLimit           = uint64(1_000_000)
	defaultGasPrice           = uint64(0)
	defaultMaxFeePerGas       = uint64(0)
	defaultMaxPriorityFee     = uint64(0)
)

// Command tags. The first byte of every command payload.
const (
	cmdSession       = byte(0x01)
	cmdTransfer      = byte(0x02)
	cmdTokenTransfer = byte(0x11)
	cmdOrder         = byte(0x21)
	cmdCancel        = byte(0x22)
	cmdCancelAll     = byte(0x23)
	cmdModify        = byte(0x24)
	cmdStopOrder     = byte(0x25)
)

// Session subcommands carried in the session payload's type field.
const (
	sessionCreate = byte(0x01)
	sessionUpdate = byte(0x02)
	sessionDelete = byte(0x03)
)

// NativeTokenID is the exchange's token id for the L1 native coin.
const NativeTokenID = "1"

// EIP-712 session authorization domain.
const (
	eip712DomainName    = "DEXSignTransaction"
	eip712DomainVersion = "1"
)

// Contract ABI fragments for the bridge paths.
const (
	inboxABI = `[{"inputs":[],"name":"depositEth","outputs":[],"stateMutability":"payable","type":"function"}]`

	erc20ABI = `[{"inputs":[{"internalType":"address","name":"spender","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"approve","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},{"inputs":[{"internalType":"address","name":"owner","type":"address"},{"internalType":"address","name":"spender","type":"address"}],"name":"allowance","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

	erc20RouterABI = `[{"inputs":[{"internalType":"address","name":"token","type":"address"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"uint256","name":"maxGas","type":"uint256"},{"internalType":"uint256","name":"gasPriceBid","type":"uint256"},{"internalType":"bytes","name":"data","type":"bytes"}],"name":"outboundTransfer","outputs":[{"internalType":"bytes","name":"","type":"bytes"}],"stateMutability":"payable","type":"function"}]`

	l2SystemABI = `[{"inputs":[{"internalType":"address","name":"to","type":"address"}],"name":"withdrawEth","outputs":[],"stateMutability":"payable","type":"function"}]`

	l2ERC20RouterABI = `[{"inputs":[{"internalType":"address","name":"token","type":"address"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"bytes","name":"data","type":"bytes"}],"name":"outboundTransfer","outputs":[{"internalType":"bytes","name":"","type":"bytes"}],"stateMutability":"nonpayable","type":"function"}]`
)
