package monitor

import "github.com/ethereum/go-ethereum/common"

// Default topic and contract constants (spec.md §6). These are
// treated as configuration with documented defaults: an operator can
// override any of them per SPEC_FULL.md's design note, via
// config.Config's TransferTopic/DepositTopic/WithdrawalTopic/
// WETHContract fields, for a non-mainnet deployment.
const (
	// DefaultTransferTopic is keccak256("Transfer(address,address,uint256)").
	DefaultTransferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
	// DefaultDepositTopic is keccak256("Deposit(address,uint256)"), WETH's deposit event.
	DefaultDepositTopic = "0xe1fffcc4923d04b559f4d29a8bfc6cda04eb5b0d3c460751c2402c5c5cc9109c"
	// DefaultWithdrawalTopic is keccak256("Withdrawal(address,uint256)"), WETH's withdrawal event.
	DefaultWithdrawalTopic = "0x7fcf532c15f0a6db0bd6d0e038bea71d30d808c7d98cb3bf7268a95bf5081b65"
	// DefaultWETHContractAddress is the canonical mainnet WETH9 contract.
	DefaultWETHContractAddress = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
)

// ZeroAddress synthesizes the counterparty for WETH deposit/withdraw
// transfers (spec.md §4.7 step 4, WETH special case).
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// Topics holds the resolved (default-or-overridden) constants a
// Monitor classifies logs against.
type Topics struct {
	Transfer     common.Hash
	Deposit      common.Hash
	Withdrawal   common.Hash
	WETHContract string
}

func defaultString(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}

// ResolveTopics applies overrides over the documented defaults.
func ResolveTopics(transfer, deposit, withdrawal, weth string) Topics {
	return Topics{
		Transfer:     common.HexToHash(defaultString(transfer, DefaultTransferTopic)),
		Deposit:      common.HexToHash(defaultString(deposit, DefaultDepositTopic)),
		Withdrawal:   common.HexToHash(defaultString(withdrawal, DefaultWithdrawalTopic)),
		WETHContract: defaultString(weth, DefaultWETHContractAddress),
	}
}

// ERC-20 method selectors sniffed from pending-tx input data (spec.md §4.7 step 4).
const (
	selectorTransfer     = "0xa9059cbb" // transfer(address,uint256)
	selectorTransferFrom = "0x23b872dd" // transferFrom(address,address,uint256)
	selectorWETHDeposit  = "0xd0e30db0" // deposit()
	selectorWETHWithdraw = "0x2e1a7d4d" // withdraw(uint256)
)
