package rpcclient

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Block mirrors the subset of the eth_getBlockByNumber result the
// monitor cares about. Fields are kept as hex-ish wire types rather
// than decoded into big.Int/[]byte everywhere so that the classifier
// can apply the same byte-offset heuristics the original service
// applied to raw JSON strings.
type Block struct {
	Number       *hexutil.Big   `json:"number"`
	Hash         common.Hash    `json:"hash"`
	ParentHash   common.Hash    `json:"parentHash"`
	Timestamp    hexutil.Uint64 `json:"timestamp"`
	LogsBloom    hexutil.Bytes  `json:"logsBloom"`
	Transactions []Transaction  `json:"transactions"`
}

// NumberU64 returns the block number as a uint64.
func (b *Block) NumberU64() uint64 {
	if b == nil || b.Number == nil {
		return 0
	}
	return (*b.Number).ToInt().Uint64()
}

// EmptyLogsBloom reports whether the bloom filter is the all-zero
// value, in which case eth_getLogs is skipped entirely (spec.md §4.5
// step 7, §8 boundary behavior).
func (b *Block) EmptyLogsBloom() bool {
	for _, by := range b.LogsBloom {
		if by != 0 {
			return false
		}
	}
	return true
}

// Transaction mirrors the subset of a JSON-RPC transaction object the
// monitor reads. BlockNumber is nil for a pending transaction. Logs is
// populated by the block-check loop from a separate eth_getLogs call
// (the RPC schema itself never embeds logs on a transaction).
type Transaction struct {
	Hash        common.Hash     `json:"hash"`
	From        common.Address  `json:"from"`
	To          *common.Address `json:"to"`
	Nonce       hexutil.Uint64  `json:"nonce"`
	Value       *hexutil.Big    `json:"value"`
	Gas         hexutil.Uint64  `json:"gas"`
	GasPrice    *hexutil.Big    `json:"gasPrice"`
	Input       hexutil.Bytes   `json:"input"`
	BlockNumber *hexutil.Big    `json:"blockNumber"`

	Logs []Log `json:"-"`
}

// ToAddressOrContractCreation returns the `to` address in canonical
// lowercase hex, or "0x" for a contract-creation transaction (spec.md
// §3, §8 boundary behavior).
func (t *Transaction) ToAddressOrContractCreation() string {
	if t.To == nil {
		return "0x"
	}
	return lowerHex(t.To.Hex())
}

func (t *Transaction) FromAddress() string { return lowerHex(t.From.Hex()) }

func (t *Transaction) NonceU64() uint64 { return uint64(t.Nonce) }

func (t *Transaction) BlockNumberU64() (uint64, bool) {
	if t.BlockNumber == nil {
		return 0, false
	}
	return (*t.BlockNumber).ToInt().Uint64(), true
}

func (t *Transaction) InputHex() string {
	return hexutil.Encode(t.Input)
}

// Log mirrors the subset of an eth_getLogs result entry the
// classifier needs.
type Log struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
	TxHash  common.Hash    `json:"transactionHash"`
	Index   hexutil.Uint64 `json:"logIndex"`
}

func lowerHex(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
