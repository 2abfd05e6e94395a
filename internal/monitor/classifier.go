package monitor

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/luxfi/ethmonitor/internal/rpcclient"
	"github.com/luxfi/ethmonitor/internal/store"
)

// tokenTransfer is one extracted ERC-20/WETH transfer, confirmed or
// sniffed from pending input data (spec.md §4.7 step 4).
type tokenTransfer struct {
	Contract string
	LogIndex int
	From     string
	To       string
	Value    string
	Status   string
}

// classify is the transaction classifier (C7): correlates tx with any
// prior record by (from, nonce), detects overwrites, extracts
// transfers, filters by interest, persists, and emits
// update_transaction. Returns the transaction_id, or 0 if the
// transaction was not interesting.
func (m *Monitor) classify(ctx context.Context, tx *rpcclient.Transaction, isReorg bool) (int64, error) {
	from := tx.FromAddress()
	nonce := tx.NonceU64()

	dbTx, err := m.correlate(ctx, from, nonce, tx.Hash)
	if err != nil {
		return 0, fmt.Errorf("correlate: %w", err)
	}

	if dbTx != nil && dbTx.Hash != tx.Hash && dbTx.Status != store.StatusError {
		if dbTx.V != nil {
			logger.Warn("signed transaction overwritten by new nonce use", "from", from, "nonce", nonce, "old_hash", dbTx.Hash, "new_hash", tx.Hash)
		}
		m.bus.UpdateTransaction(ctx, dbTx.TransactionID, string(store.StatusError))
		if err := m.store.UpdateTransactionStatus(ctx, dbTx.TransactionID, store.StatusError); err != nil {
			return 0, fmt.Errorf("mark overwritten tx error: %w", err)
		}
		dbTx = nil
	}

	if isReorg && dbTx != nil && dbTx.Hash == tx.Hash && dbTx.Status == store.StatusConfirmed {
		bn, ok := tx.BlockNumberU64()
		if !ok {
			logger.Error("reorg fast-path: previously confirmed tx now unconfirmed on node", "hash", tx.Hash)
			return 0, nil
		}
		if dbTx.BlockNumber == nil || *dbTx.BlockNumber != bn {
			if err := m.store.UpdateTransactionBlockNumber(ctx, dbTx.TransactionID, bn); err != nil {
				return 0, err
			}
		}
		return dbTx.TransactionID, nil
	}

	transfers, err := m.extractTransfers(ctx, tx, dbTx == nil)
	if err != nil {
		return 0, fmt.Errorf("extract transfers: %w", err)
	}

	interesting, err := m.isInteresting(ctx, dbTx, from, tx.ToAddressOrContractCreation(), transfers)
	if err != nil {
		return 0, err
	}
	if !interesting {
		return 0, nil
	}

	var transactionID int64
	if dbTx == nil {
		transactionID, err = m.store.InsertTx(ctx, store.InsertTxParams{
			Hash:        tx.Hash,
			FromAddress: from,
			ToAddress:   tx.ToAddressOrContractCreation(),
			Nonce:       nonce,
			Value:       bigHex(tx.Value),
			Gas:         hexutil.EncodeUint64(uint64(tx.Gas)),
			GasPrice:    bigHex(tx.GasPrice),
			Data:        tx.Input,
		})
		if err != nil {
			return 0, fmt.Errorf("insert tx: %w", err)
		}
	} else {
		transactionID = dbTx.TransactionID
	}

	for _, t := range transfers {
		ok, err := m.store.IsNotificationRegistered(ctx, t.From, t.To)
		if err != nil {
			return 0, err
		}
		if !ok {
			ok, err = m.store.IsTokenRegistered(ctx, t.From, t.To)
			if err != nil {
				return 0, err
			}
		}
		if !ok {
			continue
		}
		if err := m.store.UpsertTokenTx(ctx, store.TokenTxParams{
			TransactionID: transactionID,
			LogIndex:      t.LogIndex,
			ContractAddr:  t.Contract,
			FromAddr:      t.From,
			ToAddr:        t.To,
			Value:         t.Value,
			Status:        t.Status,
		}); err != nil {
			return 0, fmt.Errorf("upsert token tx: %w", err)
		}
	}

	status := "unconfirmed"
	if _, ok := tx.BlockNumberU64(); ok {
		status = "confirmed"
	}
	m.bus.UpdateTransaction(ctx, transactionID, status)
	return transactionID, nil
}

// correlate implements §4.7 step 1's three-query ambiguity resolution.
func (m *Monitor) correlate(ctx context.Context, from string, nonce uint64, hash common.Hash) (*store.TxRecord, error) {
	rows, err := m.store.FindTxByFromNonce(ctx, from, nonce)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return &rows[0], nil
	}

	if match, err := m.store.FindTxByFromNonceHash(ctx, from, nonce, hash); err != nil {
		return nil, err
	} else if match != nil {
		return match, nil
	}

	others, err := m.store.FindTxByFromNonceNotHashNotError(ctx, from, nonce, hash)
	if err != nil {
		return nil, err
	}
	if len(others) == 1 {
		return &others[0], nil
	}
	logger.Warn("ambiguous (from, nonce) correlation, leaving db_tx unmatched", "from", from, "nonce", nonce, "candidates", len(rows))
	return nil, nil
}

// extractTransfers runs the confirmed-log branch for a mined tx (no
// transfers when it has no logs) and, for a pending tx, the input-data
// heuristics — the latter only when there was no prior database record
// for this (from, nonce), per spec.md §4.7 step 4.
func (m *Monitor) extractTransfers(ctx context.Context, tx *rpcclient.Transaction, noPriorRecord bool) ([]tokenTransfer, error) {
	if _, confirmed := tx.BlockNumberU64(); confirmed {
		if len(tx.Logs) > 0 {
			return m.extractFromLogs(ctx, tx.Logs)
		}
		return nil, nil
	}
	if noPriorRecord {
		return m.extractFromInput(tx), nil
	}
	return nil, nil
}

func (m *Monitor) extractFromLogs(ctx context.Context, logs []rpcclient.Log) ([]tokenTransfer, error) {
	var out []tokenTransfer
	for _, lg := range logs {
		if len(lg.Topics) == 0 {
			continue
		}
		contract := strings.ToLower(lg.Address.Hex())
		logIndex := int(lg.Index)

		switch lg.Topics[0] {
		case m.topics.Transfer:
			known, err := m.store.IsKnownToken(ctx, contract)
			if err != nil {
				return nil, err
			}
			if !known {
				continue
			}
			from, to, value, ok := decodeTransferLog(lg)
			if !ok {
				logger.Warn("unexpected Transfer log shape, skipping", "contract", contract, "tx", lg.TxHash)
				continue
			}
			out = append(out, tokenTransfer{Contract: contract, LogIndex: logIndex, From: from, To: to, Value: value, Status: "confirmed"})

		case m.topics.Deposit, m.topics.Withdrawal:
			if contract != strings.ToLower(m.topics.WETHContract) {
				continue
			}
			if len(lg.Topics) < 2 {
				continue
			}
			addr := topicToAddress(lg.Topics[1])
			value := hexutil.Encode(lg.Data)
			if lg.Topics[0] == m.topics.Deposit {
				out = append(out, tokenTransfer{Contract: contract, LogIndex: logIndex, From: ZeroAddress, To: addr, Value: value, Status: "confirmed"})
			} else {
				out = append(out, tokenTransfer{Contract: contract, LogIndex: logIndex, From: addr, To: ZeroAddress, Value: value, Status: "confirmed"})
			}
		}
	}
	return out, nil
}

// decodeTransferLog handles both the indexed form (3 topics, 32-byte
// data) and the non-indexed form (1 topic, 96-byte data) of an ERC-20
// Transfer event.
func decodeTransferLog(lg rpcclient.Log) (from, to, value string, ok bool) {
	data := hexutil.Encode(lg.Data)
	switch {
	case len(lg.Topics) == 3 && len(lg.Data) == 32:
		return topicToAddress(lg.Topics[1]), topicToAddress(lg.Topics[2]), data, true
	case len(lg.Topics) == 1 && len(lg.Data) == 96:
		from = lowerHexAddr(lg.Data[12:32])
		to = lowerHexAddr(lg.Data[44:64])
		value = hexutil.Encode(lg.Data[64:96])
		return from, to, value, true
	default:
		return "", "", "", false
	}
}

// extractFromInput sniffs a pending tx's input for an ERC-20 or WETH
// method selector (§4.7 step 4 pending branch).
func (m *Monitor) extractFromInput(tx *rpcclient.Transaction) []tokenTransfer {
	input := tx.InputHex()
	contract := tx.ToAddressOrContractCreation()
	from := tx.FromAddress()

	switch {
	case strings.HasPrefix(input, selectorTransfer) && len(input) == 138:
		to := "0x" + input[34:74]
		value := normalizeValueHex("0x" + input[len(input)-64:])
		return []tokenTransfer{{Contract: contract, LogIndex: 0, From: from, To: to, Value: value, Status: "unconfirmed"}}

	case strings.HasPrefix(input, selectorTransferFrom) && len(input) == 202:
		fromArg := "0x" + input[34:74]
		to := "0x" + input[98:138]
		value := normalizeValueHex("0x" + input[len(input)-64:])
		return []tokenTransfer{{Contract: contract, LogIndex: 0, From: fromArg, To: to, Value: value, Status: "unconfirmed"}}

	case input == selectorWETHDeposit && contract == strings.ToLower(m.topics.WETHContract):
		return []tokenTransfer{{Contract: contract, LogIndex: 0, From: ZeroAddress, To: from, Value: bigHex(tx.Value), Status: "unconfirmed"}}

	case strings.HasPrefix(input, selectorWETHWithdraw) && len(input) == 74:
		value := normalizeValueHex("0x" + input[len(input)-64:])
		return []tokenTransfer{{Contract: contract, LogIndex: 0, From: from, To: ZeroAddress, Value: value, Status: "unconfirmed"}}
	}
	return nil
}

// isInteresting implements §4.7 step 5.
func (m *Monitor) isInteresting(ctx context.Context, dbTx *store.TxRecord, from, to string, transfers []tokenTransfer) (bool, error) {
	if dbTx != nil {
		return true, nil
	}
	if ok, err := m.store.IsNotificationRegistered(ctx, from, to); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	for _, t := range transfers {
		if ok, err := m.store.IsNotificationRegistered(ctx, t.From, t.To); err != nil {
			return false, err
		} else if ok {
			return true, nil
		}
		if ok, err := m.store.IsTokenRegistered(ctx, t.From, t.To); err != nil {
			return false, err
		} else if ok {
			return true, nil
		}
	}
	return false, nil
}

func topicToAddress(h common.Hash) string {
	return strings.ToLower(common.BytesToAddress(h.Bytes()).Hex())
}

func lowerHexAddr(b []byte) string {
	return strings.ToLower(common.BytesToAddress(b).Hex())
}

func hexString(b []byte) string {
	return hexutil.Encode(b)
}

// bigHex renders a *hexutil.Big as its canonical hex encoding, or "0x0"
// for nil (a value/gasPrice absent from the wire response).
func bigHex(v *hexutil.Big) string {
	if v == nil {
		return "0x0"
	}
	return hexutil.EncodeBig((*big.Int)(v))
}

// normalizeValueHex canonicalizes a token-transfer value extracted by
// byte-offset slicing (leading zeros, odd length) into the same
// encoding bigHex produces, using uint256 rather than big.Int since
// every value here is guaranteed to fit 256 bits by construction.
func normalizeValueHex(raw string) string {
	v, err := uint256.FromHex(raw)
	if err != nil {
		return raw
	}
	return hexutil.EncodeBig(v.ToBig())
}
