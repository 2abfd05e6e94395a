// Package store implements the persistent block/transaction record
// (C2): blocks, the high-water mark, transactions, token
// transactions, notification registrations, and the token registry.
// All operations run over a pooled PostgreSQL connection.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luxfi/ethmonitor/log"
)

var logger = log.New("component", "store")

// BlockRecord is a row of the `blocks` table (spec.md §3).
type BlockRecord struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Timestamp  int64
	Stale      bool
}

// TxStatus is the lifecycle state of a transaction row.
type TxStatus string

const (
	StatusNew         TxStatus = "new"
	StatusUnconfirmed TxStatus = "unconfirmed"
	StatusConfirmed   TxStatus = "confirmed"
	StatusError       TxStatus = "error"
)

// TxRecord is a row of the `transactions` table (spec.md §3).
type TxRecord struct {
	TransactionID int64
	Hash          common.Hash
	FromAddress   string
	ToAddress     string
	Nonce         uint64
	Value         string
	Gas           string
	GasPrice      string
	Data          []byte
	BlockNumber   *uint64
	Status        TxStatus
	V             *string
}

// InsertTxParams is the payload for inserting a new transaction row.
type InsertTxParams struct {
	Hash        common.Hash
	FromAddress string
	ToAddress   string
	Nonce       uint64
	Value       string
	Gas         string
	GasPrice    string
	Data        []byte
}

// FilterRegistration is a row of the `filter_registrations` table
// (spec.md §6): a subscriber's own filter handle and topic, keyed by
// the (contract, topic) pair the notification fired on.
type FilterRegistration struct {
	FilterID string
	Topic    string
}

// TokenTxParams is the payload for upserting a `token_transactions`
// row keyed by (transaction_id, transaction_log_index).
type TokenTxParams struct {
	TransactionID  int64
	LogIndex       int
	ContractAddr   string
	FromAddr       string
	ToAddr         string
	Value          string
	Status         string
}

// Store is the interface the monitor components depend on; Postgres
// is the only production implementation but tests substitute a fake.
type Store interface {
	LatestNonStaleBlock(ctx context.Context) (*BlockRecord, error)
	HighWaterMark(ctx context.Context) (uint64, bool, error)
	InitHighWaterMark(ctx context.Context, n uint64) error
	BlockAt(ctx context.Context, n uint64) (*BlockRecord, error)
	HighestBlockBelow(ctx context.Context, n uint64) (uint64, bool, error)
	UpsertBlock(ctx context.Context, rec BlockRecord) error
	MarkStaleAbove(ctx context.Context, n uint64) error
	BumpHighWater(ctx context.Context, n uint64) error
	SetHighWater(ctx context.Context, n uint64) error

	FindTxByFromNonce(ctx context.Context, from string, nonce uint64) ([]TxRecord, error)
	FindTxByFromNonceHash(ctx context.Context, from string, nonce uint64, hash common.Hash) (*TxRecord, error)
	FindTxByFromNonceNotHashNotError(ctx context.Context, from string, nonce uint64, hash common.Hash) ([]TxRecord, error)
	UpdateTransactionStatus(ctx context.Context, id int64, status TxStatus) error
	UpdateTransactionBlockNumber(ctx context.Context, id int64, blockNumber uint64) error
	InsertTx(ctx context.Context, p InsertTxParams) (int64, error)
	UpsertTokenTx(ctx context.Context, p TokenTxParams) error

	IsKnownToken(ctx context.Context, contract string) (bool, error)
	IsTokenRegistered(ctx context.Context, addrs ...string) (bool, error)
	IsNotificationRegistered(ctx context.Context, addrs ...string) (bool, error)

	NonReadyTokens(ctx context.Context) ([]string, error)
	CountTokenRegistrations(ctx context.Context, contract string) (int, error)
	PageTokenRegistrations(ctx context.Context, contract string, offset, limit int) ([]string, error)
	MarkTokensReady(ctx context.Context, contracts []string) error

	ClampCollectiblesLastBlock(ctx context.Context, n uint64) error

	FindFilterRegistrations(ctx context.Context, contract, topic string) ([]FilterRegistration, error)

	Close()
}

type pgStore struct {
	pool *pgxpool.Pool
}

// Open connects a pgxpool against dsn.
func Open(ctx context.Context, dsn string) (Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &pgStore{pool: pool}, nil
}

func (s *pgStore) Close() { s.pool.Close() }

func (s *pgStore) LatestNonStaleBlock(ctx context.Context) (*BlockRecord, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT blocknumber, hash, parent_hash, timestamp, stale FROM blocks WHERE stale = FALSE ORDER BY blocknumber DESC LIMIT 1")
	return scanBlock(row)
}

func (s *pgStore) HighWaterMark(ctx context.Context) (uint64, bool, error) {
	var n uint64
	err := s.pool.QueryRow(ctx, "SELECT blocknumber FROM last_blocknumber").Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (s *pgStore) InitHighWaterMark(ctx context.Context, n uint64) error {
	_, err := s.pool.Exec(ctx, "INSERT INTO last_blocknumber (blocknumber) VALUES ($1)", n)
	return err
}

func (s *pgStore) BlockAt(ctx context.Context, n uint64) (*BlockRecord, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT blocknumber, hash, parent_hash, timestamp, stale FROM blocks WHERE blocknumber = $1", n)
	return scanBlock(row)
}

func (s *pgStore) HighestBlockBelow(ctx context.Context, n uint64) (uint64, bool, error) {
	var result uint64
	err := s.pool.QueryRow(ctx,
		"SELECT blocknumber FROM blocks WHERE blocknumber < $1 ORDER BY blocknumber DESC LIMIT 1", n).Scan(&result)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return result, true, nil
}

func (s *pgStore) UpsertBlock(ctx context.Context, rec BlockRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO blocks (blocknumber, hash, parent_hash, timestamp, stale)
		 VALUES ($1, $2, $3, $4, FALSE)
		 ON CONFLICT (blocknumber) DO UPDATE SET
		   hash = EXCLUDED.hash, parent_hash = EXCLUDED.parent_hash,
		   timestamp = EXCLUDED.timestamp, stale = FALSE`,
		rec.Number, rec.Hash, rec.ParentHash, rec.Timestamp)
	return err
}

func (s *pgStore) MarkStaleAbove(ctx context.Context, n uint64) error {
	_, err := s.pool.Exec(ctx, "UPDATE blocks SET stale = TRUE WHERE blocknumber > $1", n)
	return err
}

func (s *pgStore) BumpHighWater(ctx context.Context, n uint64) error {
	_, err := s.pool.Exec(ctx, "UPDATE last_blocknumber SET blocknumber = $1 WHERE blocknumber < $1", n)
	return err
}

func (s *pgStore) SetHighWater(ctx context.Context, n uint64) error {
	_, err := s.pool.Exec(ctx, "UPDATE last_blocknumber SET blocknumber = $1", n)
	return err
}

func (s *pgStore) FindTxByFromNonce(ctx context.Context, from string, nonce uint64) ([]TxRecord, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT transaction_id, hash, from_address, to_address, nonce, value, gas, gas_price, data, blocknumber, status, v "+
			"FROM transactions WHERE from_address = $1 AND nonce = $2", from, nonce)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTxRows(rows)
}

func (s *pgStore) FindTxByFromNonceHash(ctx context.Context, from string, nonce uint64, hash common.Hash) (*TxRecord, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT transaction_id, hash, from_address, to_address, nonce, value, gas, gas_price, data, blocknumber, status, v "+
			"FROM transactions WHERE from_address = $1 AND nonce = $2 AND hash = $3 AND (status != 'error' OR status = 'new')",
		from, nonce, hash)
	return scanTxRow(row)
}

func (s *pgStore) FindTxByFromNonceNotHashNotError(ctx context.Context, from string, nonce uint64, hash common.Hash) ([]TxRecord, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT transaction_id, hash, from_address, to_address, nonce, value, gas, gas_price, data, blocknumber, status, v "+
			"FROM transactions WHERE from_address = $1 AND nonce = $2 AND hash != $3 AND (status != 'error' OR status = 'new')",
		from, nonce, hash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTxRows(rows)
}

func (s *pgStore) UpdateTransactionStatus(ctx context.Context, id int64, status TxStatus) error {
	_, err := s.pool.Exec(ctx, "UPDATE transactions SET status = $1 WHERE transaction_id = $2", status, id)
	return err
}

func (s *pgStore) UpdateTransactionBlockNumber(ctx context.Context, id int64, blockNumber uint64) error {
	_, err := s.pool.Exec(ctx, "UPDATE transactions SET blocknumber = $1 WHERE transaction_id = $2", blockNumber, id)
	return err
}

func (s *pgStore) InsertTx(ctx context.Context, p InsertTxParams) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO transactions (hash, from_address, to_address, nonce, value, gas, gas_price, data, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'new')
		 RETURNING transaction_id`,
		p.Hash, p.FromAddress, p.ToAddress, p.Nonce, p.Value, p.Gas, p.GasPrice, p.Data).Scan(&id)
	return id, err
}

func (s *pgStore) UpsertTokenTx(ctx context.Context, p TokenTxParams) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO token_transactions
		   (transaction_id, transaction_log_index, contract_address, from_address, to_address, value, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (transaction_id, transaction_log_index) DO UPDATE SET
		   from_address = EXCLUDED.from_address, to_address = EXCLUDED.to_address, value = EXCLUDED.value`,
		p.TransactionID, p.LogIndex, p.ContractAddr, p.FromAddr, p.ToAddr, p.Value, p.Status)
	return err
}

func (s *pgStore) IsKnownToken(ctx context.Context, contract string) (bool, error) {
	return s.exists(ctx, "SELECT 1 FROM tokens WHERE contract_address = $1", contract)
}

func (s *pgStore) IsTokenRegistered(ctx context.Context, addrs ...string) (bool, error) {
	if len(addrs) == 0 {
		return false, nil
	}
	return s.exists(ctx, "SELECT 1 FROM token_registrations WHERE eth_address = ANY($1)", addrs)
}

// IsNotificationRegistered also matches the legacy registration alias
// (SPEC_FULL.md §4.11) where token_id == eth_address.
func (s *pgStore) IsNotificationRegistered(ctx context.Context, addrs ...string) (bool, error) {
	if len(addrs) == 0 {
		return false, nil
	}
	return s.exists(ctx,
		"SELECT 1 FROM notification_registrations WHERE eth_address = ANY($1) OR token_id = ANY($1)", addrs)
}

func (s *pgStore) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *pgStore) NonReadyTokens(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT contract_address FROM tokens WHERE ready = FALSE AND custom = FALSE")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

func (s *pgStore) CountTokenRegistrations(ctx context.Context, contract string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, "SELECT count(*) FROM token_registrations WHERE token_id = $1", contract).Scan(&n)
	return n, err
}

func (s *pgStore) PageTokenRegistrations(ctx context.Context, contract string, offset, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT eth_address FROM token_registrations WHERE token_id = $1 ORDER BY registration_id OFFSET $2 LIMIT $3",
		contract, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

func (s *pgStore) MarkTokensReady(ctx context.Context, contracts []string) error {
	if len(contracts) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, "UPDATE tokens SET ready = TRUE WHERE contract_address = ANY($1)", contracts)
	return err
}

func (s *pgStore) ClampCollectiblesLastBlock(ctx context.Context, n uint64) error {
	_, err := s.pool.Exec(ctx, "UPDATE collectibles SET last_block = $1 WHERE last_block > $1", n)
	return err
}

func (s *pgStore) FindFilterRegistrations(ctx context.Context, contract, topic string) ([]FilterRegistration, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT filter_id, topic FROM filter_registrations WHERE contract_address = $1 AND topic_id = $2",
		contract, topic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FilterRegistration
	for rows.Next() {
		var r FilterRegistration
		if err := rows.Scan(&r.FilterID, &r.Topic); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanBlock(row pgx.Row) (*BlockRecord, error) {
	var rec BlockRecord
	err := row.Scan(&rec.Number, &rec.Hash, &rec.ParentHash, &rec.Timestamp, &rec.Stale)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanTxRow(row pgx.Row) (*TxRecord, error) {
	var rec TxRecord
	err := row.Scan(&rec.TransactionID, &rec.Hash, &rec.FromAddress, &rec.ToAddress, &rec.Nonce,
		&rec.Value, &rec.Gas, &rec.GasPrice, &rec.Data, &rec.BlockNumber, &rec.Status, &rec.V)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanTxRows(rows pgx.Rows) ([]TxRecord, error) {
	var out []TxRecord
	for rows.Next() {
		var rec TxRecord
		if err := rows.Scan(&rec.TransactionID, &rec.Hash, &rec.FromAddress, &rec.ToAddress, &rec.Nonce,
			&rec.Value, &rec.Gas, &rec.GasPrice, &rec.Data, &rec.BlockNumber, &rec.Status, &rec.V); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
