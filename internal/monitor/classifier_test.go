package monitor

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/luxfi/ethmonitor/internal/rpcclient"
	"github.com/luxfi/ethmonitor/internal/store"
)

func newTestMonitor(t *testing.T) (*Monitor, *store.MemStore, *MockBus) {
	t.Helper()
	ctrl := gomock.NewController(t)
	bus := NewMockBus(ctrl)
	st := store.NewMemStore()
	m := New(Config{PendingTxExpiry: defaultPendingExpiryForTests}, nil, st, nil, bus, nil)
	return m, st, bus
}

const defaultPendingExpiryForTests = 60 * time.Second

func bigPtr(v int64) *hexutil.Big {
	b := hexutil.Big(*big.NewInt(v))
	return &b
}

// S1 — normal block ingestion: a confirmed tx whose sender is
// registered is inserted and dispatched as confirmed.
func TestClassify_NormalIngestion(t *testing.T) {
	m, st, bus := newTestMonitor(t)
	ctx := context.Background()

	from := "0x0000000000000000000000000000000000000001"
	to := "0x0000000000000000000000000000000000000002"
	st.SeedNotificationReg(from)

	bn := uint64(101)
	tx := &rpcclient.Transaction{
		Hash:        common.HexToHash("0xaaaa"),
		From:        common.HexToAddress(from),
		To:          addrPtr(to),
		Nonce:       5,
		Value:       bigPtr(10),
		Gas:         21000,
		GasPrice:    bigPtr(1),
		BlockNumber: bigPtr(int64(bn)),
	}

	bus.EXPECT().UpdateTransaction(gomock.Any(), gomock.Any(), "confirmed").Times(1)

	id, err := m.classify(ctx, tx, false)
	require.NoError(t, err)
	require.NotZero(t, id)

	rec, ok := st.Tx(id)
	require.True(t, ok)
	require.Equal(t, from, rec.FromAddress)
	require.Equal(t, store.StatusNew, rec.Status)
}

// S3 — overwritten nonce: a prior unconfirmed row with a different
// hash is marked error and a fresh row is inserted for the new hash.
func TestClassify_OverwrittenNonce(t *testing.T) {
	m, st, bus := newTestMonitor(t)
	ctx := context.Background()

	from := "0x0000000000000000000000000000000000000003"
	st.SeedNotificationReg(from)
	v := "signed"
	oldID := st.SeedTx(store.TxRecord{
		Hash:        common.HexToHash("0xA"),
		FromAddress: from,
		Nonce:       7,
		Status:      store.StatusUnconfirmed,
		V:           &v,
	})

	tx := &rpcclient.Transaction{
		Hash:     common.HexToHash("0xB"),
		From:     common.HexToAddress(from),
		Nonce:    7,
		Value:    bigPtr(1),
		GasPrice: bigPtr(1),
	}

	bus.EXPECT().UpdateTransaction(gomock.Any(), oldID, "error").Times(1)
	bus.EXPECT().UpdateTransaction(gomock.Any(), gomock.Not(gomock.Eq(oldID)), "unconfirmed").Times(1)

	newID, err := m.classify(ctx, tx, false)
	require.NoError(t, err)
	require.NotEqual(t, oldID, newID)

	oldRec, _ := st.Tx(oldID)
	require.Equal(t, store.StatusError, oldRec.Status)
}

// S5 — WETH deposit: a pending transaction calling WETH's deposit()
// produces a synthetic transfer from the zero address.
func TestClassify_WETHDeposit(t *testing.T) {
	m, st, bus := newTestMonitor(t)
	ctx := context.Background()

	from := "0x0000000000000000000000000000000000000004"
	st.SeedNotificationReg(from)
	weth := m.topics.WETHContract

	tx := &rpcclient.Transaction{
		Hash:     common.HexToHash("0xC"),
		From:     common.HexToAddress(from),
		To:       addrPtr(weth),
		Nonce:    1,
		Value:    bigPtr(5),
		GasPrice: bigPtr(1),
		Input:    hexutil.MustDecode("0xd0e30db0"),
	}

	bus.EXPECT().UpdateTransaction(gomock.Any(), gomock.Any(), "unconfirmed").Times(1)

	id, err := m.classify(ctx, tx, false)
	require.NoError(t, err)
	require.NotZero(t, id)

	tt, ok := st.TokenTx(id, 0)
	require.True(t, ok)
	require.Equal(t, ZeroAddress, tt.FromAddr)
	require.Equal(t, from, tt.ToAddr)
}

// Interest filter: an uninteresting tx (no registered endpoints, no
// prior record) is not persisted and nothing is dispatched.
func TestClassify_NotInteresting(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	ctx := context.Background()

	tx := &rpcclient.Transaction{
		Hash:     common.HexToHash("0xD"),
		From:     common.HexToAddress("0x0000000000000000000000000000000000000099"),
		To:       addrPtr("0x0000000000000000000000000000000000000098"),
		Nonce:    0,
		Value:    bigPtr(1),
		GasPrice: bigPtr(1),
	}

	id, err := m.classify(ctx, tx, false)
	require.NoError(t, err)
	require.Zero(t, id)
}

func addrPtr(s string) *common.Address {
	a := common.HexToAddress(s)
	return &a
}
