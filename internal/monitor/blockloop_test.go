package monitor

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/mock/gomock"

	"github.com/luxfi/ethmonitor/internal/rpcclient"
	"github.com/luxfi/ethmonitor/internal/store"
)

// §4.5 step 9: a log whose (contract, topic) matches a registered
// filter dispatches a notification carrying that registration's own
// filter_id and topic, not the monitor's internal pending-tx filter
// handle.
func TestEmitFilterNotifications_DispatchesRegisteredFilter(t *testing.T) {
	ctrl := gomock.NewController(t)
	bus := NewMockBus(ctrl)
	st := store.NewMemStore()

	contract := "0x0000000000000000000000000000000000000abc"
	topic := common.HexToHash("0x01")
	st.SeedFilterRegistration(contract, topic.Hex(), "subscriber-filter-7")

	m := New(Config{}, nil, st, nil, bus, nil)
	m.filterID = "internal-pending-filter"

	logs := []rpcclient.Log{
		{
			Address: common.HexToAddress(contract),
			Topics:  []common.Hash{topic},
			Data:    hexutil.MustDecode("0x2a"),
		},
	}

	bus.EXPECT().SendFilterNotification(gomock.Any(), "subscriber-filter-7", topic.Hex(), "0x2a").Times(1)

	m.emitFilterNotifications(context.Background(), logs)
}

// A log with no matching registration dispatches nothing.
func TestEmitFilterNotifications_NoRegistration(t *testing.T) {
	ctrl := gomock.NewController(t)
	bus := NewMockBus(ctrl)
	st := store.NewMemStore()
	m := New(Config{}, nil, st, nil, bus, nil)

	logs := []rpcclient.Log{
		{
			Address: common.HexToAddress("0x00000000000000000000000000000000000abc"),
			Topics:  []common.Hash{common.HexToHash("0x01")},
			Data:    hexutil.MustDecode("0x2a"),
		},
	}

	m.emitFilterNotifications(context.Background(), logs)
}
