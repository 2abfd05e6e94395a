// Package dispatch implements the asynchronous, fire-and-forget bus
// (spec.md §6) to the four logical downstream dispatchers: manager,
// erc20, eth, and collectibles. Messages are published over Redis
// pub/sub; a publish that fails is logged, never propagated, since no
// caller may block on — or retry — a notification.
package dispatch

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/luxfi/ethmonitor/log"
)

var logger = log.New("component", "dispatch")

const channelPrefix = "toshieth.dispatch."

// envelope is the wire format of one dispatch message.
type envelope struct {
	Method string        `json:"method"`
	Args   []interface{} `json:"args"`
}

// Bus is the interface monitor components publish through.
type Bus interface {
	UpdateDefaultGasPrice(ctx context.Context, blockNumber uint64)
	UpdateTransaction(ctx context.Context, transactionID int64, status string)
	UpdateTokenCache(ctx context.Context, contract string, addresses []string)
	SendFilterNotification(ctx context.Context, filterID, topic, data string)
	NotifyNewBlock(ctx context.Context, blockNumber uint64)
}

type redisBus struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) Bus { return &redisBus{rdb: rdb} }

func (b *redisBus) publish(ctx context.Context, dispatcher, method string, args ...interface{}) {
	payload, err := json.Marshal(envelope{Method: method, Args: args})
	if err != nil {
		logger.Error("failed to marshal dispatch message", "dispatcher", dispatcher, "method", method, "err", err)
		return
	}
	if err := b.rdb.Publish(ctx, channelPrefix+dispatcher, payload).Err(); err != nil {
		logger.Error("failed to publish dispatch message", "dispatcher", dispatcher, "method", method, "err", err)
	}
}

func (b *redisBus) UpdateDefaultGasPrice(ctx context.Context, blockNumber uint64) {
	b.publish(ctx, "manager", "update_default_gas_price", blockNumber)
}

func (b *redisBus) UpdateTransaction(ctx context.Context, transactionID int64, status string) {
	b.publish(ctx, "manager", "update_transaction", transactionID, status)
}

func (b *redisBus) UpdateTokenCache(ctx context.Context, contract string, addresses []string) {
	args := make([]interface{}, 0, len(addresses)+1)
	args = append(args, contract)
	for _, a := range addresses {
		args = append(args, a)
	}
	b.publish(ctx, "erc20", "update_token_cache", args...)
}

func (b *redisBus) SendFilterNotification(ctx context.Context, filterID, topic, data string) {
	b.publish(ctx, "eth", "send_filter_notification", filterID, topic, data)
}

func (b *redisBus) NotifyNewBlock(ctx context.Context, blockNumber uint64) {
	b.publish(ctx, "collectibles", "notify_new_block", blockNumber)
}
