package payment

import (
	"context"

	rd "github.com/redis/go-redis/v9"

	"mobile_money/internal/queue"
)

// StreamOutbox 把支付事件原子追加到 Redis Stream，
// 由 queue.Relay 异步转发 Kafka。请求路径只承担一次 XADD 的开销。
type StreamOutbox struct {
	rdb    *rd.Client
	stream string
}

func NewStreamOutbox(rdb *rd.Client, stream string) *StreamOutbox {
	return &StreamOutbox{rdb: rdb, stream: stream}
}

// Publish 字段名与 queue.parsePaymentEvent 的解析约定保持一致。
func (o *StreamOutbox) Publish(ctx context.Context, ev queue.PaymentEvent) error {
	return o.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: o.stream,
		Values: map[string]interface{}{
			"event_id":       ev.EventID,
			"type":           ev.Type,
			"order_id":       ev.OrderID,
			"order_number":   ev.OrderNumber,
			"transaction_id": ev.TransactionID,
			"external_ref":   ev.ExternalRef,
			"amount":         ev.Amount,
			"currency":       ev.Currency,
		},
	}).Err()
}
