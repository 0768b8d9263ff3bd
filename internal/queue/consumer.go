package queue

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"mobile_money/internal/model"
)

// Consumer 消费支付事件并写入 payment_events 审计表。
// 下游通知/对账任务读表即可，不必直接挂在 Kafka 上。
type Consumer struct {
	r  *kafka.Reader
	db *gorm.DB
}

func NewConsumer(brokers []string, topic, groupID string, db *gorm.DB) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		db: db,
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			return // ctx cancel / 连接断开等
		}

		var ev PaymentEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			log.Printf("consumer unmarshal: %v", err)
			continue
		}
		if err := ev.Validate(); err != nil {
			log.Printf("consumer invalid event: %v", err)
			continue
		}

		amount, err := decimal.NewFromString(ev.Amount)
		if err != nil {
			log.Printf("consumer invalid amount %q: %v", ev.Amount, err)
			continue
		}

		record := &model.PaymentEventRecord{
			EventID:       ev.EventID,
			EventType:     ev.Type,
			OrderID:       ev.OrderID,
			OrderNumber:   ev.OrderNumber,
			TransactionID: ev.TransactionID,
			ExternalRef:   ev.ExternalRef,
			Amount:        amount,
			Currency:      ev.Currency,
		}

		if err := c.db.Create(record).Error; err != nil {
			// 幂等：重复消息导致 UNIQUE 冲突，直接当作成功
			if errorsLikeUnique(err) {
				continue
			}
			log.Printf("consumer db create: %v", err)
			continue
		}
	}
}

func errorsLikeUnique(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "UNIQUE") || strings.Contains(s, "unique")
}
