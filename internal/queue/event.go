package queue

import "fmt"

// 支付事件类型：仅终态迁移会产生事件。
const (
	EventTypePaid   = "payment.paid"
	EventTypeFailed = "payment.failed"
)

// PaymentEvent 是写入 Kafka 的支付结果事件。
// Amount 统一用两位小数字符串，避免浮点精度问题跨进程扩散。
type PaymentEvent struct {
	EventID       string `json:"event_id"`
	Type          string `json:"type"`
	OrderID       uint   `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	TransactionID string `json:"transaction_id"`
	ExternalRef   string `json:"external_ref"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (e PaymentEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.Type != EventTypePaid && e.Type != EventTypeFailed {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.OrderID == 0 {
		return fmt.Errorf("order_id is required")
	}
	if e.OrderNumber == "" {
		return fmt.Errorf("order_number is required")
	}
	if e.Amount == "" {
		return fmt.Errorf("amount is required")
	}
	if e.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	return nil
}
