package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus 描述订单本身的生命周期（与支付状态相互独立）。
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

// PaymentStatus 描述支付状态机的当前状态。
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPending PaymentStatus = "pending" // 已向网关发起，等待用户确认
	PaymentPaid    PaymentStatus = "paid"    // 终态：成功后不再回退
	PaymentFailed  PaymentStatus = "failed"
	// PaymentRefunded 仅由外部人工流程写入，本服务从不赋值。
	PaymentRefunded PaymentStatus = "refunded"
)

// Order 待支付订单。订单由外部系统创建，本服务只修改支付相关字段。
type Order struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	OrderNumber string          `gorm:"size:64;uniqueIndex;not null" json:"order_number"`
	UserID      int64           `gorm:"not null;index" json:"user_id"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total_amount"`
	Currency    string          `gorm:"size:3;not null;default:XAF" json:"currency"`

	Status        OrderStatus   `gorm:"size:16;not null;default:pending" json:"status"`
	PaymentStatus PaymentStatus `gorm:"size:16;not null;default:unpaid;index" json:"payment_status"`

	// PaymentTransactionID 网关分配的交易号，一经写入不再清空。
	PaymentTransactionID string `gorm:"size:64;index" json:"payment_transaction_id"`
	// PaymentExternalRef 本地生成的对账引用，每次发起支付都会换新。
	PaymentExternalRef string     `gorm:"size:64;index" json:"payment_external_ref"`
	PaymentPhone       string     `gorm:"size:20" json:"payment_phone"`
	PaidAt             *time.Time `json:"paid_at"`
}

func (Order) TableName() string { return "orders" }

// PaymentEventRecord 是支付事件的落库审计，由 Kafka 消费者写入。
// EventID 唯一索引保证重复消息幂等。
type PaymentEventRecord struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	EventID       string          `gorm:"size:64;uniqueIndex;not null" json:"event_id"`
	EventType     string          `gorm:"size:32;not null;index" json:"event_type"`
	OrderID       uint            `gorm:"not null;index" json:"order_id"`
	OrderNumber   string          `gorm:"size:64;not null" json:"order_number"`
	TransactionID string          `gorm:"size:64" json:"transaction_id"`
	ExternalRef   string          `gorm:"size:64" json:"external_ref"`
	Amount        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency      string          `gorm:"size:3;not null" json:"currency"`
}

func (PaymentEventRecord) TableName() string { return "payment_events" }
