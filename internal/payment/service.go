package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"mobile_money/internal/gateway"
	"mobile_money/internal/model"
	"mobile_money/internal/queue"
)

// phonePattern 宽松的国际手机号格式：可选 +，10~15 位数字。
var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

// Gateway 是支付网关出站调用的最小接口（便于测试替身）。
type Gateway interface {
	Collect(ctx context.Context, p gateway.CollectParams) gateway.Result
	Verify(ctx context.Context, transactionID string) gateway.Result
}

// OrderLocker 是发起支付阶段的单订单互斥锁。
type OrderLocker interface {
	Acquire(ctx context.Context, orderID uint, token string) (bool, error)
	Release(ctx context.Context, orderID uint, token string) error
}

// EventPublisher 接收终态支付事件（outbox 实现）。
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.PaymentEvent) error
}

// Service 协调三个入口（发起、查询、回调）对同一订单的读改写。
// 所有状态迁移都走 applyEvent 的条件更新（CAS），并发路径不会交叉写坏状态。
type Service struct {
	db     *gorm.DB
	gw     Gateway
	locks  OrderLocker
	events EventPublisher
	logger *slog.Logger
}

// NewService 组装服务。locks 与 events 允许为 nil（降级运行/测试）。
func NewService(db *gorm.DB, gw Gateway, locks OrderLocker, events EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, gw: gw, locks: locks, events: events, logger: logger}
}

// InitiateResult 发起支付成功后的响应数据。
type InitiateResult struct {
	OrderID       uint
	TransactionID string
	ExternalRef   string
	Status        string
	Amount        decimal.Decimal
	Operator      string
	PaymentURL    string
	Message       string
}

// StatusResult 查询支付状态的响应数据。
type StatusResult struct {
	OrderID           uint
	PaymentStatus     model.PaymentStatus
	TransactionStatus string
	Amount            decimal.Decimal
	Operator          string
}

// CallbackPayload 网关回调的关键字段（其余字段忽略）。
type CallbackPayload struct {
	TransactionID string `json:"transaction_id"`
	ExternalRef   string `json:"external_ref"`
	Status        string `json:"status"`
}

// CallbackResult 回调处理后的订单支付状态。
type CallbackResult struct {
	OrderID       uint
	PaymentStatus model.PaymentStatus
}

// InitiatePayment 对订单发起一笔代收。
// 流程：校验手机号 → 状态门禁 → 抢单订单锁 → 调网关 → 条件更新落库。
func (s *Service) InitiatePayment(ctx context.Context, orderID uint, phone string) (InitiateResult, error) {
	if !phonePattern.MatchString(phone) {
		return InitiateResult{}, ErrInvalidPhone
	}

	var order model.Order
	if err := s.db.WithContext(ctx).First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return InitiateResult{}, ErrOrderNotFound
		}
		return InitiateResult{}, err
	}
	if err := canInitiate(order.PaymentStatus); err != nil {
		return InitiateResult{}, err
	}

	// 时间戳区分同一订单的多次发起，避免 external_ref 撞车
	externalRef := fmt.Sprintf("ORDER_%d_%d", order.ID, time.Now().Unix())

	if s.locks != nil {
		acquired, err := s.locks.Acquire(ctx, order.ID, externalRef)
		switch {
		case err != nil:
			// Redis 故障时降级放行，落库阶段的条件更新仍然兜底
			s.logger.WarnContext(ctx, "initiate lock degraded",
				"order_id", order.ID, "err", err)
		case !acquired:
			return InitiateResult{}, ErrAlreadyPending
		default:
			defer func() {
				if relErr := s.locks.Release(context.WithoutCancel(ctx), order.ID, externalRef); relErr != nil {
					s.logger.WarnContext(ctx, "initiate lock release failed",
						"order_id", order.ID, "err", relErr)
				}
			}()
		}
	}

	currency := order.Currency
	if currency == "" {
		currency = "XAF"
	}

	res := s.gw.Collect(ctx, gateway.CollectParams{
		ExternalRef: externalRef,
		Amount:      order.TotalAmount,
		Currency:    currency,
		PayerPhone:  phone,
		Description: "Payment for order #" + order.OrderNumber,
	})
	if !res.OK {
		return InitiateResult{}, newGatewayError(res.Message, "Payment initiation failed", res.HTTPStatus, res.RawErrors)
	}

	ref := res.ExternalRef
	if ref == "" {
		ref = externalRef
	}
	updates := map[string]any{
		"payment_status":       model.PaymentPending,
		"payment_external_ref": ref,
		"payment_phone":        phone,
	}
	// 交易号一经写入不清空：网关没给就保留旧值
	if res.TransactionID != "" {
		updates["payment_transaction_id"] = res.TransactionID
	}

	tx := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND payment_status IN ?", order.ID,
			[]model.PaymentStatus{model.PaymentUnpaid, model.PaymentFailed}).
		Updates(updates)
	if tx.Error != nil {
		return InitiateResult{}, tx.Error
	}
	if tx.RowsAffected == 0 {
		// 竞争失败：另一条路径已推进状态，按最新状态报告
		if err := s.db.WithContext(ctx).First(&order, order.ID).Error; err != nil {
			return InitiateResult{}, err
		}
		if err := canInitiate(order.PaymentStatus); err != nil {
			return InitiateResult{}, err
		}
		return InitiateResult{}, ErrAlreadyPending
	}

	status := res.Status
	if status == "" {
		status = "PENDING"
	}
	amount := res.Amount
	if amount.IsZero() {
		amount = order.TotalAmount
	}
	message := res.Message
	if message == "" {
		message = "Payment initiated. Please confirm on your phone."
	}

	return InitiateResult{
		OrderID:       order.ID,
		TransactionID: res.TransactionID,
		ExternalRef:   ref,
		Status:        status,
		Amount:        amount,
		Operator:      res.Operator,
		PaymentURL:    res.PaymentURL,
		Message:       message,
	}, nil
}

// CheckStatus 主动向网关核对交易状态，并将结果应用到状态机。
func (s *Service) CheckStatus(ctx context.Context, orderID uint) (StatusResult, error) {
	var order model.Order
	if err := s.db.WithContext(ctx).First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return StatusResult{}, ErrOrderNotFound
		}
		return StatusResult{}, err
	}
	if order.PaymentTransactionID == "" {
		return StatusResult{}, ErrNoPaymentInitiated
	}

	res := s.gw.Verify(ctx, order.PaymentTransactionID)
	if !res.OK {
		return StatusResult{}, newGatewayError(res.Message, "Payment verification failed", res.HTTPStatus, res.RawErrors)
	}

	if _, err := s.applyEvent(ctx, &order, EventForGatewayStatus(res.Status)); err != nil {
		return StatusResult{}, err
	}

	return StatusResult{
		OrderID:           order.ID,
		PaymentStatus:     order.PaymentStatus,
		TransactionStatus: res.Status,
		Amount:            res.Amount,
		Operator:          res.Operator,
	}, nil
}

// HandleCallback 处理网关异步回调。
// 只要订单能匹配上，无论是否发生迁移都按成功处理，避免网关无谓重投。
func (s *Service) HandleCallback(ctx context.Context, p CallbackPayload) (CallbackResult, error) {
	order, err := s.findCallbackOrder(ctx, p)
	if err != nil {
		return CallbackResult{}, err
	}

	// 回调先于发起落库到达时补记交易号（只补空，不覆盖）
	if order.PaymentTransactionID == "" && p.TransactionID != "" {
		bf := s.db.WithContext(ctx).Model(&model.Order{}).
			Where("id = ? AND (payment_transaction_id = '' OR payment_transaction_id IS NULL)", order.ID).
			Update("payment_transaction_id", p.TransactionID)
		if bf.Error != nil {
			return CallbackResult{}, bf.Error
		}
		if bf.RowsAffected > 0 {
			order.PaymentTransactionID = p.TransactionID
		}
	}

	applied, err := s.applyEvent(ctx, order, EventForGatewayStatus(p.Status))
	if err != nil {
		return CallbackResult{}, err
	}

	s.logger.InfoContext(ctx, "callback processed",
		"order_id", order.ID,
		"transaction_id", p.TransactionID,
		"external_ref", p.ExternalRef,
		"gateway_status", p.Status,
		"payment_status", order.PaymentStatus,
		"applied", applied)

	return CallbackResult{OrderID: order.ID, PaymentStatus: order.PaymentStatus}, nil
}

// findCallbackOrder 按 external_ref 或 transaction_id 匹配订单。
// 两个标识理论上可能命中多行，这里沿用取最早一行并记录两个标识，
// 便于在日志里发现歧义数据。
func (s *Service) findCallbackOrder(ctx context.Context, p CallbackPayload) (*model.Order, error) {
	q := s.db.WithContext(ctx).Order("id asc")
	switch {
	case p.ExternalRef != "" && p.TransactionID != "":
		q = q.Where("payment_external_ref = ? OR payment_transaction_id = ?", p.ExternalRef, p.TransactionID)
	case p.ExternalRef != "":
		q = q.Where("payment_external_ref = ?", p.ExternalRef)
	case p.TransactionID != "":
		q = q.Where("payment_transaction_id = ?", p.TransactionID)
	default:
		return nil, ErrOrderNotFound
	}

	var order model.Order
	if err := q.First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.WarnContext(ctx, "callback order not found",
				"transaction_id", p.TransactionID,
				"external_ref", p.ExternalRef)
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// applyEvent 用 CAS 循环把事件应用到订单：
// 条件更新带上读到的当前状态，丢失竞争则重读重算，最多三轮。
// paid 的粘性由 nextStatus 保证——没有任何一条路径能离开 paid。
// 返回值表示本次是否真正发生了迁移；order 会刷新为最新快照。
func (s *Service) applyEvent(ctx context.Context, order *model.Order, ev Event) (bool, error) {
	for attempt := 0; attempt < 3; attempt++ {
		next, ok := nextStatus(order.PaymentStatus, ev)
		if !ok {
			return false, nil
		}

		observed := order.PaymentStatus
		var applied bool
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			updates := map[string]any{"payment_status": next}
			if next == model.PaymentPaid {
				updates["paid_at"] = time.Now()
			}
			res := tx.Model(&model.Order{}).
				Where("id = ? AND payment_status = ?", order.ID, observed).
				Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			applied = res.RowsAffected > 0
			if applied && next == model.PaymentPaid {
				// 支付成功推进订单生命周期；已更靠后的状态不回退
				if err := tx.Model(&model.Order{}).
					Where("id = ? AND status = ?", order.ID, model.OrderPending).
					Update("status", model.OrderConfirmed).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return false, err
		}

		if err := s.db.WithContext(ctx).First(order, order.ID).Error; err != nil {
			return false, err
		}
		if applied {
			s.publishEvent(ctx, order, ev)
			return true, nil
		}
		// 丢失竞争：带着最新状态再走一轮状态机
	}
	return false, fmt.Errorf("order %d: too many concurrent payment updates", order.ID)
}

// publishEvent 把终态事件写入 outbox，失败只记日志，不影响支付结果。
func (s *Service) publishEvent(ctx context.Context, order *model.Order, ev Event) {
	if s.events == nil {
		return
	}

	eventType := queue.EventTypePaid
	if ev == EventFailed {
		eventType = queue.EventTypeFailed
	}
	msg := queue.PaymentEvent{
		EventID:       uuid.NewString(),
		Type:          eventType,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		TransactionID: order.PaymentTransactionID,
		ExternalRef:   order.PaymentExternalRef,
		Amount:        order.TotalAmount.StringFixed(2),
		Currency:      order.Currency,
	}
	if err := s.events.Publish(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "payment event publish failed",
			"order_id", order.ID, "type", eventType, "err", err)
	}
}
