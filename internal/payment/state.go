package payment

import (
	"mobile_money/internal/model"
)

// Event 是驱动支付状态机的归一化事件，由网关状态映射而来。
type Event string

const (
	// EventSuccess 网关确认收款成功
	EventSuccess Event = "success"
	// EventFailed 网关确认失败或交易过期
	EventFailed Event = "failed"
	// EventPending 仍在等待用户确认，保持现状
	EventPending Event = "pending"
)

// EventForGatewayStatus 把网关的交易状态码映射为本地事件。
// 未知状态一律按 pending 处理，不做任何变更。
func EventForGatewayStatus(status string) Event {
	switch status {
	case "SUCCESS":
		return EventSuccess
	case "FAILED", "EXPIRED":
		return EventFailed
	default:
		return EventPending
	}
}

// nextStatus 返回事件作用于当前状态后的目标状态，以及是否发生迁移。
// 规则要点：
//   - paid 是粘性终态，任何事件都不能使其回退（乱序/重放的 FAILED 回调无效）
//   - failed 只能从 pending 进入；未发起支付的订单不存在“支付失败”
//   - refunded 由外部流程写入，这里视同终态
func nextStatus(cur model.PaymentStatus, ev Event) (model.PaymentStatus, bool) {
	switch ev {
	case EventSuccess:
		switch cur {
		case model.PaymentPaid, model.PaymentRefunded:
			return cur, false
		default:
			return model.PaymentPaid, true
		}
	case EventFailed:
		if cur == model.PaymentPending {
			return model.PaymentFailed, true
		}
		return cur, false
	default:
		return cur, false
	}
}

// canInitiate 校验能否对当前状态发起新的支付。
// unpaid 与 failed 可以发起（失败后允许换新 external_ref 重试），
// pending/paid/refunded 拒绝，防止重复扣款。
func canInitiate(cur model.PaymentStatus) error {
	switch cur {
	case model.PaymentPaid, model.PaymentRefunded:
		return ErrAlreadyPaid
	case model.PaymentPending:
		return ErrAlreadyPending
	default:
		return nil
	}
}
