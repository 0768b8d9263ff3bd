package payment

import (
	"errors"
	"testing"

	"mobile_money/internal/model"
)

func TestEventForGatewayStatus(t *testing.T) {
	cases := map[string]Event{
		"SUCCESS":    EventSuccess,
		"FAILED":     EventFailed,
		"EXPIRED":    EventFailed,
		"PENDING":    EventPending,
		"PROCESSING": EventPending, // 未知状态一律按 pending
		"":           EventPending,
	}
	for status, want := range cases {
		if got := EventForGatewayStatus(status); got != want {
			t.Errorf("EventForGatewayStatus(%q) = %v, want %v", status, got, want)
		}
	}
}

func TestNextStatus(t *testing.T) {
	tests := []struct {
		name    string
		cur     model.PaymentStatus
		ev      Event
		want    model.PaymentStatus
		applied bool
	}{
		{"unpaid + success pays", model.PaymentUnpaid, EventSuccess, model.PaymentPaid, true},
		{"pending + success pays", model.PaymentPending, EventSuccess, model.PaymentPaid, true},
		{"failed + success pays", model.PaymentFailed, EventSuccess, model.PaymentPaid, true},
		{"paid + success is noop", model.PaymentPaid, EventSuccess, model.PaymentPaid, false},
		{"refunded + success is noop", model.PaymentRefunded, EventSuccess, model.PaymentRefunded, false},

		{"pending + failed fails", model.PaymentPending, EventFailed, model.PaymentFailed, true},
		{"failed + failed is noop", model.PaymentFailed, EventFailed, model.PaymentFailed, false},
		{"unpaid + failed is noop", model.PaymentUnpaid, EventFailed, model.PaymentUnpaid, false},
		// 成功是粘性的：滞后/重放的失败事件不能把 paid 拉回去
		{"paid + failed keeps paid", model.PaymentPaid, EventFailed, model.PaymentPaid, false},

		{"pending + pending is noop", model.PaymentPending, EventPending, model.PaymentPending, false},
		{"paid + pending is noop", model.PaymentPaid, EventPending, model.PaymentPaid, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, applied := nextStatus(tt.cur, tt.ev)
			if got != tt.want || applied != tt.applied {
				t.Fatalf("nextStatus(%s, %s) = (%s, %v), want (%s, %v)",
					tt.cur, tt.ev, got, applied, tt.want, tt.applied)
			}
		})
	}
}

func TestCanInitiate(t *testing.T) {
	tests := []struct {
		cur  model.PaymentStatus
		want error
	}{
		{model.PaymentUnpaid, nil},
		{model.PaymentFailed, nil}, // 失败后允许换新引用重试
		{model.PaymentPending, ErrAlreadyPending},
		{model.PaymentPaid, ErrAlreadyPaid},
		{model.PaymentRefunded, ErrAlreadyPaid},
	}
	for _, tt := range tests {
		if got := canInitiate(tt.cur); !errors.Is(got, tt.want) {
			t.Errorf("canInitiate(%s) = %v, want %v", tt.cur, got, tt.want)
		}
	}
}
