package payment

import (
	"encoding/json"
	"errors"
	"net/http"
)

var (
	// ErrInvalidPhone 手机号不符合宽松的国际号码格式
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrOrderNotFound 订单不存在（或回调无法匹配任何订单）
	ErrOrderNotFound = errors.New("order not found")
	// ErrAlreadyPaid 订单已支付，拒绝再次发起
	ErrAlreadyPaid = errors.New("order already paid")
	// ErrAlreadyPending 已有一笔支付在进行中
	ErrAlreadyPending = errors.New("payment already in progress")
	// ErrNoPaymentInitiated 尚未发起过支付，无法查询状态
	ErrNoPaymentInitiated = errors.New("no payment initiated")
)

// GatewayError 承载网关侧失败：业务拒绝原样透传 message/status/errors，
// 传输层失败则是归一化后的 500。
type GatewayError struct {
	Message    string
	HTTPStatus int
	Errors     json.RawMessage
}

func (e *GatewayError) Error() string { return e.Message }

// newGatewayError 填充缺省文案与缺省状态码。
func newGatewayError(message, fallback string, httpStatus int, rawErrors json.RawMessage) *GatewayError {
	if message == "" {
		message = fallback
	}
	if httpStatus == 0 {
		httpStatus = http.StatusInternalServerError
	}
	return &GatewayError{Message: message, HTTPStatus: httpStatus, Errors: rawErrors}
}
