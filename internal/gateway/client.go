package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// CollectParams 发起代收（collect）所需的业务字段。
type CollectParams struct {
	ExternalRef string
	Amount      decimal.Decimal
	Currency    string
	PayerPhone  string
	Description string
	CallbackURL string
	AppID       string
}

// Result 是网关各类响应统一归一化后的结果。
// 传输层错误与网关业务失败共用同一形态，调用方只看 OK 与 Message，
// 不需要区分错误来源；HTTPStatus=500 表示本地/传输层失败。
type Result struct {
	OK            bool
	TransactionID string
	ExternalRef   string
	Status        string
	Amount        decimal.Decimal
	Operator      string
	PaymentURL    string
	Message       string
	HTTPStatus    int
	RawErrors     json.RawMessage
}

// collectPayload 的字段顺序即签名的规范序列化顺序，不可调整。
type collectPayload struct {
	AppID       string `json:"app_id"`
	ExternalRef string `json:"external_ref"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	PayerPhone  string `json:"payer_phone"`
	Description string `json:"description"`
	CallbackURL string `json:"callback_url"`
}

// gatewayResponse 覆盖 collect/verify 两类响应的字段并集。
// Error 用指针区分「显式 false」与「字段缺失」：缺失按失败处理。
type gatewayResponse struct {
	Error         *bool           `json:"error"`
	Message       string          `json:"message"`
	TransactionID string          `json:"transaction_id"`
	ExternalRef   string          `json:"external_ref"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Operator      string          `json:"operator"`
	PaymentURL    string          `json:"payment_url"`
	Errors        json.RawMessage `json:"errors"`
}

// Client 封装移动支付网关的出站调用。
type Client struct {
	http        *resty.Client
	signer      *Signer
	appID       string
	callbackURL string
	logger      *slog.Logger
}

// Options 网关接入参数，来自启动配置。
type Options struct {
	BaseURL     string
	APIKey      string
	AppID       string
	CallbackURL string
	Timeout     time.Duration
}

func NewClient(opts Options, signer *Signer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetAuthToken(opts.APIKey).
		SetHeader("Accept", "application/json")
	return &Client{
		http:        httpClient,
		signer:      signer,
		appID:       opts.AppID,
		callbackURL: opts.CallbackURL,
		logger:      logger,
	}
}

// Collect 发起一笔代收。任何传输层错误（超时、连接拒绝、响应非 JSON）
// 都折叠为 OK=false + HTTPStatus=500，调用方无需处理异常分支。
func (c *Client) Collect(ctx context.Context, p CollectParams) Result {
	payload := collectPayload{
		AppID:       p.AppID,
		ExternalRef: p.ExternalRef,
		Amount:      p.Amount.StringFixed(2),
		Currency:    p.Currency,
		PayerPhone:  p.PayerPhone,
		Description: p.Description,
		CallbackURL: p.CallbackURL,
	}
	if payload.AppID == "" {
		payload.AppID = c.appID
	}
	if payload.CallbackURL == "" {
		payload.CallbackURL = c.callbackURL
	}

	signature, body, err := c.signer.Sign(payload)
	if err != nil {
		return transportFailure("sign payload: " + err.Error())
	}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Signature", signature).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/payments/collect")
	if err != nil {
		c.logger.ErrorContext(ctx, "gateway collect transport error",
			"external_ref", p.ExternalRef,
			"latency", time.Since(start),
			"err", err)
		return transportFailure("connection error: " + err.Error())
	}

	result := normalize(resp.Body(), resp.StatusCode())
	c.logger.InfoContext(ctx, "gateway collect",
		"external_ref", p.ExternalRef,
		"amount", payload.Amount,
		"ok", result.OK,
		"status", result.Status,
		"http_status", result.HTTPStatus,
		"latency", time.Since(start))
	return result
}

// Verify 查询一笔交易的当前状态。GET 请求签空 payload。
func (c *Client) Verify(ctx context.Context, transactionID string) Result {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Signature", c.signer.SignEmpty()).
		Get("/payments/verify/" + transactionID)
	if err != nil {
		c.logger.ErrorContext(ctx, "gateway verify transport error",
			"transaction_id", transactionID,
			"latency", time.Since(start),
			"err", err)
		return transportFailure("connection error: " + err.Error())
	}

	result := normalize(resp.Body(), resp.StatusCode())
	c.logger.InfoContext(ctx, "gateway verify",
		"transaction_id", transactionID,
		"ok", result.OK,
		"status", result.Status,
		"http_status", result.HTTPStatus,
		"latency", time.Since(start))
	return result
}

// normalize 把网关原始响应转为统一结果。
// error 字段缺失按失败处理（与网关约定一致）；message 缺省由调用方兜底。
func normalize(body []byte, httpStatus int) Result {
	var raw gatewayResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return transportFailure("malformed gateway response: " + err.Error())
	}

	return Result{
		OK:            raw.Error != nil && !*raw.Error,
		TransactionID: raw.TransactionID,
		ExternalRef:   raw.ExternalRef,
		Status:        raw.Status,
		Amount:        raw.Amount,
		Operator:      raw.Operator,
		PaymentURL:    raw.PaymentURL,
		Message:       raw.Message,
		HTTPStatus:    httpStatus,
		RawErrors:     raw.Errors,
	}
}

func transportFailure(message string) Result {
	return Result{
		OK:         false,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}
