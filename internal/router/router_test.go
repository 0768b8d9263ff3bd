package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"mobile_money/internal/config"
	"mobile_money/internal/gateway"
	"mobile_money/internal/model"
	"mobile_money/internal/payment"
)

type stubGateway struct {
	collectResult gateway.Result
	verifyResult  gateway.Result
}

func (s *stubGateway) Collect(context.Context, gateway.CollectParams) gateway.Result {
	return s.collectResult
}

func (s *stubGateway) Verify(context.Context, string) gateway.Result {
	return s.verifyResult
}

const testAPIToken = "test-token"

func newTestRouter(t *testing.T, gw payment.Gateway) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&model.Order{}, &model.PaymentEventRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	svc := payment.NewService(db, gw, nil, nil, nil)
	// 限流中间件在 Redis 不可达时放行，测试里指向一个必然拒绝连接的端口
	rdb := rd.NewClient(&rd.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})

	r := gin.New()
	Setup(r, svc, rdb, config.AppConfig{
		APIAuthToken:       testAPIToken,
		InitiateRateLimit:  100,
		InitiateRateWindow: time.Second,
	})
	return r, db
}

func seedOrder(t *testing.T, db *gorm.DB, mutate func(*model.Order)) {
	t.Helper()
	order := &model.Order{
		ID:            7,
		OrderNumber:   "CMD-0007",
		UserID:        1,
		TotalAmount:   decimal.NewFromInt(1000),
		Currency:      "XAF",
		Status:        model.OrderPending,
		PaymentStatus: model.PaymentUnpaid,
	}
	if mutate != nil {
		mutate(order)
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
}

func doJSON(t *testing.T, r *gin.Engine, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+testAPIToken)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestInitiateRequiresAuth(t *testing.T) {
	r, db := newTestRouter(t, &stubGateway{})
	seedOrder(t, db, nil)

	w := doJSON(t, r, "/payments/initiate", gin.H{"order_id": 7, "phone": "+242067230202"}, false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestInitiateHappyPath(t *testing.T) {
	gw := &stubGateway{collectResult: gateway.Result{
		OK:            true,
		TransactionID: "TX1",
		Status:        "PENDING",
		Amount:        decimal.NewFromInt(1000),
		Operator:      "MTN",
		HTTPStatus:    http.StatusOK,
	}}
	r, db := newTestRouter(t, gw)
	seedOrder(t, db, nil)

	w := doJSON(t, r, "/payments/initiate", gin.H{"order_id": 7, "phone": "+242067230202"}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var out struct {
		Success bool `json:"success"`
		Data    struct {
			OrderID       uint   `json:"order_id"`
			TransactionID string `json:"transaction_id"`
			ExternalRef   string `json:"external_ref"`
			Status        string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Success || out.Data.TransactionID != "TX1" || out.Data.Status != "PENDING" {
		t.Fatalf("body = %s", w.Body.String())
	}
	if !strings.HasPrefix(out.Data.ExternalRef, "ORDER_7_") {
		t.Fatalf("external_ref = %q", out.Data.ExternalRef)
	}

	var order model.Order
	if err := db.First(&order, 7).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if order.PaymentStatus != model.PaymentPending || order.PaymentTransactionID != "TX1" {
		t.Fatalf("order = %+v", order)
	}
}

func TestInitiateValidation(t *testing.T) {
	r, db := newTestRouter(t, &stubGateway{})
	seedOrder(t, db, nil)

	// body 缺字段
	if w := doJSON(t, r, "/payments/initiate", gin.H{"order_id": 7}, true); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing phone: status = %d", w.Code)
	}
	// 手机号不合法
	if w := doJSON(t, r, "/payments/initiate", gin.H{"order_id": 7, "phone": "1234"}, true); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad phone: status = %d", w.Code)
	}
	// 订单不存在按参数校验失败处理
	if w := doJSON(t, r, "/payments/initiate", gin.H{"order_id": 404, "phone": "+242067230202"}, true); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown order: status = %d", w.Code)
	}
}

func TestInitiateBusinessRejections(t *testing.T) {
	tests := []struct {
		name    string
		status  model.PaymentStatus
		wantMsg string
	}{
		{"already paid", model.PaymentPaid, "already been paid"},
		{"already pending", model.PaymentPending, "already in progress"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, db := newTestRouter(t, &stubGateway{})
			seedOrder(t, db, func(o *model.Order) { o.PaymentStatus = tt.status })

			w := doJSON(t, r, "/payments/initiate", gin.H{"order_id": 7, "phone": "+242067230202"}, true)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.wantMsg) {
				t.Fatalf("body = %s", w.Body.String())
			}
		})
	}
}

func TestInitiateGatewayFailurePassthrough(t *testing.T) {
	gw := &stubGateway{collectResult: gateway.Result{
		OK:         false,
		Message:    "Insufficient balance",
		HTTPStatus: http.StatusPaymentRequired,
	}}
	r, db := newTestRouter(t, gw)
	seedOrder(t, db, nil)

	w := doJSON(t, r, "/payments/initiate", gin.H{"order_id": 7, "phone": "+242067230202"}, true)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Insufficient balance") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestCheckStatusWithoutPayment(t *testing.T) {
	r, db := newTestRouter(t, &stubGateway{})
	seedOrder(t, db, nil)

	w := doJSON(t, r, "/payments/check-status", gin.H{"order_id": 7}, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "No payment has been initiated") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestCheckStatusReportsGatewayState(t *testing.T) {
	gw := &stubGateway{verifyResult: gateway.Result{
		OK:         true,
		Status:     "SUCCESS",
		Amount:     decimal.NewFromInt(1000),
		Operator:   "MTN",
		HTTPStatus: http.StatusOK,
	}}
	r, db := newTestRouter(t, gw)
	seedOrder(t, db, func(o *model.Order) {
		o.PaymentStatus = model.PaymentPending
		o.PaymentTransactionID = "TX1"
	})

	w := doJSON(t, r, "/payments/check-status", gin.H{"order_id": 7}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var out struct {
		Success bool `json:"success"`
		Data    struct {
			PaymentStatus     string `json:"payment_status"`
			TransactionStatus string `json:"transaction_status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Success || out.Data.PaymentStatus != "paid" || out.Data.TransactionStatus != "SUCCESS" {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestCallbackProcessedAndAcked(t *testing.T) {
	r, db := newTestRouter(t, &stubGateway{})
	seedOrder(t, db, func(o *model.Order) {
		o.PaymentStatus = model.PaymentPending
		o.PaymentTransactionID = "TX1"
		o.PaymentExternalRef = "ORDER_7_1700000000"
	})

	// 回调不需要 API 认证
	w := doJSON(t, r, "/payments/callback", gin.H{
		"transaction_id": "TX1",
		"external_ref":   "ORDER_7_1700000000",
		"status":         "SUCCESS",
	}, false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"success":true`) {
		t.Fatalf("body = %s", w.Body.String())
	}

	var order model.Order
	if err := db.First(&order, 7).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if order.PaymentStatus != model.PaymentPaid || order.Status != model.OrderConfirmed {
		t.Fatalf("order = %+v", order)
	}

	// 重复投递仍然 200（幂等确认，不诱导网关重试）
	if w := doJSON(t, r, "/payments/callback", gin.H{"transaction_id": "TX1", "status": "SUCCESS"}, false); w.Code != http.StatusOK {
		t.Fatalf("duplicate callback status = %d", w.Code)
	}
}

func TestCallbackUnknownOrderIs404(t *testing.T) {
	r, _ := newTestRouter(t, &stubGateway{})

	w := doJSON(t, r, "/payments/callback", gin.H{
		"transaction_id": "TX-UNKNOWN",
		"external_ref":   "ORDER_999_1",
		"status":         "SUCCESS",
	}, false)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Order not found") {
		t.Fatalf("body = %s", w.Body.String())
	}
}
