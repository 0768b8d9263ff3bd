package router

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"

	"mobile_money/internal/config"
	"mobile_money/internal/middleware"
	"mobile_money/internal/payment"
)

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, svc *payment.Service, rdb *rd.Client, cfg config.AppConfig) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	p := r.Group("/payments")
	{
		auth := middleware.RequireAPIToken(cfg.APIAuthToken)
		p.POST("/initiate", auth,
			middleware.RedisRateLimit(rdb, cfg.InitiateRateLimit, cfg.InitiateRateWindow),
			initiatePayment(svc))
		p.POST("/check-status", auth, checkStatus(svc))
		// 回调面向网关，不走 API 认证；CallbackToken 配置后才校验来源
		p.POST("/callback", middleware.RequireCallbackToken(cfg.CallbackToken), handleCallback(svc))
	}
}

// initiatePayment 发起一笔移动支付。
func initiatePayment(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			OrderID uint   `json:"order_id" binding:"required"`
			Phone   string `json:"phone" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"success": false,
				"message": "Validation failed",
				"errors":  gin.H{"request": err.Error()},
			})
			return
		}

		ctx := c.Request.Context()
		res, err := svc.InitiatePayment(ctx, req.OrderID, req.Phone)
		if err != nil {
			writeServiceError(c, err, false)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": res.Message,
			"data": gin.H{
				"order_id":       res.OrderID,
				"transaction_id": res.TransactionID,
				"external_ref":   res.ExternalRef,
				"status":         res.Status,
				"amount":         res.Amount,
				"operator":       res.Operator,
				"payment_url":    res.PaymentURL,
			},
		})
	}
}

// checkStatus 主动向网关核对支付状态。
func checkStatus(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			OrderID uint `json:"order_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"success": false,
				"message": "Validation failed",
				"errors":  gin.H{"request": err.Error()},
			})
			return
		}

		res, err := svc.CheckStatus(c.Request.Context(), req.OrderID)
		if err != nil {
			writeServiceError(c, err, false)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data": gin.H{
				"order_id":           res.OrderID,
				"payment_status":     res.PaymentStatus,
				"transaction_status": res.TransactionStatus,
				"amount":             res.Amount,
				"operator":           res.Operator,
			},
		})
	}
}

// handleCallback 接收网关异步回调。回调体宽松解析，只取关键字段。
func handleCallback(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p payment.CallbackPayload
		if err := c.ShouldBindJSON(&p); err != nil {
			// 回调体不可解析也按 not found 走，避免网关永远重试坏消息
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": "Order not found",
			})
			return
		}

		_, err := svc.HandleCallback(c.Request.Context(), p)
		if err != nil {
			writeServiceError(c, err, true)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Callback received and processed",
		})
	}
}

// writeServiceError 把服务层错误映射为 HTTP 响应。
// notFoundAs404 仅用于回调路径：发起/查询路径的未知订单按参数校验失败处理。
func writeServiceError(c *gin.Context, err error, notFoundAs404 bool) {
	var gwErr *payment.GatewayError
	switch {
	case errors.Is(err, payment.ErrInvalidPhone):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"message": "Validation failed",
			"errors":  gin.H{"phone": "phone must match an international number format"},
		})
	case errors.Is(err, payment.ErrOrderNotFound):
		if notFoundAs404 {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": "Order not found",
			})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"message": "Validation failed",
			"errors":  gin.H{"order_id": "order does not exist"},
		})
	case errors.Is(err, payment.ErrAlreadyPaid):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "This order has already been paid",
		})
	case errors.Is(err, payment.ErrAlreadyPending):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "A payment is already in progress for this order",
		})
	case errors.Is(err, payment.ErrNoPaymentInitiated):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "No payment has been initiated for this order",
		})
	case errors.As(err, &gwErr):
		body := gin.H{"success": false, "message": gwErr.Message}
		if len(gwErr.Errors) > 0 {
			body["errors"] = gwErr.Errors
		}
		c.JSON(gwErr.HTTPStatus, body)
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": err.Error(),
		})
	}
}
