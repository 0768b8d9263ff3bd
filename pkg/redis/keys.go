package redis

import "fmt"

// InitiateLockKey 标记某订单是否有一笔发起中的支付（互斥锁）。
func InitiateLockKey(orderID uint) string {
	return fmt.Sprintf("mobile_money:initiate:lock:%d", orderID)
}

// RateLimitOrderKey 发起支付接口按订单维度限流的键名。
func RateLimitOrderKey(orderID uint) string {
	return fmt.Sprintf("rate_limit:payments:order:%d", orderID)
}

// RateLimitIPKey 发起支付接口按来源 IP 限流的键名（降级用）。
func RateLimitIPKey(ip string) string {
	return fmt.Sprintf("rate_limit:payments:ip:%s", ip)
}
