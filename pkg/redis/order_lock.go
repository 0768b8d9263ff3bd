package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaReleaseInitiateLockIfMatch 仅当锁值匹配本次 external_ref 时才删除，
// 避免误删后来者持有的锁。
const luaReleaseInitiateLockIfMatch = `
local lockKey = KEYS[1]
local token = ARGV[1]
if redis.call('GET', lockKey) == token then
  return redis.call('DEL', lockKey)
end
return 0
`

// InitiateLocker 是发起支付的单订单互斥锁。
// 两个并发 initiate 只有一个能拿到锁并调用网关，另一个直接被拒，
// 防止对同一订单重复发起扣款。
type InitiateLocker struct {
	RDB *rd.Client
	TTL time.Duration
}

// Acquire 以 SETNX 语义抢占订单锁，token 为本次发起的 external_ref。
// 返回 false 表示已有在途的发起请求。
func (l *InitiateLocker) Acquire(ctx context.Context, orderID uint, token string) (bool, error) {
	return l.RDB.SetNX(ctx, InitiateLockKey(orderID), token, l.TTL).Result()
}

// Release 安全释放订单锁（值匹配才删除）。
func (l *InitiateLocker) Release(ctx context.Context, orderID uint, token string) error {
	_, err := l.RDB.Eval(ctx, luaReleaseInitiateLockIfMatch,
		[]string{InitiateLockKey(orderID)}, token).Int()
	return err
}
