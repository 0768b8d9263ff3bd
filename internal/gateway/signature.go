package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// emptyPayload 是无 body 请求（verify）的签名输入。
// 网关约定与 PHP json_encode([]) 一致，即字面量 "[]"。
var emptyPayload = []byte("[]")

// Signer 使用共享密钥对请求 payload 做 HMAC-SHA256 签名。
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// SignBytes 对已序列化的 payload 字节计算十六进制签名。
// 调用方必须保证发送的 body 与签名输入是同一份字节。
func (s *Signer) SignBytes(payload []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign 将 payload 序列化为 JSON 后签名，返回签名与实际参与签名的字节。
func (s *Signer) Sign(payload any) (string, []byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", nil, err
	}
	return s.SignBytes(b), b, nil
}

// SignEmpty 返回空 payload 的确定性签名，用于 GET 类请求。
func (s *Signer) SignEmpty() string {
	return s.SignBytes(emptyPayload)
}
