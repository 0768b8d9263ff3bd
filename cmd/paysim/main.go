package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Result 记录单次请求的 HTTP 结果，便于聚合输出。
type Result struct {
	Status int
	Body   string
	Err    error
}

// paysim 是支付链路的手工驱动器：
// 1) 发起支付  2) 轮询 check-status  3) 模拟网关回调（含重复与乱序投递）
// 用于联调环境验证「成功粘性」与回调幂等，不做压测。
func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	apiToken := flag.String("api-token", "dev-api-token", "bearer token for authenticated endpoints")
	orderID := flag.Uint("order", 1, "order id")
	phone := flag.String("phone", "+242067230202", "payer phone")
	polls := flag.Int("polls", 3, "check-status polls after initiate")
	replay := flag.Bool("replay", true, "replay SUCCESS/FAILED callbacks after initiate")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}
	authHeaders := map[string]string{"Authorization": "Bearer " + *apiToken}

	// 1) 发起支付
	fmt.Printf("initiate payment: order=%d phone=%s\n", *orderID, *phone)
	res := doPOST(client, *baseURL+"/payments/initiate", map[string]any{
		"order_id": *orderID,
		"phone":    *phone,
	}, authHeaders)
	printResult("initiate", res)

	externalRef, transactionID := extractRefs(res.Body)
	if transactionID == "" {
		// 网关没回交易号时造一个，方便测试回调按 external_ref 匹配
		transactionID = "SIM-" + uuid.NewString()[:8]
	}
	fmt.Printf("external_ref=%s transaction_id=%s\n\n", externalRef, transactionID)

	// 2) 轮询状态
	for i := 0; i < *polls; i++ {
		res := doPOST(client, *baseURL+"/payments/check-status", map[string]any{
			"order_id": *orderID,
		}, authHeaders)
		printResult(fmt.Sprintf("check-status #%d", i+1), res)
		time.Sleep(time.Second)
	}

	if !*replay {
		return
	}

	// 3) 模拟回调：SUCCESS → 重复 SUCCESS → 滞后 FAILED
	// 期望：三次都 200，且订单停留在 paid（成功粘性 + 回调幂等）
	callbacks := []string{"SUCCESS", "SUCCESS", "FAILED"}
	results := make([]Result, 0, len(callbacks))
	for i, status := range callbacks {
		res := doPOST(client, *baseURL+"/payments/callback", map[string]any{
			"transaction_id": transactionID,
			"external_ref":   externalRef,
			"status":         status,
		}, nil)
		printResult(fmt.Sprintf("callback #%d (%s)", i+1, status), res)
		results = append(results, res)
	}
	printSummary("callbacks", results)

	res = doPOST(client, *baseURL+"/payments/check-status", map[string]any{
		"order_id": *orderID,
	}, authHeaders)
	printResult("final check-status", res)
}

// extractRefs 从 initiate 响应里取 external_ref / transaction_id。
func extractRefs(body string) (string, string) {
	var out struct {
		Data struct {
			ExternalRef   string `json:"external_ref"`
			TransactionID string `json:"transaction_id"`
		} `json:"data"`
	}
	_ = json.Unmarshal([]byte(body), &out)
	return out.Data.ExternalRef, out.Data.TransactionID
}

func printResult(name string, r Result) {
	if r.Err != nil {
		fmt.Printf("[%s] error: %v\n", name, r.Err)
		return
	}
	fmt.Printf("[%s] %d %s\n", name, r.Status, r.Body)
}

// printSummary 聚合输出不同状态码分布。
func printSummary(name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range []int{200, 400, 404, 422, 429, 500} {
		if count[code] > 0 {
			fmt.Printf("  %d -> %d\n", code, count[code])
		}
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}

// doPOST 发送 POST 请求（支持附加请求头）。
func doPOST(client *http.Client, url string, body any, headers map[string]string) Result {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(http.MethodPost, url, r)
	if err != nil {
		return Result{Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(b)}
}
