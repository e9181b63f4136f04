package utils

import (
	"context"
	"net"
	"sync"
	"time"
)

// DefaultPingTimeout 单个目标的探测超时
const DefaultPingTimeout = 5 * time.Second

// DialFunc 建立到目标的连接，例如经由本地 SOCKS5 代理
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Ping 延迟测试工具。
// 负责测量建立连接所需时间，不涉及数据更新操作。
type Ping struct {
	Dial    DialFunc
	Timeout time.Duration
}

// NewPing 创建新的延迟测试工具实例。
// 参数：
//   - dial: 连接方式，为 nil 时直连
//
// 返回：初始化后的 Ping 实例
func NewPing(dial DialFunc) *Ping {
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}
	return &Ping{Dial: dial, Timeout: DefaultPingTimeout}
}

// TestDelay 测试单个目标的延迟。
// 参数：
//   - target: 目标地址 host:port
//
// 返回：延迟值（毫秒）和错误（如果有）
func (p *Ping) TestDelay(target string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()

	start := time.Now()
	conn, err := p.Dial(ctx, "tcp", target)
	if err != nil {
		return -1, err
	}
	defer conn.Close()

	return int(time.Since(start).Milliseconds()), nil
}

// TestAllDelay 并发测试多个目标。
// 参数：
//   - targets: 目标地址列表
//
// 返回：目标到延迟值的映射（-1表示测试失败）
func (p *Ping) TestAllDelay(targets []string) map[string]int {
	results := make(map[string]int, len(targets))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, target := range targets {
		wg.Add(1)
		go func(t string) {
			defer wg.Done()

			delay, err := p.TestDelay(t)
			mu.Lock()
			if err != nil {
				results[t] = -1
			} else {
				results[t] = delay
			}
			mu.Unlock()
		}(target)
	}

	wg.Wait()
	return results
}
