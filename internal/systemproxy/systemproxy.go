package systemproxy

import (
	"sync"

	"linkpad.com/p/internal/logging"
	"linkpad.com/p/internal/model"
)

// SystemProxy 系统代理管理器
// 使用策略模式，根据平台自动选择对应的实现；首次开启前保存原有设置，开启失败时恢复
type SystemProxy struct {
	mu       sync.Mutex
	platform PlatformProxy
	snapshot model.SystemProxySnapshot
	captured bool
	log      *logging.SafeLogger
}

// NewSystemProxy 创建系统代理管理器
// 根据当前运行平台自动选择对应的实现
func NewSystemProxy(log *logging.SafeLogger) *SystemProxy {
	return NewSystemProxyWith(NewPlatformProxy(), log)
}

// NewSystemProxyWith 使用指定的平台实现创建管理器
func NewSystemProxyWith(platform PlatformProxy, log *logging.SafeLogger) *SystemProxy {
	return &SystemProxy{platform: platform, log: log}
}

// Enable 将所有活动网络接口的 HTTP、HTTPS、SOCKS 代理指向 host:port。
// 参数：
//   - host: 代理地址
//   - port: 代理端口
//
// 返回：错误（应用失败时已尝试恢复开启前的设置）
func (sp *SystemProxy) Enable(host string, port int) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if !sp.captured {
		snapshot, err := sp.platform.Capture()
		if err != nil {
			return err
		}
		sp.snapshot = snapshot
		sp.captured = true
	}

	if err := sp.platform.Apply(host, port); err != nil {
		if restoreErr := sp.platform.Restore(sp.snapshot); restoreErr != nil {
			sp.log.Errorf("系统代理: 恢复原有设置失败: %v", restoreErr)
		}
		return err
	}
	sp.log.Infof("系统代理: 已设置为 %s:%d", host, port)
	return nil
}

// Disable 关闭所有活动网络接口的代理并丢弃快照，未开启时调用也不会出错
func (sp *SystemProxy) Disable() error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if err := sp.platform.Clear(); err != nil {
		return err
	}
	sp.snapshot = nil
	sp.captured = false
	sp.log.Infof("系统代理: 已关闭")
	return nil
}

// Snapshot 返回当前保存的快照副本
func (sp *SystemProxy) Snapshot() model.SystemProxySnapshot {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.snapshot == nil {
		return nil
	}
	out := make(model.SystemProxySnapshot, len(sp.snapshot))
	copy(out, sp.snapshot)
	return out
}
