package core

import (
	"context"
	"net"
	"strconv"

	"linkpad.com/p/internal/apperr"
	"linkpad.com/p/internal/kernel"
	"linkpad.com/p/internal/model"
	"linkpad.com/p/internal/sockes5"
	"linkpad.com/p/internal/subscription"
	"linkpad.com/p/internal/utils"
)

// DefaultProbeTargets 未指定目标时的连通性测试地址
var DefaultProbeTargets = []string{"www.gstatic.com:443", "cp.cloudflare.com:80"}

// Start 用当前激活的配置文件生成运行配置并启动内核，
// 随后尽量恢复保存的代理组选择。
func (c *Core) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked()
}

// Stop 关闭系统代理（如已开启）并停止内核。
// 既没有运行中的内核也没有遗留进程时返回 ErrNotRunning。
func (c *Core) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

// Restart 停止（忽略错误）后重新启动
func (c *Core) Restart() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.stopLocked(); err != nil {
		c.log.Debugf("Core: 重启时停止内核: %v", err)
	}
	return c.startLocked()
}

// IsRunning 查询内核是否存活，内核已退出时同步清除运行与系统代理标记
func (c *Core) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconcileLocked()
}

// KernelInfo 内核文件与版本信息
func (c *Core) KernelInfo() model.KernelInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kernel.Info()
}

// InstallLatestKernel 下载并安装最新版本的内核
func (c *Core) InstallLatestKernel() (*model.KernelUpgrade, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	upgrade, err := c.installer.InstallLatest()
	if err != nil {
		return nil, err
	}
	c.log.Infof("Core: 已安装内核 %s (%s)", upgrade.Version, upgrade.BinaryPath)
	return upgrade, nil
}

func (c *Core) startLocked() error {
	if c.running && c.kernel.IsRunning() {
		return apperr.ErrAlreadyRunning
	}
	c.running = false
	c.controller = nil

	active := c.activeIndexLocked()
	if active < 0 {
		return apperr.InvalidConfig("没有可用于启动 mihomo 的激活配置文件")
	}
	profile := &c.profiles[active]
	if profile.RawConfig == "" {
		raw, err := c.ingestor.Fetch(profile.SourceURL)
		if err != nil {
			return err
		}
		profile.RawConfig = raw
	}

	runtimeConfig, err := subscription.BuildRuntimeConfig(profile.RawConfig, c.settings.Config)
	if err != nil {
		return err
	}
	if err := c.kernel.Start(runtimeConfig.Text); err != nil {
		return err
	}
	c.running = true
	c.controller = c.newController(runtimeConfig.Controller, runtimeConfig.Secret)
	c.log.Infof("Core: 内核已启动，配置文件 %s，模式 %s，端口 %d",
		profile.Name, c.settings.Config.Mode, c.settings.Config.MixedPort)

	c.applySelectionsLocked(*profile)
	return nil
}

func (c *Core) stopLocked() error {
	if c.proxyEnabled {
		if err := c.systemProxy.Disable(); err != nil {
			return err
		}
		c.proxyEnabled = false
	}
	c.running = false
	c.controller = nil
	return c.kernel.Stop()
}

func (c *Core) reconcileLocked() bool {
	if c.running && !c.kernel.IsRunning() {
		c.log.Warnf("Core: 内核已意外退出")
		c.running = false
		c.proxyEnabled = false
		c.controller = nil
	}
	return c.running
}

// applySelectionsLocked 把保存的代理组选择应用到刚启动的内核，失败只记录日志
func (c *Core) applySelectionsLocked(profile model.Profile) {
	for _, group := range profile.ProxyGroups {
		proxy, ok := c.settings.ProxyGroupSelections[group.Name]
		if !ok || !group.Contains(proxy) {
			continue
		}
		if err := c.controller.SelectProxy(group.Name, proxy); err != nil {
			c.log.Warnf("Core: 恢复代理组 %s 的选择 %s 失败: %v", group.Name, proxy, err)
		}
	}
}

// SelectProxy 在激活配置文件的代理组中选择节点。
// 选择会被保存；内核运行时立即通过控制器生效。
func (c *Core) SelectProxy(group, proxy string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	active := c.activeIndexLocked()
	if active < 0 {
		return apperr.ErrProfileNotFound
	}
	g, ok := c.profiles[active].FindGroup(group)
	if !ok {
		return apperr.InvalidConfig("代理组不存在: %s", group)
	}
	if !g.Contains(proxy) {
		return apperr.InvalidConfig("代理组 %s 不包含节点 %s", group, proxy)
	}

	c.settings.ProxyGroupSelections[group] = proxy
	c.saveSettingsLocked()

	if c.reconcileLocked() && c.controller != nil {
		if err := c.controller.SelectProxy(group, proxy); err != nil {
			return err
		}
	}
	c.log.Infof("Core: 代理组 %s 选择 %s", group, proxy)
	return nil
}

// ProxyGroupSelections 保存的代理组选择（副本）
func (c *Core) ProxyGroupSelections() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]string, len(c.settings.ProxyGroupSelections))
	for k, v := range c.settings.ProxyGroupSelections {
		out[k] = v
	}
	return out
}

// FollowKernelLog 持续读取内核日志新增的行，写入应用日志并回调 fn，直到 ctx 结束。
// 不持有 Core 的锁。
func (c *Core) FollowKernelLog(ctx context.Context, fn func(level, message string)) error {
	follower := kernel.NewLogFollower(c.kernel.LogPath())
	return follower.Follow(ctx, func(line string) {
		level, message := kernel.ParseLogLine(line)
		c.log.Kernel(level, message)
		if fn != nil {
			fn(level, message)
		}
	})
}

// CheckConnectivity 经由本地混合端口的 SOCKS5 连接测试目标延迟。
// 参数：
//   - targets: 目标地址列表 host:port，为空时使用 DefaultProbeTargets
//
// 返回：目标到延迟（毫秒，-1 表示失败）的映射；内核未运行时返回 ErrNotRunning
func (c *Core) CheckConnectivity(targets []string) (map[string]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.reconcileLocked() {
		return nil, apperr.ErrNotRunning
	}
	if len(targets) == 0 {
		targets = DefaultProbeTargets
	}

	client := &sockes5.SOCKS5Client{
		ProxyAddr: net.JoinHostPort("127.0.0.1", strconv.Itoa(int(c.settings.Config.MixedPort))),
	}
	return utils.NewPing(client.DialContext).TestAllDelay(targets), nil
}
