package core

import (
	"net"
	"strconv"

	"linkpad.com/p/internal/apperr"
	"linkpad.com/p/internal/model"
)

// Config 当前内核运行配置
func (c *Core) Config() model.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.Config
}

// Settings 当前设置（副本）
func (c *Core) Settings() model.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()

	settings := c.settings
	settings.ProxyGroupSelections = make(map[string]string, len(c.settings.ProxyGroupSelections))
	for k, v := range c.settings.ProxyGroupSelections {
		settings.ProxyGroupSelections[k] = v
	}
	return settings
}

// UpdateConfig 校验并保存内核运行配置，下次启动内核时生效
func (c *Core) UpdateConfig(cfg model.Config) error {
	mode, ok := model.ParseMode(string(cfg.Mode))
	if !ok {
		return apperr.InvalidConfig("无效的模式: %s", cfg.Mode)
	}
	if cfg.MixedPort == 0 {
		return apperr.InvalidConfig("混合端口必须在 1-65535 之间")
	}
	cfg.Mode = mode

	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.Config = cfg
	c.saveSettingsLocked()
	return nil
}

// IsSystemProxyEnabled 系统代理是否由本应用开启
func (c *Core) IsSystemProxyEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proxyEnabled
}

// EnableSystemProxy 把系统代理指向 127.0.0.1:<混合端口>。
// 内核未运行时先启动；设置系统代理失败时停止本次启动的内核。
func (c *Core) EnableSystemProxy() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.proxyEnabled {
		return nil
	}

	startedHere := false
	if !c.reconcileLocked() {
		if err := c.startLocked(); err != nil {
			return err
		}
		startedHere = true
	}

	port := int(c.settings.Config.MixedPort)
	if err := c.systemProxy.Enable("127.0.0.1", port); err != nil {
		if startedHere {
			if stopErr := c.kernel.Stop(); stopErr != nil {
				c.log.Warnf("Core: 回滚时停止内核失败: %v", stopErr)
			}
			c.running = false
			c.controller = nil
		}
		return err
	}

	c.proxyEnabled = true
	c.settings.SystemProxyEnabled = true
	c.saveSettingsLocked()
	c.log.Infof("Core: 系统代理已开启 %s", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	return nil
}

// DisableSystemProxy 关闭系统代理并停止内核，重复调用不会出错
func (c *Core) DisableSystemProxy() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.proxyEnabled {
		if err := c.systemProxy.Disable(); err != nil {
			return err
		}
		c.proxyEnabled = false
		c.log.Infof("Core: 系统代理已关闭")
	}
	if c.settings.SystemProxyEnabled {
		c.settings.SystemProxyEnabled = false
		c.saveSettingsLocked()
	}

	if c.reconcileLocked() {
		c.running = false
		c.controller = nil
		if err := c.kernel.Stop(); err != nil {
			return err
		}
	}
	return nil
}

// StartupStatus 从系统读取开机启动状态
func (c *Core) StartupStatus() (model.StartupStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startup.Status()
}

// ConfigureStartup 设置开机启动与静默启动
func (c *Core) ConfigureStartup(autoLaunch, silentStart bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.startup.Configure(autoLaunch, silentStart); err != nil {
		return err
	}
	c.settings.AutoLaunchEnabled = autoLaunch
	c.settings.SilentStartEnabled = silentStart
	c.saveSettingsLocked()
	return nil
}
