package model

import "strings"

// Mode 内核路由模式
type Mode string

const (
	// ModeRule 按规则分流
	ModeRule Mode = "rule"
	// ModeGlobal 全局代理
	ModeGlobal Mode = "global"
	// ModeDirect 全部直连
	ModeDirect Mode = "direct"
)

// DefaultMixedPort 默认混合端口
const DefaultMixedPort uint16 = 7890

// Config 内核运行配置，由 Core 独占持有。
type Config struct {
	Mode      Mode   `json:"mode"`       // 路由模式
	MixedPort uint16 `json:"mixed_port"` // 本地 HTTP/SOCKS 混合端口
	AllowLan  bool   `json:"allow_lan"`  // 是否允许局域网连接
}

// DefaultConfig 返回默认内核配置。
func DefaultConfig() Config {
	return Config{
		Mode:      ModeRule,
		MixedPort: DefaultMixedPort,
		AllowLan:  false,
	}
}

// ParseMode 解析模式字符串（不区分大小写）
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeRule:
		return ModeRule, true
	case ModeGlobal:
		return ModeGlobal, true
	case ModeDirect:
		return ModeDirect, true
	default:
		return "", false
	}
}

// Settings 持久化的应用设置。
type Settings struct {
	Config               Config            `json:"config"`
	SystemProxyEnabled   bool              `json:"system_proxy_enabled"`
	AutoLaunchEnabled    bool              `json:"auto_launch_enabled"`
	SilentStartEnabled   bool              `json:"silent_start_enabled"`
	ProxyGroupSelections map[string]string `json:"proxy_group_selections"` // 代理组名 -> 选中的节点名
}

// DefaultSettings 返回默认设置。
func DefaultSettings() Settings {
	return Settings{
		Config:               DefaultConfig(),
		ProxyGroupSelections: map[string]string{},
	}
}
