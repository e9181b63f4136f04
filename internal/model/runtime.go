package model

// KernelInfo 内核二进制的只读快照，每次查询时重新计算。
type KernelInfo struct {
	BinaryPath    string `json:"binary_path,omitempty"` // 为空表示未找到
	Version       string `json:"version,omitempty"`
	SuggestedPath string `json:"suggested_path"` // 建议安装位置
	Status        string `json:"status"`         // "ok" 或错误描述
}

// Found 是否解析到了可用的内核
func (k KernelInfo) Found() bool {
	return k.BinaryPath != ""
}

// KernelUpgrade 内核安装结果。
type KernelUpgrade struct {
	Version    string `json:"version"`
	BinaryPath string `json:"binary_path"`
	AssetName  string `json:"asset_name"`
}

// StartupStatus 开机启动状态，每次从系统读取。
type StartupStatus struct {
	AutoLaunch  bool `json:"auto_launch"`
	SilentStart bool `json:"silent_start"`
}

// ProxyProtocol 系统代理协议槽位
type ProxyProtocol string

const (
	ProxyProtocolWeb       ProxyProtocol = "web"
	ProxyProtocolSecureWeb ProxyProtocol = "secure_web"
	ProxyProtocolSocks     ProxyProtocol = "socks"
)

// ProxyProtocols 依次应用的三个协议槽位
var ProxyProtocols = []ProxyProtocol{ProxyProtocolWeb, ProxyProtocolSecureWeb, ProxyProtocolSocks}

// ProxyState 单个网络接口单个协议的代理设置。
type ProxyState struct {
	Interface string        `json:"interface"`
	Protocol  ProxyProtocol `json:"protocol"`
	Enabled   bool          `json:"enabled"`
	Server    string        `json:"server"`
	Port      int           `json:"port"`
}

// Restorable 是否可以恢复为开启状态
func (s ProxyState) Restorable() bool {
	return s.Enabled && s.Server != "" && s.Port > 0 && s.Port <= 65535
}

// SystemProxySnapshot 首次修改前捕获的系统代理状态，仅保存在内存中。
type SystemProxySnapshot []ProxyState
