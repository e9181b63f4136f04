//go:build windows
// +build windows

package systemproxy

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"

	"linkpad.com/p/internal/apperr"
	"linkpad.com/p/internal/model"
)

const (
	internetSettingsPath = `Software\Microsoft\Windows\CurrentVersion\Internet Settings`
	internetSettingsName = "Internet Settings"

	internetOptionRefresh         = 37
	internetOptionSettingsChanged = 39
)

var procInternetSetOption = windows.NewLazySystemDLL("wininet.dll").NewProc("InternetSetOptionW")

// WindowsProxy Windows 平台的代理实现
// 通过修改注册表实现：HKEY_CURRENT_USER\Software\Microsoft\Windows\CurrentVersion\Internet Settings
// 同一个 ProxyServer 作用于所有协议，快照中只有一项
type WindowsProxy struct{}

func newWindowsProxy() PlatformProxy {
	return &WindowsProxy{}
}

func (p *WindowsProxy) Capture() (model.SystemProxySnapshot, error) {
	key, err := registry.OpenKey(registry.CURRENT_USER, internetSettingsPath, registry.QUERY_VALUE)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidConfig, "打开注册表失败", err)
	}
	defer key.Close()

	state := model.ProxyState{Interface: internetSettingsName, Protocol: model.ProxyProtocolWeb}
	if enabled, _, err := key.GetIntegerValue("ProxyEnable"); err == nil {
		state.Enabled = enabled != 0
	}
	if server, _, err := key.GetStringValue("ProxyServer"); err == nil {
		state.Server = server
		if host, port, err := net.SplitHostPort(server); err == nil {
			if n, err := strconv.Atoi(port); err == nil {
				state.Server, state.Port = host, n
			}
		}
	}
	return model.SystemProxySnapshot{state}, nil
}

// Apply 设置 Windows 系统代理
func (p *WindowsProxy) Apply(host string, port int) error {
	return p.set(fmt.Sprintf("%s:%d", host, port), true)
}

func (p *WindowsProxy) Restore(snapshot model.SystemProxySnapshot) error {
	for _, state := range snapshot {
		if state.Restorable() {
			return p.set(net.JoinHostPort(state.Server, strconv.Itoa(state.Port)), true)
		}
	}
	return p.Clear()
}

// Clear 清除 Windows 系统代理设置
func (p *WindowsProxy) Clear() error {
	key, err := registry.OpenKey(registry.CURRENT_USER, internetSettingsPath, registry.SET_VALUE)
	if err != nil {
		return apperr.Wrap(apperr.CodeInvalidConfig, "打开注册表失败", err)
	}
	defer key.Close()

	if err := key.SetDWordValue("ProxyEnable", 0); err != nil {
		return apperr.Wrap(apperr.CodeInvalidConfig, "禁用代理失败", err)
	}
	notifySettingsChanged()
	return nil
}

func (p *WindowsProxy) set(server string, enable bool) error {
	key, err := registry.OpenKey(registry.CURRENT_USER, internetSettingsPath, registry.SET_VALUE)
	if err != nil {
		return apperr.Wrap(apperr.CodeInvalidConfig, "打开注册表失败", err)
	}
	defer key.Close()

	if err := key.SetStringValue("ProxyServer", server); err != nil {
		return apperr.Wrap(apperr.CodeInvalidConfig, "设置代理服务器地址失败", err)
	}
	var value uint32
	if enable {
		value = 1
	}
	if err := key.SetDWordValue("ProxyEnable", value); err != nil {
		return apperr.Wrap(apperr.CodeInvalidConfig, "启用代理失败", err)
	}
	// 本地地址不使用代理，失败不影响主要设置
	_ = key.SetStringValue("ProxyOverride", "<local>")

	notifySettingsChanged()
	return nil
}

// notifySettingsChanged 通知 WinINet 重新读取代理设置
func notifySettingsChanged() {
	if procInternetSetOption.Find() != nil {
		return
	}
	_, _, _ = procInternetSetOption.Call(0, internetOptionSettingsChanged, 0, 0)
	_, _, _ = procInternetSetOption.Call(0, internetOptionRefresh, 0, 0)
}
