package systemproxy

import (
	"strconv"
	"strings"

	"linkpad.com/p/internal/model"
)

type darwinCommands struct {
	get, set, state string
}

// darwinProtocolCommands networksetup 中各协议对应的子命令
var darwinProtocolCommands = map[model.ProxyProtocol]darwinCommands{
	model.ProxyProtocolWeb:       {"-getwebproxy", "-setwebproxy", "-setwebproxystate"},
	model.ProxyProtocolSecureWeb: {"-getsecurewebproxy", "-setsecurewebproxy", "-setsecurewebproxystate"},
	model.ProxyProtocolSocks:     {"-getsocksfirewallproxy", "-setsocksfirewallproxy", "-setsocksfirewallproxystate"},
}

// DarwinProxy macOS 平台的代理实现，通过 networksetup 修改每个网络服务
type DarwinProxy struct {
	run commandRunner
}

func newDarwinProxy(run commandRunner) *DarwinProxy {
	return &DarwinProxy{run: run}
}

// Capture 读取每个活动网络服务三个协议的代理设置
func (p *DarwinProxy) Capture() (model.SystemProxySnapshot, error) {
	services, err := p.getNetworkServices()
	if err != nil {
		return nil, err
	}

	var snapshot model.SystemProxySnapshot
	for _, service := range services {
		for _, protocol := range model.ProxyProtocols {
			state, err := p.getProxyState(service, protocol)
			if err != nil {
				return nil, err
			}
			snapshot = append(snapshot, state)
		}
	}
	return snapshot, nil
}

// Apply 设置 macOS 系统代理，任一步失败立即返回
func (p *DarwinProxy) Apply(host string, port int) error {
	services, err := p.getNetworkServices()
	if err != nil {
		return err
	}
	for _, service := range services {
		for _, protocol := range model.ProxyProtocols {
			if err := p.setProxy(service, protocol, host, port); err != nil {
				return err
			}
			if err := p.setProxyState(service, protocol, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// Restore 开启且地址有效的项恢复地址和开启状态，其余关闭
func (p *DarwinProxy) Restore(snapshot model.SystemProxySnapshot) error {
	for _, state := range snapshot {
		if state.Restorable() {
			if err := p.setProxy(state.Interface, state.Protocol, state.Server, state.Port); err != nil {
				return err
			}
			if err := p.setProxyState(state.Interface, state.Protocol, true); err != nil {
				return err
			}
			continue
		}
		if err := p.setProxyState(state.Interface, state.Protocol, false); err != nil {
			return err
		}
	}
	return nil
}

// Clear 清除 macOS 系统代理设置
func (p *DarwinProxy) Clear() error {
	services, err := p.getNetworkServices()
	if err != nil {
		return err
	}
	for _, service := range services {
		for _, protocol := range model.ProxyProtocols {
			if err := p.setProxyState(service, protocol, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// getNetworkServices 获取 macOS 网络服务列表
// 第一行是说明文字，以 * 开头的服务已被停用
func (p *DarwinProxy) getNetworkServices() ([]string, error) {
	output, err := p.run("networksetup", "-listallnetworkservices")
	if err != nil {
		return nil, err
	}

	lines := strings.Split(output, "\n")
	var services []string
	for i, line := range lines {
		if i == 0 {
			continue // 跳过第一行标题
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "*") {
			continue
		}
		services = append(services, line)
	}
	return services, nil
}

func (p *DarwinProxy) getProxyState(service string, protocol model.ProxyProtocol) (model.ProxyState, error) {
	state := model.ProxyState{Interface: service, Protocol: protocol}
	output, err := p.run("networksetup", darwinProtocolCommands[protocol].get, service)
	if err != nil {
		return state, err
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Enabled:"):
			state.Enabled = strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(line, "Enabled:")), "Yes")
		case strings.HasPrefix(line, "Server:"):
			state.Server = strings.TrimSpace(strings.TrimPrefix(line, "Server:"))
		case strings.HasPrefix(line, "Port:"):
			port, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Port:")))
			if err != nil || port < 0 || port > 65535 {
				port = 0
			}
			state.Port = port
		}
	}
	return state, nil
}

func (p *DarwinProxy) setProxy(service string, protocol model.ProxyProtocol, host string, port int) error {
	_, err := p.run("networksetup", darwinProtocolCommands[protocol].set, service, host, strconv.Itoa(port))
	return err
}

func (p *DarwinProxy) setProxyState(service string, protocol model.ProxyProtocol, enabled bool) error {
	value := "off"
	if enabled {
		value = "on"
	}
	_, err := p.run("networksetup", darwinProtocolCommands[protocol].state, service, value)
	return err
}
