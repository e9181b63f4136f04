package systemproxy

import (
	"bytes"
	"os/exec"
	"runtime"
	"strings"

	"linkpad.com/p/internal/apperr"
	"linkpad.com/p/internal/model"
)

// PlatformProxy 平台特定的代理操作接口
type PlatformProxy interface {
	// Capture 读取所有活动接口当前的代理设置
	Capture() (model.SystemProxySnapshot, error)
	// Apply 为所有活动接口设置并开启代理
	Apply(host string, port int) error
	// Restore 按快照恢复代理设置
	Restore(snapshot model.SystemProxySnapshot) error
	// Clear 关闭所有活动接口的代理
	Clear() error
}

// NewPlatformProxy 根据当前平台创建对应的代理管理器
func NewPlatformProxy() PlatformProxy {
	switch runtime.GOOS {
	case "darwin":
		return newDarwinProxy(runCommand)
	case "windows":
		return newWindowsProxy()
	default:
		return newUnsupportedProxy(runtime.GOOS)
	}
}

// UnsupportedProxy 不支持的操作系统实现
type UnsupportedProxy struct {
	os string
}

func newUnsupportedProxy(os string) *UnsupportedProxy {
	return &UnsupportedProxy{os: os}
}

func (p *UnsupportedProxy) err() error {
	return apperr.InvalidConfig("系统代理暂不支持当前平台: %s", p.os)
}

func (p *UnsupportedProxy) Capture() (model.SystemProxySnapshot, error) { return nil, p.err() }

func (p *UnsupportedProxy) Apply(host string, port int) error { return p.err() }

func (p *UnsupportedProxy) Restore(model.SystemProxySnapshot) error { return p.err() }

func (p *UnsupportedProxy) Clear() error { return p.err() }

// commandRunner 执行外部命令并返回标准输出
type commandRunner func(name string, args ...string) (string, error)

// runCommand 失败时错误信息取标准错误，为空时取标准输出
func runCommand(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		reason := strings.TrimSpace(stderr.String())
		if reason == "" {
			reason = strings.TrimSpace(stdout.String())
		}
		if reason == "" {
			reason = err.Error()
		}
		return "", apperr.InvalidConfig("%s %s 执行失败: %s", name, strings.Join(args, " "), reason)
	}
	return stdout.String(), nil
}
