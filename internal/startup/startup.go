package startup

import (
	"runtime"
	"strings"

	"linkpad.com/p/internal/model"
)

const (
	// SilentStartArg 开机启动时附加的静默启动参数
	SilentStartArg = "--silent-start"
	// AgentLabel macOS LaunchAgent 标识
	AgentLabel = "com.linkpad.desktop"
	// RunValueName Windows Run 键下的值名
	RunValueName = "Linkpad"
)

// Manager 开机启动注册
type Manager interface {
	// Configure 开启时写入平台的自启动项，关闭时删除（不存在不算错误）
	Configure(autoLaunch, silentStart bool) error
	// Status 从系统读取当前注册状态
	Status() (model.StartupStatus, error)
}

// NewManager 根据当前平台创建开机启动管理器
func NewManager() Manager {
	switch runtime.GOOS {
	case "darwin":
		return NewLaunchAgent()
	case "windows":
		return newRunKey()
	default:
		return unsupportedManager{}
	}
}

// unsupportedManager 其他平台：配置为空操作，状态始终为未注册
type unsupportedManager struct{}

func (unsupportedManager) Configure(autoLaunch, silentStart bool) error { return nil }

func (unsupportedManager) Status() (model.StartupStatus, error) {
	return model.StartupStatus{}, nil
}

// runCommandLine Windows Run 键中的命令行："<exe>" [--silent-start]
func runCommandLine(executable string, silentStart bool) string {
	line := `"` + strings.ReplaceAll(executable, `"`, `\"`) + `"`
	if silentStart {
		line += " " + SilentStartArg
	}
	return line
}

// hasSilentArg 命令行中是否包含静默启动参数
func hasSilentArg(commandLine string) bool {
	for _, arg := range strings.Fields(commandLine) {
		if strings.EqualFold(arg, SilentStartArg) {
			return true
		}
	}
	return false
}
