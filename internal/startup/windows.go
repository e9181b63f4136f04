//go:build windows
// +build windows

package startup

import (
	"errors"
	"os"

	"golang.org/x/sys/windows/registry"

	"linkpad.com/p/internal/apperr"
	"linkpad.com/p/internal/model"
)

const runKeyPath = `Software\Microsoft\Windows\CurrentVersion\Run`

// RunKey HKCU\...\Run 下的 Linkpad 值
type RunKey struct{}

func newRunKey() Manager {
	return RunKey{}
}

func (RunKey) Configure(autoLaunch, silentStart bool) error {
	key, err := registry.OpenKey(registry.CURRENT_USER, runKeyPath, registry.SET_VALUE)
	if err != nil {
		return apperr.Wrap(apperr.CodeInvalidConfig, "打开注册表失败", err)
	}
	defer key.Close()

	if !autoLaunch {
		if err := key.DeleteValue(RunValueName); err != nil && !errors.Is(err, registry.ErrNotExist) {
			return apperr.Wrap(apperr.CodeInvalidConfig, "删除开机启动项失败", err)
		}
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return apperr.Wrap(apperr.CodeInvalidConfig, "获取当前可执行文件失败", err)
	}
	if err := key.SetStringValue(RunValueName, runCommandLine(exe, silentStart)); err != nil {
		return apperr.Wrap(apperr.CodeInvalidConfig, "写入开机启动项失败", err)
	}
	return nil
}

func (RunKey) Status() (model.StartupStatus, error) {
	key, err := registry.OpenKey(registry.CURRENT_USER, runKeyPath, registry.QUERY_VALUE)
	if err != nil {
		return model.StartupStatus{}, apperr.Wrap(apperr.CodeInvalidConfig, "打开注册表失败", err)
	}
	defer key.Close()

	value, _, err := key.GetStringValue(RunValueName)
	if errors.Is(err, registry.ErrNotExist) {
		return model.StartupStatus{}, nil
	}
	if err != nil {
		return model.StartupStatus{}, apperr.Wrap(apperr.CodeInvalidConfig, "读取开机启动项失败", err)
	}
	return model.StartupStatus{AutoLaunch: true, SilentStart: hasSilentArg(value)}, nil
}
