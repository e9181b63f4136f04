package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"linkpad.com/p/internal/apperr"
	"linkpad.com/p/internal/model"
)

const plistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>%s</string>
    <key>ProgramArguments</key>
    <array>
        %s
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>
`

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// LaunchAgent macOS 登录项，写入 ~/Library/LaunchAgents/com.linkpad.desktop.plist
type LaunchAgent struct {
	homeDir    func() (string, error)
	executable func() (string, error)
}

// NewLaunchAgent 使用当前用户主目录与当前可执行文件
func NewLaunchAgent() *LaunchAgent {
	return &LaunchAgent{homeDir: os.UserHomeDir, executable: os.Executable}
}

// Path plist 文件路径
func (a *LaunchAgent) Path() (string, error) {
	home, err := a.homeDir()
	if err != nil || home == "" {
		return "", apperr.InvalidConfig("无法获取用户主目录: %v", err)
	}
	return filepath.Join(home, "Library", "LaunchAgents", AgentLabel+".plist"), nil
}

func (a *LaunchAgent) Configure(autoLaunch, silentStart bool) error {
	path, err := a.Path()
	if err != nil {
		return err
	}

	if !autoLaunch {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return apperr.Wrap(apperr.CodeInvalidConfig, "删除登录项失败", err)
		}
		return nil
	}

	exe, err := a.executable()
	if err != nil {
		return apperr.Wrap(apperr.CodeInvalidConfig, "获取当前可执行文件失败", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperr.Wrap(apperr.CodeInvalidConfig, "创建 LaunchAgents 目录失败", err)
	}
	if err := os.WriteFile(path, []byte(buildPlist(exe, silentStart)), 0644); err != nil {
		return apperr.Wrap(apperr.CodeInvalidConfig, "写入登录项失败", err)
	}
	return nil
}

func (a *LaunchAgent) Status() (model.StartupStatus, error) {
	path, err := a.Path()
	if err != nil {
		return model.StartupStatus{}, err
	}
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return model.StartupStatus{}, nil
	}
	if err != nil {
		return model.StartupStatus{}, apperr.Wrap(apperr.CodeInvalidConfig, "读取登录项失败", err)
	}
	return model.StartupStatus{
		AutoLaunch:  true,
		SilentStart: strings.Contains(string(content), "<string>"+SilentStartArg+"</string>"),
	}, nil
}

func buildPlist(executable string, silentStart bool) string {
	args := []string{"<string>" + xmlEscaper.Replace(executable) + "</string>"}
	if silentStart {
		args = append(args, "<string>"+SilentStartArg+"</string>")
	}
	return fmt.Sprintf(plistTemplate, AgentLabel, strings.Join(args, "\n        "))
}
