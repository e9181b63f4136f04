package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	// AppName 应用目录名
	AppName = "linkpad"

	// EnvKernelPath 内核路径覆盖
	EnvKernelPath = "LINKPAD_MIHOMO_PATH"
	// EnvGithubToken 发布接口的 bearer token
	EnvGithubToken = "LINKPAD_GITHUB_TOKEN"
)

// Paths 应用使用的目录布局
type Paths struct {
	AppDir     string // <用户配置目录>/linkpad
	RuntimeDir string // 内核运行目录：runtime.yaml、mihomo.log、mihomo.pid
	InstallDir string // 内核安装目录
}

// DefaultPaths 基于用户配置目录构建目录布局，获取失败时退回临时目录
func DefaultPaths() Paths {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return NewPaths(filepath.Join(base, AppName))
}

// NewPaths 以 appDir 为根构建目录布局
func NewPaths(appDir string) Paths {
	return Paths{
		AppDir:     appDir,
		RuntimeDir: filepath.Join(appDir, "runtime"),
		InstallDir: filepath.Join(appDir, "bin"),
	}
}

// ConfigFile 启动配置文件路径
func (p Paths) ConfigFile() string {
	return filepath.Join(p.AppDir, "config.json")
}

// KernelBinaryName 当前平台的内核文件名
func KernelBinaryName() string {
	if runtime.GOOS == "windows" {
		return "mihomo.exe"
	}
	return "mihomo"
}

// InstallPath 内核安装位置
func (p Paths) InstallPath() string {
	return filepath.Join(p.InstallDir, KernelBinaryName())
}

// Ensure 创建应用目录
func (p Paths) Ensure() error {
	if err := os.MkdirAll(p.AppDir, 0755); err != nil {
		return fmt.Errorf("创建应用目录失败: %w", err)
	}
	return nil
}
