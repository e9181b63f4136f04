package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config 应用启动配置。
// 注意：内核运行配置（模式、端口等）保存在数据库中，此文件只保存日志、数据库位置和内核路径覆盖。
type Config struct {
	LogLevel     string `json:"logLevel"`     // 日志级别
	LogFile      string `json:"logFile"`      // 日志文件路径，相对路径基于应用目录
	DatabaseFile string `json:"databaseFile"` // 数据库文件路径，相对路径基于应用目录
	KernelPath   string `json:"kernelPath"`   // 内核二进制或所在目录（可选），环境变量 LINKPAD_MIHOMO_PATH 优先
}

// DefaultConfig 返回默认的应用配置。
// 返回：包含默认值的配置实例
func DefaultConfig() *Config {
	return &Config{
		LogLevel:     "info",
		LogFile:      "linkpad.log",
		DatabaseFile: "linkpad.db",
		KernelPath:   "",
	}
}

// LoadConfig 从指定的 JSON 文件加载配置。
// 如果文件不存在，会创建包含默认配置的新文件。
// 参数：
//   - filePath: 配置文件路径
//
// 返回：配置实例和错误（如果有）
func LoadConfig(filePath string) (*Config, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		defaultConfig := DefaultConfig()
		if err := SaveConfig(defaultConfig, filePath); err != nil {
			return nil, fmt.Errorf("保存默认配置失败: %w", err)
		}
		return defaultConfig, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 缺省字段沿用默认值
	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return config, nil
}

// SaveConfig 将配置保存到指定的 JSON 文件。
// 如果目录不存在，会自动创建。
// 参数：
//   - config: 要保存的配置实例
//   - filePath: 配置文件路径
//
// 返回：错误（如果有）
func SaveConfig(config *Config, filePath string) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}

	return nil
}

// Validate 验证配置的有效性。
// 返回：如果配置无效则返回错误，否则返回 nil
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}
	if c.LogLevel != "" && !validLogLevels[c.LogLevel] {
		return fmt.Errorf("无效的日志级别: %s", c.LogLevel)
	}
	if c.DatabaseFile == "" {
		return fmt.Errorf("数据库文件路径不能为空")
	}
	return nil
}

// ResolvePath 把相对路径解析到应用目录下
func (c *Config) ResolvePath(paths Paths, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(paths.AppDir, p)
}
