package kernel

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// versionProbeTimeout 单次版本探测的超时
const versionProbeTimeout = 3 * time.Second

// versionFlags 依次尝试的版本参数
var versionFlags = []string{"-v", "--version", "version"}

// DetectVersion 依次使用常见版本参数运行内核，返回输出中的版本号。
// 输出里没有 vX 形式的版本号时返回第一行非空输出。
// 参数：
//   - binaryPath: 内核文件路径
//
// 返回：版本字符串，全部失败时返回空字符串
func DetectVersion(binaryPath string) string {
	for _, flag := range versionFlags {
		ctx, cancel := context.WithTimeout(context.Background(), versionProbeTimeout)
		cmd := exec.CommandContext(ctx, binaryPath, flag)
		var out strings.Builder
		cmd.Stdout = &out
		cmd.Stderr = &out
		err := cmd.Run()
		cancel()
		if err != nil && out.Len() == 0 {
			continue
		}

		for _, line := range strings.Split(out.String(), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if version := ExtractVersion(line); version != "" {
				return version
			}
			return line
		}
	}
	return ""
}

// ExtractVersion 返回文本中第一个以 v 加数字开头的词
func ExtractVersion(text string) string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case ' ', '\t', '\r', '\n', ',', ';', '(', ')':
			return true
		}
		return false
	})
	for _, raw := range fields {
		token := strings.Trim(raw, "\"'[]")
		if len(token) >= 2 && token[0] == 'v' && token[1] >= '0' && token[1] <= '9' {
			return token
		}
	}
	return ""
}

// versionFromFileName 从文件名中取版本号，例如 mihomo-darwin-arm64-v1.19.0
func versionFromFileName(binaryPath string) string {
	name := filepath.Base(binaryPath)
	for _, part := range strings.Split(name, "-") {
		if v := ExtractVersion(strings.TrimSuffix(strings.TrimSuffix(part, ".exe"), ".gz")); v != "" {
			return v
		}
	}
	return ""
}
