package release

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"linkpad.com/p/internal/apperr"
	"linkpad.com/p/internal/config"
)

// verifyDigest 发布信息带有 sha256 摘要时校验下载内容，没有摘要时跳过
func verifyDigest(asset *Asset, data []byte) error {
	expected := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(asset.Digest), "sha256:"))
	if expected == "" {
		return nil
	}
	sum := sha256.Sum256(data)
	if !strings.EqualFold(hex.EncodeToString(sum[:]), expected) {
		return apperr.InvalidConfig("下载的内核文件 %s 摘要不匹配", asset.Name)
	}
	return nil
}

// decompressGzip 解压单文件 gzip，结果为空视为错误
func decompressGzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidConfig, "解压内核文件失败", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidConfig, "解压内核文件失败", err)
	}
	if len(out) == 0 {
		return nil, apperr.InvalidConfig("下载的内核文件为空")
	}
	return out, nil
}

// installBinary 先写临时文件并设置可执行权限，再替换目标文件。
// 安装位置是目录时安装到目录内的同名文件。
func installBinary(installPath string, binary []byte) (string, error) {
	target := installPath
	if isDir(target) {
		target = filepath.Join(target, config.KernelBinaryName())
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", apperr.Wrap(apperr.CodeInvalidConfig, "创建安装目录失败", err)
	}
	if isDir(target) {
		return "", apperr.InvalidConfig("内核安装位置是目录: %s", target)
	}

	tmp := strings.TrimSuffix(target, filepath.Ext(target)) + ".tmp"
	if err := os.WriteFile(tmp, binary, 0755); err != nil {
		return "", apperr.Wrap(apperr.CodeInvalidConfig, "写入临时文件失败", err)
	}
	if err := os.Chmod(tmp, 0755); err != nil {
		_ = os.Remove(tmp)
		return "", apperr.Wrap(apperr.CodeInvalidConfig, "设置可执行权限失败", err)
	}

	if _, err := os.Stat(target); err == nil {
		if err := os.Remove(target); err != nil {
			_ = os.Remove(tmp)
			return "", apperr.Wrap(apperr.CodeInvalidConfig, "替换已有内核文件失败: "+target, err)
		}
	}
	if err := os.Rename(tmp, target); err != nil {
		return "", apperr.Wrap(apperr.CodeInvalidConfig, "安装内核文件失败: "+target, err)
	}
	return target, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
