package utils

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// TimestampLayout 配置文件更新时间格式
const TimestampLayout = "2006-01-02 15:04:05"

// GenerateProfileID 生成配置文件ID。
// 参数：
//   - sourceURL: 订阅地址
//
// 返回：形如 p-<unix秒>-<8位十六进制> 的ID
func GenerateProfileID(sourceURL string) string {
	now := time.Now()
	data := fmt.Sprintf("%s:%d", sourceURL, now.UnixNano())
	hash := md5.Sum([]byte(data))
	return fmt.Sprintf("p-%d-%s", now.Unix(), hex.EncodeToString(hash[:4]))
}

// Now 返回当前本地时间的格式化字符串
func Now() string {
	return time.Now().Format(TimestampLayout)
}
