package kernel

import (
	"strconv"
	"strings"
)

// ParseLogLine 解析 mihomo 的一行日志，返回级别（debug/info/warn/error）与消息。
// mihomo 默认输出 `time="..." level=info msg="..."`，其他格式按关键字判断级别并原样返回。
func ParseLogLine(line string) (level, message string) {
	line = strings.TrimRight(line, "\r\n")
	level = "info"
	message = line

	if value, ok := logField(line, "level"); ok {
		level = normalizeLevel(value)
		if msg, ok := logField(line, "msg"); ok {
			message = msg
		}
		return level, message
	}

	upper := strings.ToUpper(line)
	switch {
	case strings.Contains(upper, "[ERROR]") || strings.Contains(upper, " ERROR "):
		level = "error"
	case strings.Contains(upper, "[WARN]") || strings.Contains(upper, "[WARNING]") || strings.Contains(upper, " WARN "):
		level = "warn"
	case strings.Contains(upper, "[DEBUG]") || strings.Contains(upper, " DEBUG "):
		level = "debug"
	}
	return level, message
}

func normalizeLevel(value string) string {
	switch strings.ToLower(value) {
	case "debug", "trace":
		return "debug"
	case "warn", "warning":
		return "warn"
	case "error", "fatal", "panic":
		return "error"
	default:
		return "info"
	}
}

// logField 读取 key=value 或 key="quoted value" 形式的字段
func logField(line, key string) (string, bool) {
	idx := strings.Index(line, key+"=")
	for idx > 0 && line[idx-1] != ' ' {
		next := strings.Index(line[idx+1:], key+"=")
		if next < 0 {
			return "", false
		}
		idx += next + 1
	}
	if idx < 0 {
		return "", false
	}

	rest := line[idx+len(key)+1:]
	if strings.HasPrefix(rest, "\"") {
		if quoted, err := strconv.QuotedPrefix(rest); err == nil {
			if value, err := strconv.Unquote(quoted); err == nil {
				return value, true
			}
		}
		return strings.Trim(rest, "\""), true
	}
	if end := strings.IndexByte(rest, ' '); end >= 0 {
		return rest[:end], true
	}
	return rest, true
}
