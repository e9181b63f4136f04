package logging

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogType 日志类型
type LogType string

const (
	// LogTypeApp 应用程序日志
	LogTypeApp LogType = "app"
	// LogTypeKernel 内核输出（由日志跟随器转发）
	LogTypeKernel LogType = "kernel"
)

const (
	// MaxLogFileSize 单个日志文件最大大小（10MB）
	MaxLogFileSize int64 = 10 * 1024 * 1024

	typeField = "type"
)

// LogCallback 日志回调函数类型，每写入一行日志调用一次
type LogCallback func(level, logType, message, logLine string)

// Logger 日志记录器
// 负责日志文件的写入、归档与轮转，实际格式化和级别过滤交给 logrus
type Logger struct {
	entry       *logrus.Logger
	file        *os.File
	console     bool
	mutex       sync.Mutex
	logFilePath string
	callback    LogCallback
}

// NewLogger 创建新的日志记录器
// 参数：
//   - logFilePath: 日志文件路径，没有扩展名时追加 .log
//   - console: 是否输出到控制台
//   - level: 日志级别
//   - callback: 日志回调（可选）
func NewLogger(logFilePath string, console bool, level string, callback ...LogCallback) (*Logger, error) {
	logLevel, err := parseLogLevel(level)
	if err != nil {
		return nil, err
	}

	if filepath.Ext(logFilePath) == "" {
		logFilePath = logFilePath + ".log"
	}

	l := &Logger{
		console:     console,
		logFilePath: logFilePath,
	}
	if len(callback) > 0 && callback[0] != nil {
		l.callback = callback[0]
	}

	if err := os.MkdirAll(filepath.Dir(logFilePath), 0755); err != nil {
		return nil, fmt.Errorf("创建日志目录失败: %w", err)
	}

	// 启动时如果日志文件存在则归档
	if err := archiveIfExists(logFilePath, 0); err != nil {
		return nil, fmt.Errorf("归档日志文件失败: %w", err)
	}

	file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开日志文件失败: %w", err)
	}
	l.file = file

	l.entry = logrus.New()
	l.entry.SetLevel(logLevel)
	l.entry.SetFormatter(&lineFormatter{})
	l.entry.SetOutput(&lockedWriter{l: l})
	l.entry.ExitFunc = os.Exit

	return l, nil
}

// lineFormatter 输出 "时间 [级别] [类型] 消息" 格式
type lineFormatter struct{}

func (f *lineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	logType, _ := e.Data[typeField].(string)
	if logType == "" {
		logType = string(LogTypeApp)
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s [%s] [%s] %s\n",
		e.Time.Format("2006-01-02 15:04:05"),
		levelName(e.Level),
		logType,
		strings.TrimRight(e.Message, "\n"))
	return b.Bytes(), nil
}

func levelName(level logrus.Level) string {
	if level == logrus.WarnLevel {
		return "WARN"
	}
	return strings.ToUpper(level.String())
}

// lockedWriter 在写入前检查轮转，并同步到控制台和回调
type lockedWriter struct {
	l *Logger
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	l := w.l
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.console {
		os.Stdout.Write(p)
	}
	if l.file != nil {
		if err := l.rotateIfNeeded(); err != nil {
			fmt.Fprintf(os.Stderr, "日志轮转失败: %v\n", err)
		}
		if _, err := l.file.Write(p); err != nil {
			l.reopenFile()
			if l.file != nil {
				l.file.Write(p)
			}
		}
	}
	if l.callback != nil {
		line := strings.TrimRight(string(p), "\n")
		level, logType, message := splitLine(line)
		l.callback(level, logType, message, line)
	}
	return len(p), nil
}

// splitLine 从格式化后的行中拆出级别、类型和消息
func splitLine(line string) (level, logType, message string) {
	rest := line
	if i := strings.Index(rest, " ["); i >= 0 {
		rest = rest[i+2:]
	}
	level, rest, _ = strings.Cut(rest, "] [")
	logType, message, _ = strings.Cut(rest, "] ")
	return level, logType, message
}

// archiveIfExists 如果日志文件存在且大小超过 threshold 则归档
func archiveIfExists(logPath string, threshold int64) error {
	info, err := os.Stat(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() == 0 || info.Size() < threshold {
		return nil
	}

	backupPath := fmt.Sprintf("%s.%s", logPath, time.Now().Format("20060102_150405"))
	if _, err := os.Stat(backupPath); err == nil {
		backupPath = fmt.Sprintf("%s.%d", backupPath, time.Now().UnixNano())
	}
	if err := os.Rename(logPath, backupPath); err != nil {
		return fmt.Errorf("归档日志文件失败: %w", err)
	}
	return nil
}

// rotateIfNeeded 检查日志文件大小，超过阈值则归档并重新打开（调用方持有锁）
func (l *Logger) rotateIfNeeded() error {
	info, err := l.file.Stat()
	if err != nil || info.Size() < MaxLogFileSize {
		return err
	}
	l.file.Close()
	l.file = nil
	if err := archiveIfExists(l.logFilePath, MaxLogFileSize); err != nil {
		l.reopenFile()
		return err
	}
	l.reopenFile()
	return nil
}

// parseLogLevel 解析日志级别字符串
func parseLogLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "":
		return logrus.InfoLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	case "fatal":
		return logrus.FatalLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("无效的日志级别: %s", level)
	}
}

// reopenFile 重新打开日志文件（调用方持有锁）
func (l *Logger) reopenFile() {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	f, err := os.OpenFile(l.logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		l.file = f
	}
}

// WithType 返回带日志类型的 logrus 条目
func (l *Logger) WithType(logType LogType) *logrus.Entry {
	return l.entry.WithField(typeField, string(logType))
}

// Log 记录日志（通用方法，支持外部调用）
func (l *Logger) Log(level string, logType LogType, message string) {
	lv, err := parseLogLevel(level)
	if err != nil {
		lv = logrus.InfoLevel
	}
	l.WithType(logType).Log(lv, message)
	if lv == logrus.FatalLevel {
		l.entry.Exit(1)
	}
}

// GetLogLevel 获取当前日志级别
func (l *Logger) GetLogLevel() string {
	return strings.ToLower(levelName(l.entry.GetLevel()))
}

// SetLogLevel 设置日志级别，无效级别被忽略
func (l *Logger) SetLogLevel(level string) {
	if lv, err := parseLogLevel(level); err == nil {
		l.entry.SetLevel(lv)
	}
}

// SetConsole 开启或关闭控制台输出
func (l *Logger) SetConsole(console bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.console = console
}

// GetLogFilePath 获取日志文件路径
func (l *Logger) GetLogFilePath() string {
	return l.logFilePath
}

// Close 关闭日志记录器
func (l *Logger) Close() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

// SafeLogger 安全日志包装器，处理 Logger 为 nil 的情况
type SafeLogger struct {
	logger *Logger
}

// NewSafeLogger 创建安全日志包装器，logger 可以为 nil
func NewSafeLogger(logger *Logger) *SafeLogger {
	return &SafeLogger{logger: logger}
}

func (sl *SafeLogger) log(level string, logType LogType, format string, args ...interface{}) {
	if sl == nil || sl.logger == nil {
		return
	}
	sl.logger.Log(level, logType, fmt.Sprintf(format, args...))
}

// Debugf 记录调试日志
func (sl *SafeLogger) Debugf(format string, args ...interface{}) {
	sl.log("debug", LogTypeApp, format, args...)
}

// Infof 记录信息日志
func (sl *SafeLogger) Infof(format string, args ...interface{}) {
	sl.log("info", LogTypeApp, format, args...)
}

// Warnf 记录警告日志
func (sl *SafeLogger) Warnf(format string, args ...interface{}) {
	sl.log("warn", LogTypeApp, format, args...)
}

// Errorf 记录错误日志
func (sl *SafeLogger) Errorf(format string, args ...interface{}) {
	sl.log("error", LogTypeApp, format, args...)
}

// Kernel 按给定级别记录一行内核输出
func (sl *SafeLogger) Kernel(level, line string) {
	sl.log(level, LogTypeKernel, "%s", line)
}

// IsReady 检查 Logger 是否已初始化
func (sl *SafeLogger) IsReady() bool {
	return sl != nil && sl.logger != nil
}
