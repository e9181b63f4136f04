package kernel

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultFollowInterval 没有文件事件时的兜底检查间隔
const DefaultFollowInterval = 500 * time.Millisecond

// LogFollower 跟随 mihomo.log 的新增内容。
// 目录事件触发读取，同时定时检查一次，文件被截断时从头开始。
type LogFollower struct {
	path        string
	interval    time.Duration
	lastReadPos int64
}

// NewLogFollower 创建日志跟随器，从文件当前末尾开始读取
func NewLogFollower(path string) *LogFollower {
	f := &LogFollower{path: path, interval: DefaultFollowInterval}
	if info, err := os.Stat(path); err == nil {
		f.lastReadPos = info.Size()
	}
	return f
}

// Follow 阻塞直到 ctx 结束，每读到一整行新内容调用一次 fn
func (f *LogFollower) Follow(ctx context.Context, fn func(line string)) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return err
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.readNewLines(fn)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.readNewLines(fn)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) == filepath.Clean(f.path) &&
				event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				f.readNewLines(fn)
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}

// readNewLines 从上次位置读取完整的新行，末尾不完整的行留到下次
func (f *LogFollower) readNewLines(fn func(line string)) {
	file, err := os.Open(f.path)
	if err != nil {
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return
	}
	if info.Size() < f.lastReadPos {
		f.lastReadPos = 0
	}
	if info.Size() == f.lastReadPos {
		return
	}
	if _, err := file.Seek(f.lastReadPos, io.SeekStart); err != nil {
		return
	}

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		f.lastReadPos += int64(len(line))
		if trimmed := trimLineEnding(line); trimmed != "" {
			fn(trimmed)
		}
	}
}

func trimLineEnding(line string) string {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
