package kernel

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"linkpad.com/p/internal/apperr"
	"linkpad.com/p/internal/logging"
	"linkpad.com/p/internal/model"
)

const (
	// ConfigFileName 内核运行配置
	ConfigFileName = "runtime.yaml"
	// LogFileName 内核标准输出与错误输出
	LogFileName = "mihomo.log"
	// PidFileName 记录子进程 pid，用于下次启动时回收
	PidFileName = "mihomo.pid"

	// DefaultStartGrace 启动后等待多久再判定启动成功
	DefaultStartGrace = 400 * time.Millisecond

	terminatePollInterval = 100 * time.Millisecond
	terminatePollAttempts = 12
)

// Supervisor 管理本应用运行的唯一一个 mihomo 子进程。
// 子进程退出不会主动通知，IsRunning 查询时才同步状态。
type Supervisor struct {
	mu         sync.Mutex
	runtimeDir string
	resolver   *Resolver
	procs      ProcessTable
	log        *logging.SafeLogger

	grace        time.Duration
	pollInterval time.Duration

	cmd  *exec.Cmd
	done chan struct{} // 子进程退出后关闭
}

// NewSupervisor 创建内核进程管理器。
// 参数：
//   - runtimeDir: 运行目录，存放 runtime.yaml、mihomo.log、mihomo.pid
//   - resolver: 内核文件查找器
//   - log: 日志（可为 nil）
//
// 返回：管理器实例
func NewSupervisor(runtimeDir string, resolver *Resolver, log *logging.SafeLogger) *Supervisor {
	return &Supervisor{
		runtimeDir:   runtimeDir,
		resolver:     resolver,
		procs:        NewSystemProcessTable(),
		log:          log,
		grace:        DefaultStartGrace,
		pollInterval: terminatePollInterval,
	}
}

// SetProcessTable 替换进程表（测试使用）
func (s *Supervisor) SetProcessTable(procs ProcessTable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procs = procs
}

// SetTimings 调整启动宽限期和终止轮询间隔
func (s *Supervisor) SetTimings(grace, pollInterval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grace = grace
	s.pollInterval = pollInterval
}

// RuntimeDir 运行目录
func (s *Supervisor) RuntimeDir() string { return s.runtimeDir }

// ConfigPath runtime.yaml 路径
func (s *Supervisor) ConfigPath() string { return filepath.Join(s.runtimeDir, ConfigFileName) }

// LogPath mihomo.log 路径
func (s *Supervisor) LogPath() string { return filepath.Join(s.runtimeDir, LogFileName) }

// PidPath mihomo.pid 路径
func (s *Supervisor) PidPath() string { return filepath.Join(s.runtimeDir, PidFileName) }

// Start 写入运行配置并启动内核。
// 启动前会回收上次运行遗留的内核进程，回收失败时不会启动新进程。
// 参数：
//   - configText: runtime.yaml 内容
//
// 返回：错误（已在运行时返回 ErrAlreadyRunning）
func (s *Supervisor) Start(configText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.aliveLocked() {
		return apperr.ErrAlreadyRunning
	}

	if err := os.MkdirAll(s.runtimeDir, 0755); err != nil {
		return apperr.Wrap(apperr.CodeInvalidConfig, "创建运行目录失败", err)
	}
	if _, err := s.reclaimLocked(); err != nil {
		return err
	}

	configPath := s.ConfigPath()
	if err := os.WriteFile(configPath, []byte(configText), 0644); err != nil {
		return apperr.Wrap(apperr.CodeInvalidConfig, "写入运行配置失败", err)
	}

	logFile, err := os.OpenFile(s.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return apperr.Wrap(apperr.CodeInvalidConfig, "打开内核日志失败", err)
	}
	defer logFile.Close()

	binary, err := s.resolver.Resolve()
	if err != nil {
		return err
	}

	cmd := exec.Command(binary, "-f", configPath, "-d", s.runtimeDir)
	cmd.Dir = s.runtimeDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		return apperr.Wrap(apperr.CodeInvalidConfig, fmt.Sprintf("启动 %s 失败", binary), err)
	}

	done := make(chan struct{})
	var waitErr error
	go func() {
		waitErr = cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.removePidFile()
		return apperr.InvalidConfig("mihomo 启动后立即退出（%v），请查看 %s", exitDescription(waitErr), s.LogPath())
	case <-time.After(s.grace):
	}

	pid := cmd.Process.Pid
	if err := os.WriteFile(s.PidPath(), []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		_ = cmd.Process.Kill()
		<-done
		return apperr.Wrap(apperr.CodeInvalidConfig, "写入 pid 文件失败", err)
	}

	s.cmd = cmd
	s.done = done
	s.log.Infof("内核: 已启动 mihomo pid=%d binary=%s", pid, binary)
	return nil
}

// Stop 停止内核并清理遗留进程。
// 先请求正常退出，超时后强制结束；无论结果如何都会删除 pid 文件。
// 返回：错误（既没有子进程也没有遗留进程时返回 ErrNotRunning）
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.removePidFile()

	tracked := s.aliveLocked()
	var firstErr error
	if tracked {
		if err := s.terminateChildLocked(); err != nil {
			firstErr = err
		}
	}

	reclaimed, err := s.reclaimLocked()
	if firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return firstErr
	}
	if !tracked && reclaimed == 0 {
		return apperr.ErrNotRunning
	}
	s.log.Infof("内核: 已停止")
	return nil
}

// IsRunning 非阻塞检查子进程是否存活，已退出时同步内部状态
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aliveLocked()
}

// Pid 当前子进程 pid，未运行时返回 0
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.aliveLocked() {
		return 0
	}
	return s.cmd.Process.Pid
}

// ManagedPids 当前存活的、指向本运行目录的内核进程（包括其他实例启动的）
func (s *Supervisor) ManagedPids() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findManagedPids()
}

// Close 释放时尽量结束子进程
func (s *Supervisor) Close() {
	if s.IsRunning() {
		if err := s.Stop(); err != nil {
			s.log.Warnf("内核: 退出时停止失败: %v", err)
		}
	}
}

// Info 内核文件与版本信息，不会失败
func (s *Supervisor) Info() model.KernelInfo {
	info := model.KernelInfo{SuggestedPath: s.resolver.SuggestedPath()}
	binary, err := s.resolver.Resolve()
	if err != nil {
		info.Status = err.Error()
		return info
	}
	info.BinaryPath = binary
	info.Version = DetectVersion(binary)
	if info.Version == "" {
		info.Version = versionFromFileName(binary)
	}
	info.Status = "ok"
	return info
}

func (s *Supervisor) aliveLocked() bool {
	if s.cmd == nil {
		return false
	}
	select {
	case <-s.done:
		s.log.Warnf("内核: mihomo pid=%d 已退出", s.cmd.Process.Pid)
		s.cmd = nil
		s.done = nil
		s.removePidFile()
		return false
	default:
		return true
	}
}

// terminateChildLocked 先发送终止信号，超时后强制结束
func (s *Supervisor) terminateChildLocked() error {
	cmd, done := s.cmd, s.done
	s.cmd, s.done = nil, nil

	wait := time.Duration(terminatePollAttempts) * s.pollInterval
	if err := cmd.Process.Signal(terminateSignal); err == nil {
		select {
		case <-done:
			return nil
		case <-time.After(wait):
		}
	}

	_ = cmd.Process.Kill()
	select {
	case <-done:
		return nil
	case <-time.After(wait):
		return apperr.InvalidConfig("无法结束 mihomo 进程 pid=%d", cmd.Process.Pid)
	}
}

// reclaimLocked 结束上次运行遗留的内核进程并删除 pid 文件，返回结束的进程数
func (s *Supervisor) reclaimLocked() (int, error) {
	pids := s.findManagedPids()
	for _, pid := range pids {
		s.log.Warnf("内核: 结束遗留的 mihomo 进程 pid=%d", pid)
		if err := s.terminateStale(pid); err != nil {
			s.removePidFile()
			return 0, err
		}
	}
	s.removePidFile()
	return len(pids), nil
}

// findManagedPids pid 文件记录的进程与进程表扫描结果的并集，
// 只保留命令行同时指向本运行目录和配置文件的 mihomo 进程
func (s *Supervisor) findManagedPids() []int {
	set := make(map[int]struct{})

	if raw, err := os.ReadFile(s.PidPath()); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(raw))); err == nil && pid > 0 {
			if cmdline, err := s.procs.Cmdline(pid); err == nil && s.isManagedCmdline(cmdline) {
				set[pid] = struct{}{}
			}
		}
	}

	if procs, err := s.procs.List(); err == nil {
		for _, p := range procs {
			if p.Pid == os.Getpid() {
				continue
			}
			if s.isManagedCmdline(p.Cmdline) {
				set[p.Pid] = struct{}{}
			}
		}
	} else {
		s.log.Debugf("内核: 读取进程列表失败: %v", err)
	}

	pids := make([]int, 0, len(set))
	for pid := range set {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids
}

func (s *Supervisor) isManagedCmdline(cmdline string) bool {
	return strings.Contains(cmdline, "mihomo") &&
		strings.Contains(cmdline, s.runtimeDir) &&
		strings.Contains(cmdline, s.ConfigPath())
}

func (s *Supervisor) terminateStale(pid int) error {
	_ = s.procs.Signal(pid, false)
	if s.waitExit(pid) {
		return nil
	}
	_ = s.procs.Signal(pid, true)
	if s.waitExit(pid) {
		return nil
	}
	return apperr.InvalidConfig("无法结束遗留的 mihomo 进程 pid=%d", pid)
}

func (s *Supervisor) waitExit(pid int) bool {
	for i := 0; i < terminatePollAttempts; i++ {
		if !s.procs.Exists(pid) {
			return true
		}
		time.Sleep(s.pollInterval)
	}
	return false
}

func (s *Supervisor) removePidFile() {
	_ = os.Remove(s.PidPath())
}

func exitDescription(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}
