package kernel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"linkpad.com/p/internal/apperr"
)

// fakeTable 内存进程表，记录收到的信号
type fakeTable struct {
	mu         sync.Mutex
	cmdlines   map[int]string
	alive      map[int]bool
	ignoreTerm map[int]bool
	ignoreKill map[int]bool
	signals    []string
}

func newFakeTable() *fakeTable {
	return &fakeTable{
		cmdlines:   make(map[int]string),
		alive:      make(map[int]bool),
		ignoreTerm: make(map[int]bool),
		ignoreKill: make(map[int]bool),
	}
}

func (f *fakeTable) add(pid int, cmdline string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmdlines[pid] = cmdline
	f.alive[pid] = true
}

func (f *fakeTable) List() ([]ProcessInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ProcessInfo
	for pid, cmdline := range f.cmdlines {
		if f.alive[pid] {
			out = append(out, ProcessInfo{Pid: pid, Cmdline: cmdline})
		}
	}
	return out, nil
}

func (f *fakeTable) Cmdline(pid int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.alive[pid] {
		return "", errors.New("no such process")
	}
	return f.cmdlines[pid], nil
}

func (f *fakeTable) Exists(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

func (f *fakeTable) Signal(pid int, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if force {
		f.signals = append(f.signals, fmt.Sprintf("%d:KILL", pid))
		if !f.ignoreKill[pid] {
			f.alive[pid] = false
		}
		return nil
	}
	f.signals = append(f.signals, fmt.Sprintf("%d:TERM", pid))
	if !f.ignoreTerm[pid] {
		f.alive[pid] = false
	}
	return nil
}

func (f *fakeTable) recorded() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.signals, ",")
}

func newTestSupervisor(t *testing.T) (*Supervisor, *fakeTable) {
	t.Helper()
	root := t.TempDir()
	r := &Resolver{
		BinaryName: "mihomo",
		RuntimeDir: filepath.Join(root, "runtime"),
		InstallDir: filepath.Join(root, "bin"),
		GOOS:       runtime.GOOS,
	}
	s := NewSupervisor(r.RuntimeDir, r, nil)
	table := newFakeTable()
	s.SetProcessTable(table)
	s.SetTimings(300*time.Millisecond, 5*time.Millisecond)
	return s, table
}

// installScript 在 runtime/bin 下放置一个假的 mihomo
func installScript(t *testing.T, s *Supervisor, body string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(s.RuntimeDir(), "bin", "mihomo")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatal(err)
	}
}

func TestStartTwiceAndStop(t *testing.T) {
	s, _ := newTestSupervisor(t)
	installScript(t, s, "exec sleep 30")

	if err := s.Start("mode: rule\n"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Close()

	pid := s.Pid()
	if pid == 0 || !s.IsRunning() {
		t.Fatalf("kernel not running after start")
	}
	raw, err := os.ReadFile(s.PidPath())
	if err != nil || string(raw) != strconv.Itoa(pid)+"\n" {
		t.Fatalf("pid file = %q, %v", raw, err)
	}
	cfg, _ := os.ReadFile(s.ConfigPath())
	if string(cfg) != "mode: rule\n" {
		t.Fatalf("runtime config = %q", cfg)
	}

	if err := s.Start("mode: rule\n"); !errors.Is(err, apperr.ErrAlreadyRunning) {
		t.Fatalf("second start err = %v, want already running", err)
	}
	if s.Pid() != pid {
		t.Fatalf("second start replaced the child")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if s.IsRunning() {
		t.Fatalf("still running after stop")
	}
	if _, err := os.Stat(s.PidPath()); !os.IsNotExist(err) {
		t.Fatalf("pid file left behind: %v", err)
	}
	if err := s.Stop(); !errors.Is(err, apperr.ErrNotRunning) {
		t.Fatalf("second stop err = %v, want not running", err)
	}
}

func TestStartDetectsEarlyExit(t *testing.T) {
	s, _ := newTestSupervisor(t)
	installScript(t, s, "echo boom\nexit 3")

	err := s.Start("mode: rule\n")
	if apperr.CodeOf(err) != apperr.CodeInvalidConfig {
		t.Fatalf("err = %v, want invalid config", err)
	}
	if !strings.Contains(err.Error(), s.LogPath()) {
		t.Fatalf("error should point at the log: %v", err)
	}
	if s.IsRunning() {
		t.Fatalf("running after early exit")
	}
	if _, err := os.Stat(s.PidPath()); !os.IsNotExist(err) {
		t.Fatalf("pid file left behind")
	}
	logText, _ := os.ReadFile(s.LogPath())
	if !strings.Contains(string(logText), "boom") {
		t.Fatalf("kernel output not captured: %q", logText)
	}
}

func TestIsRunningReconcilesExit(t *testing.T) {
	s, _ := newTestSupervisor(t)
	installScript(t, s, "sleep 1")

	if err := s.Start(""); err != nil {
		t.Fatalf("start: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for s.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatalf("exit never observed")
		}
		time.Sleep(50 * time.Millisecond)
	}
	if _, err := os.Stat(s.PidPath()); !os.IsNotExist(err) {
		t.Fatalf("pid file left behind after crash")
	}
}

func TestStartWithoutBinary(t *testing.T) {
	s, _ := newTestSupervisor(t)
	err := s.Start("")
	if apperr.CodeOf(err) != apperr.CodeInvalidConfig {
		t.Fatalf("err = %v", err)
	}
	if s.IsRunning() {
		t.Fatalf("running without binary")
	}
}

func managedCmdline(s *Supervisor) string {
	return "/opt/mihomo -f " + s.ConfigPath() + " -d " + s.RuntimeDir()
}

func writePid(t *testing.T, s *Supervisor, pid int) {
	t.Helper()
	if err := os.MkdirAll(s.RuntimeDir(), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.PidPath(), []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestStopReclaimsStaleProcesses(t *testing.T) {
	s, table := newTestSupervisor(t)
	writePid(t, s, 4242)
	table.add(4242, managedCmdline(s))
	table.add(5151, managedCmdline(s))
	table.add(6161, "/opt/mihomo -f /elsewhere/runtime.yaml -d /elsewhere")

	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := table.recorded(); got != "4242:TERM,5151:TERM" {
		t.Fatalf("signals = %s", got)
	}
	if !table.Exists(6161) {
		t.Fatalf("unrelated kernel was killed")
	}
	if _, err := os.Stat(s.PidPath()); !os.IsNotExist(err) {
		t.Fatalf("pid file left behind")
	}
}

func TestStalePidOfUnrelatedProcessIsKept(t *testing.T) {
	s, table := newTestSupervisor(t)
	writePid(t, s, 4242)
	table.add(4242, "/usr/bin/vim notes.txt")

	if err := s.Stop(); !errors.Is(err, apperr.ErrNotRunning) {
		t.Fatalf("err = %v, want not running", err)
	}
	if table.recorded() != "" || !table.Exists(4242) {
		t.Fatalf("unrelated process signalled: %s", table.recorded())
	}
	if _, err := os.Stat(s.PidPath()); !os.IsNotExist(err) {
		t.Fatalf("pid file left behind")
	}
}

func TestReclaimEscalatesToKill(t *testing.T) {
	s, table := newTestSupervisor(t)
	table.add(4242, managedCmdline(s))
	table.ignoreTerm[4242] = true

	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := table.recorded(); got != "4242:TERM,4242:KILL" {
		t.Fatalf("signals = %s", got)
	}
}

func TestStartRefusesWhenStaleProcessSurvives(t *testing.T) {
	s, table := newTestSupervisor(t)
	writePid(t, s, 4242)
	table.add(4242, managedCmdline(s))
	table.ignoreTerm[4242] = true
	table.ignoreKill[4242] = true

	err := s.Start("mode: rule\n")
	if apperr.CodeOf(err) != apperr.CodeInvalidConfig || !strings.Contains(err.Error(), "4242") {
		t.Fatalf("err = %v", err)
	}
	if _, err := os.Stat(s.ConfigPath()); !os.IsNotExist(err) {
		t.Fatalf("runtime config written despite failed reclaim")
	}
	if _, err := os.Stat(s.PidPath()); !os.IsNotExist(err) {
		t.Fatalf("pid file left behind")
	}
}

func TestInfo(t *testing.T) {
	s, _ := newTestSupervisor(t)

	info := s.Info()
	if info.Found() || info.Status == "ok" || info.SuggestedPath == "" {
		t.Fatalf("info without binary = %+v", info)
	}

	installScript(t, s, `echo "Mihomo Meta v1.19.2 linux amd64 with go1.23"`)
	info = s.Info()
	if info.Status != "ok" || info.Version != "v1.19.2" {
		t.Fatalf("info = %+v", info)
	}
	if info.BinaryPath != filepath.Join(s.RuntimeDir(), "bin", "mihomo") {
		t.Fatalf("binary path = %s", info.BinaryPath)
	}
}

func TestManagedPids(t *testing.T) {
	s, table := newTestSupervisor(t)
	if pids := s.ManagedPids(); len(pids) != 0 {
		t.Fatalf("pids = %v", pids)
	}
	table.add(5151, managedCmdline(s))
	table.add(4242, managedCmdline(s))
	table.add(6161, "/opt/mihomo -f /elsewhere/runtime.yaml -d /elsewhere")

	if got := fmt.Sprint(s.ManagedPids()); got != "[4242 5151]" {
		t.Fatalf("pids = %s", got)
	}
	if table.recorded() != "" {
		t.Fatalf("listing must not signal: %s", table.recorded())
	}
}
