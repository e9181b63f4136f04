package kernel

import (
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessInfo 进程列表中的一项
type ProcessInfo struct {
	Pid     int
	Cmdline string
}

// ProcessTable 操作系统进程表的查询与终止能力，用于回收上次运行遗留的内核进程
type ProcessTable interface {
	// List 列出所有可读取命令行的进程
	List() ([]ProcessInfo, error)
	// Cmdline 读取指定进程的命令行
	Cmdline(pid int) (string, error)
	// Exists 进程是否仍然存在
	Exists(pid int) bool
	// Signal 请求进程退出，force 为 true 时强制结束
	Signal(pid int, force bool) error
}

// systemProcessTable 基于 gopsutil 的进程表
type systemProcessTable struct{}

// NewSystemProcessTable 返回当前系统的进程表
func NewSystemProcessTable() ProcessTable {
	return systemProcessTable{}
}

func (systemProcessTable) List() ([]ProcessInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}
	infos := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		cmdline, err := p.Cmdline()
		if err != nil || cmdline == "" {
			continue
		}
		infos = append(infos, ProcessInfo{Pid: int(p.Pid), Cmdline: cmdline})
	}
	return infos, nil
}

func (systemProcessTable) Cmdline(pid int) (string, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", err
	}
	return p.Cmdline()
}

func (systemProcessTable) Exists(pid int) bool {
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

func (systemProcessTable) Signal(pid int, force bool) error {
	return signalProcess(pid, force)
}
