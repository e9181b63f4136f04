//go:build !windows
// +build !windows

package kernel

import (
	"os"

	"golang.org/x/sys/unix"
)

// terminateSignal 请求子进程正常退出的信号
var terminateSignal os.Signal = unix.SIGTERM

func signalProcess(pid int, force bool) error {
	if force {
		return unix.Kill(pid, unix.SIGKILL)
	}
	return unix.Kill(pid, unix.SIGTERM)
}
