//go:build windows
// +build windows

package kernel

import (
	"os"

	"golang.org/x/sys/windows"
)

// terminateSignal Windows 不支持 SIGTERM，直接结束进程
var terminateSignal os.Signal = os.Kill

func signalProcess(pid int, force bool) error {
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		return err
	}
	defer windows.CloseHandle(h)
	return windows.TerminateProcess(h, 1)
}
