//go:build !windows
// +build !windows

package startup

func newRunKey() Manager {
	return unsupportedManager{}
}
