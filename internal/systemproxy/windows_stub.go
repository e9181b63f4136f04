//go:build !windows
// +build !windows

package systemproxy

// newWindowsProxy 非 Windows 平台不会走到这里
func newWindowsProxy() PlatformProxy {
	return newUnsupportedProxy("windows")
}
