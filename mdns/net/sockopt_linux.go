//go:build linux

package net

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// listenControl sets SO_REUSEADDR and SO_REUSEPORT on the mDNS socket
// before bind, so this process can share port 5353 with Avahi or
// systemd-resolved. SO_REUSEPORT needs kernel 3.9+; on older kernels the
// setsockopt fails with ENOPROTOOPT and we continue with SO_REUSEADDR
// alone.
func listenControl(_, _ string, c syscall.RawConn) error {
	var sockoptErr error
	err := c.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			sockoptErr = fmt.Errorf("set SO_REUSEADDR: %w", err)
			return
		}
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil && err != unix.ENOPROTOOPT {
			sockoptErr = fmt.Errorf("set SO_REUSEPORT: %w", err)
		}
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}
	return sockoptErr
}
