//go:build windows

package net

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/windows"
)

// listenControl sets SO_REUSEADDR on the mDNS socket before bind. Windows
// has no SO_REUSEPORT; its SO_REUSEADDR already lets multiple processes
// bind the same port (BSD SO_REUSEPORT semantics), which is what sharing
// 5353 with another mDNS stack needs.
func listenControl(_, _ string, c syscall.RawConn) error {
	var sockoptErr error
	err := c.Control(func(fd uintptr) {
		if err := windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
			sockoptErr = fmt.Errorf("set SO_REUSEADDR: %w", err)
		}
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}
	return sockoptErr
}
