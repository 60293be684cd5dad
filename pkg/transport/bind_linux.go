//go:build linux

package transport

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// bindDevice binds sockets to the device with SO_BINDTODEVICE so traffic
// leaves through ifi whatever the routing table says.
func bindDevice(d *net.Dialer, ifi *net.Interface) error {
	name := ifi.Name
	d.Control = func(_, _ string, c syscall.RawConn) error {
		var serr error
		err := c.Control(func(fd uintptr) {
			serr = unix.SetsockoptString(int(fd), unix.SOL_SOCKET, unix.SO_BINDTODEVICE, name)
		})
		if err != nil {
			return err
		}
		return serr
	}
	return nil
}
