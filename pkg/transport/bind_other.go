//go:build !linux

package transport

import "net"

// bindDevice binds to the first address of ifi.
func bindDevice(d *net.Dialer, ifi *net.Interface) error {
	ip, err := firstAddr(ifi)
	if err != nil {
		return err
	}
	d.LocalAddr = &net.TCPAddr{IP: ip}
	return nil
}
