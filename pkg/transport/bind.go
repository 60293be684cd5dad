package transport

import (
	"fmt"
	"net"
)

// bindDialer makes d originate connections from iface, which is either a
// local IP address or an interface name.
func bindDialer(d *net.Dialer, iface string) error {
	if ip := net.ParseIP(iface); ip != nil {
		d.LocalAddr = &net.TCPAddr{IP: ip}
		return nil
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return fmt.Errorf("%w: interface %q: %v", ErrInvalidOption, iface, err)
	}
	return bindDevice(d, ifi)
}

// firstAddr returns the first unicast address of ifi.
func firstAddr(ifi *net.Interface) (net.IP, error) {
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok {
			return ipn.IP, nil
		}
	}
	return nil, fmt.Errorf("%w: interface %q has no address", ErrInvalidOption, ifi.Name)
}
