package util

import (
	"errors"
	"net"
	"net/netip"
)

// ErrNoIPv4Address is returned when the host has no usable IPv4 address.
var ErrNoIPv4Address = errors.New("no IPv4 address found")

// OutboundIPv4 returns the preferred outbound IPv4 address of this machine.
// It falls back to the first non-loopback interface address when no route
// to the public internet exists.
func OutboundIPv4() (netip.Addr, error) {
	// Dialing UDP does not send packets, it only selects the interface.
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err == nil {
		defer conn.Close()
		if udp, ok := conn.LocalAddr().(*net.UDPAddr); ok {
			if addr, ok := netip.AddrFromSlice(udp.IP); ok && addr.Unmap().Is4() {
				return addr.Unmap(), nil
			}
		}
	}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return netip.Addr{}, err
	}
	return firstInterfaceIPv4(addrs)
}

func firstInterfaceIPv4(addrs []net.Addr) (netip.Addr, error) {
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if addr, ok := netip.AddrFromSlice(ipnet.IP); ok && addr.Unmap().Is4() {
			return addr.Unmap(), nil
		}
	}
	return netip.Addr{}, ErrNoIPv4Address
}
