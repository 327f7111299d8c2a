// Package netinfo answers the ipaddr diagnostic event.
package netinfo

import (
	"fmt"
	"net"
)

// LocalIPv4s lists the host's non-loopback IPv4 addresses.
func LocalIPv4s() ([]string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("netinfo: list interfaces: %w", err)
	}

	var out []string
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil || ip.IsLoopback() {
			continue
		}
		out = append(out, ip.String())
	}
	return out, nil
}
