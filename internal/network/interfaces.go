// Package network selects the interfaces mDNS multicast should run on.
package network

import (
	"net"
	"strings"
)

// DefaultInterfaces returns the interfaces worth joining the mDNS group
// on: up, multicast-capable, and not loopback, a VPN tunnel, or Docker
// plumbing. mDNS is link-local by design, so tunnels that span networks
// only leak traffic somewhere it cannot be answered.
//
// Callers wanting different behavior pass an explicit list through
// WithInterfaces/WithInterfaceFilter instead.
func DefaultInterfaces() ([]net.Interface, error) {
	allIfaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	filtered := make([]net.Interface, 0, len(allIfaces))
	for _, iface := range allIfaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if isVPN(iface.Name) || isDocker(iface.Name) {
			continue
		}
		filtered = append(filtered, iface)
	}

	return filtered, nil
}

// isVPN matches the naming conventions of the common tunnel drivers:
// utun (macOS), tun (OpenVPN and friends), ppp, wg/wireguard, tailscale.
func isVPN(name string) bool {
	for _, prefix := range []string{"utun", "tun", "ppp", "wg", "tailscale", "wireguard"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// isDocker matches the default bridge, veth container pairs, and custom
// bridge networks.
func isDocker(name string) bool {
	if name == "docker0" {
		return true
	}
	return strings.HasPrefix(name, "veth") || strings.HasPrefix(name, "br-")
}
