package config

import (
	"net"
	"strings"
)

// cgnatBlock is 100.64.0.0/10. Cloudflare WARP, Tailscale and carrier
// grade NATs hand out addresses from it.
var cgnatBlock = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// vpnNameHints are interface name fragments used by tunnels and virtual adapters.
var vpnNameHints = []string{"tun", "tap", "wg", "ppp", "warp"}

// netInterface is the part of a network interface the relay heuristic looks at.
type netInterface struct {
	Name     string
	Up       bool
	Loopback bool
	IPs      []net.IP
}

// ShouldForceRelay checks if the system is likely behind a restrictive VPN or CGNAT
// and returns true if we should force TURN usage.
func ShouldForceRelay() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	var candidates []netInterface
	for _, iface := range ifaces {
		ni := netInterface{
			Name:     iface.Name,
			Up:       iface.Flags&net.FlagUp != 0,
			Loopback: iface.Flags&net.FlagLoopback != 0,
		}
		if addrs, err := iface.Addrs(); err == nil {
			for _, addr := range addrs {
				switch v := addr.(type) {
				case *net.IPNet:
					ni.IPs = append(ni.IPs, v.IP)
				case *net.IPAddr:
					ni.IPs = append(ni.IPs, v.IP)
				}
			}
		}
		candidates = append(candidates, ni)
	}
	return looksRelayOnly(candidates)
}

func looksRelayOnly(ifaces []netInterface) bool {
	for _, iface := range ifaces {
		// Ignore loopback and down interfaces
		if !iface.Up || iface.Loopback {
			continue
		}

		name := strings.ToLower(iface.Name)
		for _, hint := range vpnNameHints {
			if strings.Contains(name, hint) {
				return true
			}
		}

		for _, ip := range iface.IPs {
			if cgnatBlock.Contains(ip) {
				return true
			}
		}
	}
	return false
}
