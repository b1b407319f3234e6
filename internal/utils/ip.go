package utils

import (
	"net"
)

// IsAllowedIP reports whether ip belongs to one of allowedCIDRs.
// An empty list allows every address; malformed entries match nothing.
func IsAllowedIP(ip string, allowedCIDRs []string) bool {
	if len(allowedCIDRs) == 0 {
		return true
	}

	addr := net.ParseIP(ip)
	if addr == nil {
		return false
	}

	for _, cidr := range allowedCIDRs {
		if _, block, err := net.ParseCIDR(cidr); err == nil && block.Contains(addr) {
			return true
		}
	}
	return false
}
