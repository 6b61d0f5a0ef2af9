package icsproxy

import (
	"net/netip"
	"strings"
)

// blockedPrefixes is the private, loopback, link-local and unique-local
// space a feed URL may never reach. 0.0.0.0/8 and :: are included because
// connecting to them lands on the local host.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// IsBlockedAddr reports whether addr falls in a forbidden range. IPv4-mapped
// IPv6 addresses are checked as IPv4. Prefix.Contains never matches a zoned
// address, so the zone is dropped first.
func IsBlockedAddr(addr netip.Addr) bool {
	addr = addr.WithZone("").Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// isLocalhostName matches "localhost" and its subdomains, with or without a
// trailing dot.
func isLocalhostName(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	return host == "localhost" || strings.HasSuffix(host, ".localhost")
}
