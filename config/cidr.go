package config

import "net"

// cidrContains reports whether ip falls within the CIDR block raw. A raw
// value that isn't a valid CIDR (e.g. a bare IP) is matched for exact
// equality instead.
func cidrContains(raw, ip string) bool {
	addr := net.ParseIP(ip)
	if addr == nil {
		return false
	}

	_, network, err := net.ParseCIDR(raw)
	if err != nil {
		return net.ParseIP(raw) != nil && net.ParseIP(raw).Equal(addr)
	}
	return network.Contains(addr)
}
