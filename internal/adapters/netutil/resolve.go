package netutil

import (
	"context"
	"fmt"
	"net"
)

var lookupIPAddr = net.DefaultResolver.LookupIPAddr

// ResolveIPv4 returns the first IPv4 address host resolves to. Some queue
// clients misbehave when handed a hostname that also resolves to IPv6, so
// callers dial the returned literal instead.
func ResolveIPv4(ctx context.Context, host string) (string, error) {
	addrs, err := lookupIPAddr(ctx, host)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", host, err)
	}

	for _, addr := range addrs {
		if ip4 := addr.IP.To4(); ip4 != nil {
			return ip4.String(), nil
		}
	}

	return "", fmt.Errorf("no IPv4 address found for %s", host)
}
