package dcom

import (
	"context"
	"fmt"
	"net"
	"strings"
)

// resolveHost returns a dialable IP for server. IP literals, including
// bracketed IPv6, are returned without a lookup.
func resolveHost(ctx context.Context, resolver *net.Resolver, server string) (string, error) {
	host := strings.TrimSpace(server)
	host = strings.TrimPrefix(host, `\\`)
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")

	if host == "" {
		return "", fmt.Errorf("%w: server name is empty", ErrUnknownHost)
	}

	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}

	// Zoned IPv6 literals are not understood by ParseIP.
	if i := strings.IndexByte(host, '%'); i > 0 && net.ParseIP(host[:i]) != nil {
		return host, nil
	}

	if resolver == nil {
		resolver = net.DefaultResolver
	}

	addrs, err := resolver.LookupHost(ctx, host)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrUnknownHost, host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("%w: %s: no addresses returned", ErrUnknownHost, host)
	}

	diagnostics().Trace("resolved host", "host", host, "addresses", addrs)

	return addrs[0], nil
}
