package registry

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateServiceURL accepts https endpoints anywhere and plain http only on a
// loopback host, which covers a local Anvil node or a local sink.
func ValidateServiceURL(endpoint string) error {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return fmt.Errorf("parse url %q: %w", endpoint, err)
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return fmt.Errorf("url %q has no host", endpoint)
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	switch {
	case scheme == "https":
		return nil
	case scheme == "http" && IsLoopbackHost(parsed.Hostname()):
		return nil
	case scheme == "http":
		return fmt.Errorf("url %q must use https for non-loopback hosts", endpoint)
	default:
		return fmt.Errorf("url %q has unsupported scheme %q", endpoint, parsed.Scheme)
	}
}

func IsLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
