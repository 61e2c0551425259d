// realip.go -- client address resolution behind reverse proxies.
package web

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

var (
	xForwardedFor = http.CanonicalHeaderKey("X-Forwarded-For")
	xRealIP       = http.CanonicalHeaderKey("X-Real-IP")
)

// ParseTrustedProxies parses a comma-separated list of CIDRs or bare addresses.
// A bare address is treated as a single-host prefix. Empty input yields no proxies.
func ParseTrustedProxies(raw string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "/") {
			p, err := netip.ParsePrefix(part)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", part, err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(part)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", part, err)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

// TrustedRealIP rewrites r.RemoteAddr from X-Forwarded-For or X-Real-IP, but only when
// the direct peer is one of trusted. Requests from anyone else keep their socket address,
// so a client cannot pick the address that rate limits and IP blocks are keyed on.
//
// X-Forwarded-For is walked right to left and the first hop outside trusted wins.
func TrustedRealIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(trusted) > 0 {
				if peer, ok := parseHost(r.RemoteAddr); ok && isTrusted(trusted, peer) {
					if ip, ok := forwardedClient(r, trusted); ok {
						r.RemoteAddr = ip.String()
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forwardedClient(r *http.Request, trusted []netip.Prefix) (netip.Addr, bool) {
	if xff := r.Header.Values(xForwardedFor); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			ip, ok := parseHost(strings.TrimSpace(hops[i]))
			if !ok {
				// Anything left of a garbled hop is unverifiable.
				return netip.Addr{}, false
			}
			if !isTrusted(trusted, ip) {
				return ip, true
			}
		}
		return netip.Addr{}, false
	}
	if xrip := r.Header.Get(xRealIP); xrip != "" {
		return parseHost(strings.TrimSpace(xrip))
	}
	return netip.Addr{}, false
}

// parseHost accepts "ip" or "ip:port" / "[ip]:port".
func parseHost(s string) (netip.Addr, bool) {
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}

func isTrusted(trusted []netip.Prefix, a netip.Addr) bool {
	for _, p := range trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
