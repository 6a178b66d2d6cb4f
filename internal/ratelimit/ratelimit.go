// ABOUTME: Fixed-window request limiting keyed by client
// ABOUTME: Defines the Limiter interface shared by the memory and Redis backends

package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"
)

// DefaultWindow is used when a caller passes a non-positive window.
const DefaultWindow = time.Minute

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Count     int       // requests seen in the current window, including this one
	Limit     int       // the limit the request was checked against
	WindowEnd time.Time // when the current window resets
}

// Remaining returns how many requests are left in the window.
func (d Decision) Remaining() int {
	if d.Count >= d.Limit {
		return 0
	}
	return d.Limit - d.Count
}

// Limiter counts requests per key in fixed windows.
type Limiter interface {
	// Allow records a request for key and reports whether it fits in limit per
	// window. A non-positive limit disables limiting.
	Allow(ctx context.Context, key string, limit int, window time.Duration) Decision
	Close() error
}

// remoteIP returns the host part of the request's remote address.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return host
}

// IPResolver finds the client address behind trusted reverse proxies.
// X-Forwarded-For is only believed when the connection itself comes from a
// trusted proxy; with no proxies configured it is ignored entirely.
type IPResolver struct {
	trusted []netip.Prefix
}

// NewIPResolver parses proxies, each a CIDR ("10.0.0.0/8") or a single address.
func NewIPResolver(proxies []string) (*IPResolver, error) {
	res := &IPResolver{}
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if strings.Contains(p, "/") {
			prefix, err := netip.ParsePrefix(p)
			if err != nil {
				return nil, fmt.Errorf("parsing trusted proxy %q: %w", p, err)
			}
			res.trusted = append(res.trusted, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(p)
		if err != nil {
			return nil, fmt.Errorf("parsing trusted proxy %q: %w", p, err)
		}
		addr = addr.Unmap()
		res.trusted = append(res.trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return res, nil
}

// ClientIP returns the rightmost untrusted X-Forwarded-For hop when the request
// arrived through a trusted proxy, and the remote address otherwise. Hops left
// of the first untrusted one are client supplied and never used.
func (res *IPResolver) ClientIP(r *http.Request) string {
	remote := remoteIP(r)
	if res == nil || len(res.trusted) == 0 || !res.isTrusted(remote) {
		return remote
	}

	var hops []string
	for _, header := range r.Header.Values("X-Forwarded-For") {
		for _, hop := range strings.Split(header, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	for i := len(hops) - 1; i >= 0; i-- {
		if !res.isTrusted(hops[i]) {
			return hops[i]
		}
	}
	if len(hops) > 0 {
		return hops[0]
	}
	return remote
}

func (res *IPResolver) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range res.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
