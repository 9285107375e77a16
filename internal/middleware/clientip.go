package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies lists the peers whose X-Forwarded-For and X-Real-IP headers
// are believed. A nil or empty set trusts nobody, so the socket peer is used.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// ParseTrustedProxies accepts CIDR ranges or bare addresses.
func ParseTrustedProxies(entries []string) (*TrustedProxies, error) {
	tp := &TrustedProxies{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
			}
			tp.prefixes = append(tp.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		tp.prefixes = append(tp.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return tp, nil
}

func (tp *TrustedProxies) trusts(ip string) bool {
	if tp == nil || len(tp.prefixes) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range tp.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the address of the client that made the request. Forwarding
// headers are consulted only when the direct peer is a trusted proxy.
func (tp *TrustedProxies) ClientIP(r *http.Request) string {
	peer := remoteIP(r)
	if !tp.trusts(peer) {
		return peer
	}

	// X-Forwarded-For: client, proxy1, proxy2
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if clientIP := strings.TrimSpace(first); clientIP != "" {
			return clientIP
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	return peer
}

func remoteIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
