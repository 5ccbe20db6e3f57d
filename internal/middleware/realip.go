package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ProxyPolicy lists the reverse proxies whose forwarding headers are
// believed. With no proxies configured the socket address is the client.
type ProxyPolicy struct {
	trusted []*net.IPNet
}

// NewProxyPolicy accepts CIDR ranges or bare addresses.
func NewProxyPolicy(entries []string) (*ProxyPolicy, error) {
	p := &ProxyPolicy{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("trusted proxy %q: invalid address", entry)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			entry = fmt.Sprintf("%s/%d", ip, bits)
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
		}
		p.trusted = append(p.trusted, network)
	}
	return p, nil
}

func (p *ProxyPolicy) Trusts(ip net.IP) bool {
	if p == nil || ip == nil {
		return false
	}
	for _, network := range p.trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// RealIP replaces RemoteAddr with the forwarded client address, but only
// for requests arriving from a trusted proxy. X-Forwarded-For is read right
// to left and the first hop that is not itself a trusted proxy wins.
func (p *ProxyPolicy) RealIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p.Trusts(net.ParseIP(ClientIP(r))) {
			if ip := p.forwardedFor(r); ip != "" {
				r.RemoteAddr = net.JoinHostPort(ip, "0")
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (p *ProxyPolicy) forwardedFor(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			ip := net.ParseIP(strings.TrimSpace(hops[i]))
			if ip == nil {
				return ""
			}
			if !p.Trusts(ip) {
				return ip.String()
			}
		}
		return ""
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	return ""
}
