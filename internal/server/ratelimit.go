package server

import (
	"net"
	"net/http"
	"regexp"
	"strings"
)

// loopback addresses are always allowed to create resources.
var loopback = []string{"::1", "127.0.0.1", "localhost"}

// Whitelist matches client IPs against literal addresses or patterns where
// '*' stands for a run of digits, e.g. "192.168.*.*".
type Whitelist struct {
	rules []*regexp.Regexp
}

// NewWhitelist compiles the given patterns.
func NewWhitelist(patterns []string) (*Whitelist, error) {
	w := &Whitelist{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		expr := strings.ReplaceAll(regexp.QuoteMeta(p), `\*`, `\d+`)
		re, err := regexp.Compile("^(" + expr + ")$")
		if err != nil {
			return nil, err
		}
		w.rules = append(w.rules, re)
	}
	return w, nil
}

// Allows reports whether ip matches any rule. An empty whitelist allows
// nobody.
func (w *Whitelist) Allows(ip string) bool {
	if ip == "" {
		return false
	}
	ip = normalizeIP(ip)
	for _, re := range w.rules {
		if re.MatchString(ip) {
			return true
		}
	}
	return false
}

// normalizeIP unwraps IPv4-mapped IPv6 addresses.
func normalizeIP(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip
	}
	if v4 := parsed.To4(); v4 != nil {
		return v4.String()
	}
	return parsed.String()
}

// allowCreate applies the per-IP create limit.
func (s *Server) allowCreate(ip string) bool {
	if s.limiter == nil {
		return true
	}
	return s.limiter.Allow(ip)
}

// getIP extracts the client IP from a request, respecting X-Forwarded-For
// for proxied deployments.
func getIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	return peerIP(r)
}

// peerIP is the address of the connected peer. Whitelist checks use it
// because X-Forwarded-For is client controlled.
func peerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
