// Package ipfilter restricts HTTP endpoints to a list of client networks.
package ipfilter

import (
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
)

// Filter matches client addresses against allowed prefixes
type Filter struct {
	prefixes []netip.Prefix
	logger   *slog.Logger
}

// New builds a filter from IPs and CIDRs. Invalid entries are logged and
// skipped. An empty list allows everyone.
func New(allowed []string, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	f := &Filter{logger: logger}

	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		prefix, err := parsePrefix(entry)
		if err != nil {
			logger.Warn("invalid entry in allowed_ips", "entry", entry, "error", err)
			continue
		}
		f.prefixes = append(f.prefixes, prefix)
	}

	return f
}

func parsePrefix(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		p, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Enabled reports whether any prefix is configured
func (f *Filter) Enabled() bool {
	return len(f.prefixes) > 0
}

// Count returns the number of allowed prefixes
func (f *Filter) Count() int {
	return len(f.prefixes)
}

// Allowed reports whether addr may pass. Always true for an empty filter.
func (f *Filter) Allowed(addr netip.Addr) bool {
	if !f.Enabled() {
		return true
	}
	addr = addr.Unmap()
	for _, p := range f.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// AllowedString parses s as an address or host:port and checks it
func (f *Filter) AllowedString(s string) bool {
	addr, ok := parseHost(s)
	if !ok {
		return false
	}
	return f.Allowed(addr)
}

func parseHost(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), true
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// ClientAddr extracts the client address, preferring X-Forwarded-For and
// X-Real-IP over RemoteAddr
func ClientAddr(r *http.Request) (netip.Addr, bool) {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if addr, ok := parseHost(first); ok {
			return addr, true
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, ok := parseHost(xri); ok {
			return addr, true
		}
	}
	return parseHost(r.RemoteAddr)
}

// HTTPMiddleware rejects requests from clients outside the allowed prefixes
func (f *Filter) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !f.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		addr, ok := ClientAddr(r)
		if !ok {
			f.logger.Warn("could not parse client address", "remote_addr", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if !f.Allowed(addr) {
			f.logger.Warn("access denied by IP filter", "ip", addr.String(), "path", r.URL.Path)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
