package clientip

import (
	"net"
	"net/http"
	"strings"
)

// Proxy headers in priority order. The most reliable sources come first:
// CDN-injected headers cannot be spoofed past the CDN itself, while
// X-Forwarded-For may carry client-supplied noise in its tail.
var headerPriority = []string{
	"CF-Connecting-IP",
	"DO-Connecting-IP",
	"X-Forwarded-For",
	"X-Real-IP",
}

// GetIP extracts the real client IP address from the request.
//
// Headers are checked in priority order (CF-Connecting-IP, DO-Connecting-IP,
// X-Forwarded-For, X-Real-IP) before falling back to RemoteAddr. For
// X-Forwarded-For the leftmost entry is taken, which is the original client
// in a well-behaved proxy chain. Every candidate is validated and normalized
// with net.ParseIP; if nothing validates, the raw RemoteAddr host is
// returned as a last resort.
func GetIP(r *http.Request) string {
	if r == nil {
		return ""
	}

	for _, header := range headerPriority {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		// X-Forwarded-For may contain "client, proxy1, proxy2".
		if idx := strings.IndexByte(value, ','); idx >= 0 {
			value = value[:idx]
		}
		if ip := normalize(value); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := normalize(host); ip != "" {
		return ip
	}
	return host
}

// normalize validates the candidate and returns its canonical form,
// or "" when the candidate is not a usable client address.
func normalize(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil || ip.IsUnspecified() {
		return ""
	}
	return ip.String()
}
