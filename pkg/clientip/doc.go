// Package clientip resolves the real client IP of an HTTP request, which
// is what the rate limiter keys anonymous traffic on and what the login
// tracker records alongside failed attempts.
//
// GetIP consults proxy headers in priority order — CF-Connecting-IP,
// DO-Connecting-IP, X-Forwarded-For (leftmost entry), X-Real-IP — and
// falls back to RemoteAddr. Every candidate is validated with net.ParseIP
// and normalized; unspecified addresses (0.0.0.0, ::) and malformed
// entries are skipped rather than returned. The function never fails:
// when nothing validates it returns the RemoteAddr host as-is.
//
// The header chain is only trustworthy when the service actually sits
// behind a proxy that sets those headers; a direct-exposed deployment
// should rely on RemoteAddr alone.
package clientip
