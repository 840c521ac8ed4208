package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/audit"
)

const maxUserAgentLen = 512

// AuditMeta records the caller's address, user agent and request id on the
// context so audit entries written by services can carry them.
func AuditMeta() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ua := r.UserAgent()
			if len(ua) > maxUserAgentLen {
				ua = ua[:maxUserAgentLen]
			}
			ctx := audit.WithRequestMeta(r.Context(), audit.RequestMeta{
				IPAddress: clientIP(r),
				UserAgent: ua,
				RequestID: RequestIDFromContext(r.Context()),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop set by the load balancer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
