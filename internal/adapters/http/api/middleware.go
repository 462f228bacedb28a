package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/geocapture/pkg/metrics"
)

// HTTP status code constants.
const (
	statusBadRequest      = 400
	statusNotFound        = 404
	statusTooLarge        = 413
	statusTooManyRequests = 429
	statusInternalError   = 500
)

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterSweepEvery = 1024
)

// MetricsMiddleware wraps HTTP handlers to record Prometheus metrics.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		durationMs := float64(time.Since(start).Microseconds()) / 1000.0
		statusCodeStr := strconv.Itoa(wrapped.statusCode)

		metrics.RecordHTTPRequest(endpoint, r.Method, statusCodeStr)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, statusCodeStr, durationMs)

		if wrapped.statusCode >= statusBadRequest {
			metrics.RecordErrorByComponent("http_"+endpoint, getErrorType(wrapped.statusCode))
		}
	}
}

// getErrorType returns a standardized error type based on HTTP status code.
func getErrorType(statusCode int) string {
	switch {
	case statusCode >= statusInternalError:
		return "server_error"
	case statusCode == statusTooManyRequests:
		return "rate_limit"
	case statusCode == statusTooLarge:
		return "too_large"
	case statusCode == statusNotFound:
		return "not_found"
	case statusCode >= statusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("failed to write response: %w", err)
	}
	return n, nil
}

type contextKeyOrigin struct{}

// OriginResolver decides which address a request is recorded under. The
// peer address is used unless the peer is a trusted proxy, in which case
// the forwarding headers are honored.
type OriginResolver struct {
	trusted []netip.Prefix
}

// NewOriginResolver trusts forwarding headers only from peers inside one of
// the given prefixes.
func NewOriginResolver(trusted ...netip.Prefix) *OriginResolver {
	return &OriginResolver{trusted: trusted}
}

// ParseTrustedProxies parses CIDRs or bare addresses into prefixes.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if p, err := netip.ParsePrefix(raw); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return out, nil
}

func (o *OriginResolver) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range o.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolve returns the origin of r. Behind trusted proxies it is the
// right-most X-Forwarded-For hop that is not itself trusted, then X-Real-IP.
func (o *OriginResolver) Resolve(r *http.Request) string {
	peer := ClientIPFromRequest(r)
	if o == nil || !o.isTrusted(peer) {
		return peer
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if _, err := netip.ParseAddr(hop); err != nil {
				break
			}
			if !o.isTrusted(hop) || i == 0 {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}
	return peer
}

// Middleware stores the resolved origin in the request context.
func (o *OriginResolver) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), contextKeyOrigin{}, o.Resolve(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// OriginFromContext returns the origin stored by OriginResolver, or "".
func OriginFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(contextKeyOrigin{}).(string); ok {
		return ip
	}
	return ""
}

// ClientIPFromRequest returns the peer address of r without its port.
func ClientIPFromRequest(r *http.Request) string {
	if addr := r.RemoteAddr; addr != "" {
		if host, _, err := net.SplitHostPort(addr); err == nil {
			return host
		}
		return addr
	}
	return "unknown"
}

// OriginLimiter keeps one token bucket per origin address.
type OriginLimiter struct {
	mu      sync.Mutex
	buckets map[string]*originBucket
	limit   rate.Limit
	burst   int
	calls   int
	now     func() time.Time
}

type originBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewOriginLimiter allows rps requests per second per origin with burst.
func NewOriginLimiter(rps float64, burst int) *OriginLimiter {
	return &OriginLimiter{
		buckets: make(map[string]*originBucket),
		limit:   rate.Limit(rps),
		burst:   max(burst, 1),
		now:     time.Now,
	}
}

// Allow reports whether origin may make a request now.
func (l *OriginLimiter) Allow(origin string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.calls++
	if l.calls%limiterSweepEvery == 0 {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > limiterIdleTTL {
				delete(l.buckets, k)
			}
		}
	}

	b, ok := l.buckets[origin]
	if !ok {
		b = &originBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[origin] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Middleware rejects requests over the origin's budget with 429. It expects
// OriginResolver.Middleware to run first.
func (l *OriginLimiter) Middleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := OriginFromContext(r.Context())
		if origin == "" {
			origin = ClientIPFromRequest(r)
		}
		if !l.Allow(origin) {
			metrics.RecordRateLimited(endpoint)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", wrapKind("api."+endpoint, ErrRateLimited, nil))
			return
		}
		next.ServeHTTP(w, r)
	}
}
