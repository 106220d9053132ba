package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HammerMeetNail/livebingo/internal/logging"
)

// Evaler runs a Lua script; *redis.Client satisfies it.
type Evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RateLimiter counts requests per key in fixed windows held in redis.
type RateLimiter struct {
	redis  Evaler
	limit  int64
	window time.Duration
	prefix string
	keyFn  func(r *http.Request) string
	// failOpen lets requests through while redis is failing; otherwise
	// they get 503 store_unavailable.
	failOpen bool
}

func NewRateLimiter(redis Evaler, limit int64, window time.Duration, prefix string, keyFn func(r *http.Request) string, failOpen bool) *RateLimiter {
	return &RateLimiter{
		redis:    redis,
		limit:    limit,
		window:   window,
		prefix:   prefix,
		keyFn:    keyFn,
		failOpen: failOpen,
	}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.redis == nil || rl.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		keySuffix := ""
		if rl.keyFn != nil {
			keySuffix = rl.keyFn(r)
		}
		if keySuffix == "" {
			// Fallback to IP if key function returns empty string
			keySuffix = GetClientIP(r)
		}

		key := fmt.Sprintf("%s%s", rl.prefix, keySuffix)
		ctx := r.Context()

		ttlSeconds := int64(rl.window.Seconds())
		result, err := rl.redis.Eval(ctx, rateLimitScript, []string{key}, ttlSeconds).Result()
		if err != nil {
			logging.Error("Rate limit Redis error", map[string]interface{}{"error": err.Error(), "prefix": rl.prefix})
			rl.unavailable(w, r, next)
			return
		}

		count, ttl, ok := parseWindow(result)
		if !ok {
			logging.Error("Rate limit Redis script returned unexpected result", map[string]interface{}{"type": fmt.Sprintf("%T", result)})
			rl.unavailable(w, r, next)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(rl.limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(max(rl.limit-count, 0), 10))
		if count > rl.limit {
			if ttl <= 0 {
				ttl = ttlSeconds
			}
			w.Header().Set("Retry-After", strconv.FormatInt(ttl, 10))
			writeCodedError(w, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) unavailable(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if rl.failOpen {
		next.ServeHTTP(w, r)
		return
	}
	writeCodedError(w, http.StatusServiceUnavailable, "store_unavailable", "Rate limiting temporarily unavailable")
}

// rateLimitScript increments the window counter, starts its expiry on the
// first hit and returns {count, seconds left in the window}.
const rateLimitScript = `
	local current = redis.call("INCR", KEYS[1])
	if current == 1 then
		redis.call("EXPIRE", KEYS[1], ARGV[1])
	end
	return {current, redis.call("TTL", KEYS[1])}
`

func parseWindow(result interface{}) (count, ttl int64, ok bool) {
	values, isSlice := result.([]interface{})
	if !isSlice || len(values) != 2 {
		return 0, 0, false
	}
	count, ok = values[0].(int64)
	if !ok {
		return 0, 0, false
	}
	ttl, ok = values[1].(int64)
	return count, ttl, ok
}

// IdentityKey limits per caller identity. Callers whose identity was minted
// for this request are keyed by client IP.
func IdentityKey(r *http.Request) string {
	if IdentityMinted(r.Context()) {
		return ""
	}
	return IdentityFromContext(r.Context())
}

func writeCodedError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}

// GetClientIP extracts the client IP from the request, respecting X-Forwarded-For
func GetClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (set by Cloudflare/proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For can contain multiple IPs; the first one is the client
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fall back to RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
