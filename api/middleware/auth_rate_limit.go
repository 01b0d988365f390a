package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/parcelhive/parcelhive-backend/api/responses"
	pkgerrors "github.com/parcelhive/parcelhive-backend/pkg/errors"
	"github.com/parcelhive/parcelhive-backend/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// AuthRateLimitPolicy caps how often one caller may hit an auth surface.
// Login, registration and OTP verification each carry their own policy, so
// a shipper hammering unlock codes cannot burn the login budget of the same
// address. A policy with no window or no limits is disabled.
type AuthRateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	emailLimit int
}

// NewAuthRateLimitPolicy builds a named policy with the supplied window and
// per-IP / per-email limits. A zero limit disables that dimension.
func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	return AuthRateLimitPolicy{
		name:       strings.ToLower(strings.TrimSpace(name)),
		window:     window,
		ipLimit:    ipLimit,
		emailLimit: emailLimit,
	}
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.emailLimit > 0)
}

func (p AuthRateLimitPolicy) normalizedName() string {
	if p.name == "" {
		return "auth"
	}
	return p.name
}

// counterKey names the Redis counter for one dimension of this policy.
func (p AuthRateLimitPolicy) counterKey(dimension, subject string) string {
	if subject == "" {
		return ""
	}
	return fmt.Sprintf("rl:%s:%s:%s", dimension, p.normalizedName(), subject)
}

// AuthRateLimit throttles an auth endpoint with sliding counters in Redis.
// The IP dimension is checked first because it needs no body; the email
// dimension buffers and restores the body so the handler still reads the
// original payload. Plain-text emails never reach Redis, only their hash.
func AuthRateLimit(policy AuthRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		limiter := authRateLimiter{policy: policy, store: store, logg: logg}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ip := clientIP(r)
			if ok := limiter.checkIP(ctx, w, ip); !ok {
				return
			}

			if policy.emailLimit > 0 {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))

				if ok := limiter.checkEmail(ctx, w, emailFromBody(body)); !ok {
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

type authRateLimiter struct {
	policy AuthRateLimitPolicy
	store  rateLimiterStore
	logg   *logger.Logger
}

// checkIP reports whether the request may proceed. When it returns false the
// response has already been written.
func (l authRateLimiter) checkIP(ctx context.Context, w http.ResponseWriter, ip string) bool {
	if l.policy.ipLimit <= 0 {
		return true
	}
	key := l.policy.counterKey("ip", ip)
	if key == "" {
		return true
	}

	count, err := l.store.IncrWithTTL(ctx, key, l.policy.window)
	if err != nil {
		responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
		return false
	}
	if count > int64(l.policy.ipLimit) {
		l.reject(ctx, w, "ip", map[string]any{"ip": ip, "attempts": count, "limit": l.policy.ipLimit})
		return false
	}
	return true
}

func (l authRateLimiter) checkEmail(ctx context.Context, w http.ResponseWriter, email string) bool {
	if email == "" {
		return true
	}
	hash := fingerprint(email)
	key := l.policy.counterKey("email", hash)

	count, err := l.store.IncrWithTTL(ctx, key, l.policy.window)
	if err != nil {
		responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
		return false
	}
	if count > int64(l.policy.emailLimit) {
		l.reject(ctx, w, "email", map[string]any{"email_hash": hash, "attempts": count, "limit": l.policy.emailLimit})
		return false
	}
	return true
}

func (l authRateLimiter) reject(ctx context.Context, w http.ResponseWriter, scope string, fields map[string]any) {
	if l.logg != nil {
		fields["scope"] = scope
		fields["policy"] = l.policy.normalizedName()
		fields["window_seconds"] = int(l.policy.window.Seconds())
		l.logg.Warn(l.logg.WithFields(ctx, fields), "auth.rate_limit.blocked")
	}
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
}

// clientIP prefers the forwarding headers set by the load balancer over the
// socket peer, which behind a proxy is always the proxy itself.
func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func emailFromBody(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(body.Email))
}

func fingerprint(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
