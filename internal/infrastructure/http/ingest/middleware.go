package ingest

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tablewise/insights/internal/infrastructure/config"
	"github.com/tablewise/insights/internal/infrastructure/monitoring"
	apperrors "github.com/tablewise/insights/pkg/errors"
)

type contextKey string

const tenantContextKey contextKey = "tenant_id"

// TenantFromContext returns the authenticated tenant ID, empty when the
// request was not authenticated
func TenantFromContext(ctx context.Context) string {
	tenantID, _ := ctx.Value(tenantContextKey).(string)
	return tenantID
}

// tenantClaims is the expected JWT claim set for ingest tokens
type tenantClaims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// Authenticator resolves the tenant identity of each request. With a JWT
// secret configured it requires a Bearer token carrying a tenant_id claim.
// Without one (development only) it falls back to the X-Tenant-ID header.
func Authenticator(cfg *config.Config, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, err := resolveTenant(cfg, r)
			if err != nil {
				logger.Debug("Authentication rejected", zap.Error(err))
				writeError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), tenantContextKey, tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolveTenant(cfg *config.Config, r *http.Request) (string, error) {
	if cfg.Auth.JWTSecret == "" {
		tenantID := r.Header.Get("X-Tenant-ID")
		if tenantID == "" {
			return "", apperrors.NewTenantUnknownError("")
		}
		return tenantID, nil
	}

	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", apperrors.NewUnauthorizedError("")
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	claims := &tenantClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.NewUnauthorizedError("unexpected signing method")
		}
		return []byte(cfg.Auth.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", apperrors.NewUnauthorizedError("invalid token")
	}
	if claims.TenantID == "" {
		return "", apperrors.NewTenantUnknownError("")
	}
	return claims.TenantID, nil
}

// RateLimiter enforces a per-tenant token bucket over all ingest routes.
// Buckets are created on first sight and pruned when idle.
type RateLimiter struct {
	rps    rate.Limit
	burst  int
	logger *zap.Logger

	mu      sync.Mutex
	buckets map[string]*tenantBucket
}

type tenantBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a per-tenant rate limiter
func NewRateLimiter(cfg *config.Config, logger *zap.Logger) *RateLimiter {
	rl := &RateLimiter{
		rps:     rate.Limit(cfg.RateLimit.RequestsPerSecond),
		burst:   cfg.RateLimit.BurstSize,
		logger:  logger,
		buckets: make(map[string]*tenantBucket),
	}
	go rl.pruneLoop()
	return rl
}

// Middleware returns the HTTP middleware enforcing the limit
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := TenantFromContext(r.Context())
		if !rl.allow(tenantID) {
			rl.logger.Warn("Rate limit exceeded", zap.String("tenant_id", tenantID))
			writeError(w, apperrors.New(apperrors.CodeTooManyRequests, "Rate limit exceeded", ""))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(tenantID string) bool {
	rl.mu.Lock()
	b, ok := rl.buckets[tenantID]
	if !ok {
		b = &tenantBucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[tenantID] = b
	}
	b.lastSeen = time.Now()
	rl.mu.Unlock()
	return b.limiter.Allow()
}

func (rl *RateLimiter) pruneLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-time.Hour)
		rl.mu.Lock()
		for id, b := range rl.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(rl.buckets, id)
			}
		}
		rl.mu.Unlock()
	}
}

// Tracing opens a server span per request. It runs after the
// authenticator so the span carries the tenant.
func Tracing(tracing *monitoring.TracingService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.StartSpan(r.Context(), r.Method+" "+r.URL.Path,
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
				attribute.String("tenant.id", TenantFromContext(r.Context())),
			)
			defer span.End()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Metrics records request counts and latencies per route pattern
func Metrics(collector *monitoring.MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = r.URL.Path
			}
			collector.RecordHTTPRequest(r.Method, pattern, sw.status, time.Since(start))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
