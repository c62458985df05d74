package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/inkwell/contractflow/internal/logger"
	"github.com/inkwell/contractflow/internal/usecase"
)

const (
	defaultCorrelationHeader = "X-Correlation-ID"
	userIDHeader             = "X-User-ID"
)

type userIDKey struct{}

// TokenValidator resolves a bearer token to the user it was issued to.
type TokenValidator interface {
	Validate(token string) (string, error)
}

// UserID returns the authenticated caller stored by the auth middleware.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

func withUserID(ctx context.Context, userID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey{}, userID)
	return logger.WithUserID(ctx, userID)
}

// correlationMiddleware ensures every request and response carries a correlation ID
func correlationMiddleware(header string) mux.MiddlewareFunc {
	if header == "" {
		header = defaultCorrelationHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cid := r.Header.Get(header)
			if cid == "" {
				cid = generateCorrelationID()
			}
			w.Header().Set(header, cid)
			ctx := logger.WithCorrelationID(r.Context(), cid)
			ctx = usecase.WithClientIP(ctx, clientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func generateCorrelationID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
}

// corsMiddleware allows the configured origins. "*" allows any origin.
func corsMiddleware(allowedOrigins []string, allowCredentials bool) mux.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	wildcard := false
	for _, o := range allowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			wildcard = true
		}
		if o != "" {
			allowed[o] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Add("Vary", "Origin")

			if origin != "" {
				if _, ok := allowed[origin]; ok || wildcard {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					if allowCredentials {
						w.Header().Set("Access-Control-Allow-Credentials", "true")
					}
					w.Header().Set("Access-Control-Expose-Headers", defaultCorrelationHeader)
				}
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
				if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
				} else {
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Correlation-ID, X-User-ID")
				}
				w.Header().Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func recoveryMiddleware(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error(r.Context(), "Panic recovered", fmt.Errorf("%v", rec), map[string]interface{}{
						"method": r.Method,
						"path":   r.URL.Path,
					})
					writeError(w, http.StatusInternalServerError, codeInternal, "Internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// httpMetrics instruments requests by route template, so ids do not explode cardinality.
type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newHTTPMetrics(reg prometheus.Registerer) (*httpMetrics, error) {
	m := &httpMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contractflow",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "contractflow",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// loggingMiddleware records status and latency of every request
func loggingMiddleware(log logger.Logger, metrics *httpMetrics, enabled bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			route := "unmatched"
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}

			if metrics != nil {
				metrics.requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
				metrics.duration.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())
			}

			if enabled {
				log.Info(r.Context(), "HTTP request", map[string]interface{}{
					"method":      r.Method,
					"route":       route,
					"status":      rec.status,
					"duration_ms": elapsed.Milliseconds(),
					"remote_addr": clientIP(r),
				})
			}
		})
	}
}

// authMiddleware resolves the acting user from a bearer token, or from the
// X-User-ID header when allowUserHeader is set for development.
func authMiddleware(tokens TokenValidator, allowUserHeader bool, log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
					writeError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid authorization header format")
					return
				}
				if tokens == nil {
					writeError(w, http.StatusUnauthorized, codeUnauthorized, "Token authentication is not configured")
					return
				}
				userID, err := tokens.Validate(parts[1])
				if err != nil {
					logger.LogSecurityEvent(r.Context(), log, "invalid_token", "MEDIUM", map[string]interface{}{
						"path":  r.URL.Path,
						"ip":    clientIP(r),
						"error": err.Error(),
					})
					writeError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid or expired token")
					return
				}
				next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
				return
			}

			if allowUserHeader {
				if userID := strings.TrimSpace(r.Header.Get(userIDHeader)); userID != "" {
					next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
					return
				}
			}

			writeError(w, http.StatusUnauthorized, codeUnauthorized, "Authorization header required")
		})
	}
}

// clientIP extracts the caller's address, preferring proxy headers
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
