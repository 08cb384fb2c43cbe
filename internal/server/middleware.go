package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dgellow/launch-bridge/internal/cookie"
	"github.com/dgellow/launch-bridge/internal/crypto"
	jsonwriter "github.com/dgellow/launch-bridge/internal/json"
	"github.com/dgellow/launch-bridge/internal/log"
	"github.com/dgellow/launch-bridge/internal/session"
	"github.com/go-chi/chi/v5/middleware"
)

// CSRFHeader carries the CSRF cookie value on state-changing API requests
const CSRFHeader = "X-CSRF-Token"

// MiddlewareFunc is a function that wraps an http.Handler
type MiddlewareFunc func(http.Handler) http.Handler

// NewCORSMiddleware adds CORS headers to responses
func NewCORSMiddleware(allowedOrigins []string) MiddlewareFunc {
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedMap[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Credentialed requests are only allowed from listed origins
			if origin != "" && allowedMap[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			} else if len(allowedOrigins) == 0 {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Cache-Control, "+CSRFHeader)
			w.Header().Set("Access-Control-Max-Age", "3600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriterDelegator wraps http.ResponseWriter to capture status and bytes written
// while properly delegating all optional interfaces through Unwrap
type responseWriterDelegator struct {
	http.ResponseWriter
	status      int
	written     int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriterDelegator {
	return &responseWriterDelegator{
		ResponseWriter: w,
		status:         http.StatusOK,
	}
}

func (r *responseWriterDelegator) Status() int {
	return r.status
}

func (r *responseWriterDelegator) BytesWritten() int {
	return r.written
}

func (r *responseWriterDelegator) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseWriterDelegator) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(b)
	r.written += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController
func (r *responseWriterDelegator) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Flush implements http.Flusher, needed by the notification stream
func (r *responseWriterDelegator) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

var _ http.ResponseWriter = (*responseWriterDelegator)(nil)
var _ http.Flusher = (*responseWriterDelegator)(nil)

// NewLoggerMiddleware logs one line per request
func NewLoggerMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			// The query string is never logged: handoff URLs carry tokens in it
			fields := map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"bytes":       wrapped.BytesWritten(),
				"remote_addr": r.RemoteAddr,
			}
			if reqID := middleware.GetReqID(r.Context()); reqID != "" {
				fields["request_id"] = reqID
			}

			log.LogInfoWithFields(prefix, "request", fields)
		})
	}
}

// NewRecoverMiddleware recovers from panics
func NewRecoverMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Logf("<%s> Recovered from panic: %v", prefix, err)
					jsonwriter.WriteInternalServerError(w, "Internal Server Error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type sessionContextKey struct{}

// WithSession returns a copy of ctx carrying the dashboard session
func WithSession(ctx context.Context, sess session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext returns the session set by the session middleware
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(session.Session)
	if !ok {
		return nil, false
	}
	return &sess, true
}

// NewSessionMiddleware requires a valid encrypted session cookie. Requests without
// one get a 401 JSON response; the dashboard then starts the login flow.
func NewSessionMiddleware(sessionEncryptor crypto.Encryptor, jar cookie.Jar) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionValue, err := cookie.GetSession(r)
			if err != nil {
				jsonwriter.WriteUnauthorized(w, "Authentication required")
				return
			}

			decrypted, err := sessionEncryptor.Decrypt(sessionValue)
			if err != nil {
				log.LogDebug("Invalid session cookie: %v", err)
				jar.ClearSession(w)
				jsonwriter.WriteUnauthorized(w, "Invalid session")
				return
			}

			var sessionData session.BrowserCookie
			if err := json.NewDecoder(strings.NewReader(decrypted)).Decode(&sessionData); err != nil {
				jar.ClearSession(w)
				jsonwriter.WriteUnauthorized(w, "Invalid session")
				return
			}

			if sessionData.IsExpired() || !sessionData.Session.Loaded() {
				log.LogDebugWithFields("session", "Session expired", map[string]any{
					"user_id": sessionData.Session.UserID,
				})
				jar.ClearSession(w)
				jsonwriter.WriteUnauthorized(w, "Session expired")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sessionData.Session)))
		})
	}
}

// NewCSRFMiddleware rejects state-changing requests whose CSRF header does not match
// the CSRF cookie or carries an invalid signature
func NewCSRFMiddleware(csrf crypto.CSRFProtection) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			cookieValue, _ := cookie.GetCSRF(r)
			if err := csrf.Check(cookieValue, r.Header.Get(CSRFHeader)); err != nil {
				log.LogWarnWithFields("csrf", "Rejected request with invalid CSRF token", map[string]any{
					"method": r.Method,
					"path":   r.URL.Path,
					"reason": err.Error(),
				})
				jsonwriter.WriteForbidden(w, "Invalid CSRF token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
