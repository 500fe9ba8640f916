// Package api provides the REST API for pacparser.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/rennerdo30/pacparser/internal/accesscontrol"
	"github.com/rennerdo30/pacparser/internal/directive"
	"github.com/rennerdo30/pacparser/internal/logging"
	"github.com/rennerdo30/pacparser/internal/metrics"
	"github.com/rennerdo30/pacparser/internal/ratelimit"
)

// ProxyFinder evaluates the active PAC script.
type ProxyFinder interface {
	FindProxyForHost(rawURL, host string) ([]directive.Entry, error)
}

// API serves PAC lookups over HTTP.
type API struct {
	finder      ProxyFinder
	source      func() []byte
	token       string
	tokenHash   string
	access      *accesscontrol.Controller
	limiter     *ratelimit.KeyedLimiter
	timeout     time.Duration
	metrics     *metrics.Metrics
	metricsPath string
	logger      *slog.Logger
}

// Config holds API configuration.
type Config struct {
	Finder ProxyFinder
	// Source returns the PAC script served at /proxy.pac. Optional.
	Source func() []byte
	Token  string
	// TokenHash is a bcrypt hash of the token. It takes precedence over Token.
	TokenHash string
	// Access filters clients by address. Optional.
	Access *accesscontrol.Controller
	// Limiter rate limits lookups per client address. Optional.
	Limiter     *ratelimit.KeyedLimiter
	Timeout     time.Duration
	Metrics     *metrics.Metrics
	MetricsPath string
	Logger      *slog.Logger
}

// New creates a new API server.
func New(cfg Config) *API {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.WithComponent("api")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	return &API{
		finder:      cfg.Finder,
		source:      cfg.Source,
		token:       cfg.Token,
		tokenHash:   cfg.TokenHash,
		access:      cfg.Access,
		limiter:     cfg.Limiter,
		timeout:     timeout,
		metrics:     cfg.Metrics,
		metricsPath: metricsPath,
		logger:      logger,
	}
}

// Router returns the HTTP router for the API.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLogger)
	if a.access != nil && a.access.Enabled() {
		r.Use(a.accessMiddleware)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(a.timeout))

	// Unauthenticated probes
	r.Get("/api/v1/health", a.handleHealth)
	if a.metrics != nil {
		r.Handle(a.metricsPath, a.metrics.Handler())
	}
	if a.source != nil {
		r.Get("/proxy.pac", a.handlePAC)
		r.Get("/wpad.dat", a.handlePAC)
	}

	r.Group(func(r chi.Router) {
		if a.token != "" || a.tokenHash != "" {
			r.Use(a.authMiddleware)
		}
		if a.limiter != nil {
			r.Use(a.rateLimitMiddleware)
		}
		r.Get("/api/v1/version", a.handleVersion)
		r.Get("/api/v1/proxy", a.handleFindProxy)
		r.Post("/api/v1/decode", a.handleDecode)
	})

	return r
}

func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		token = strings.TrimPrefix(token, "Bearer ")

		if !a.validToken(token) {
			a.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *API) accessMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if result := a.access.CheckRemote(r.RemoteAddr); result.Action == accesscontrol.ActionDeny {
			logging.FromContext(r.Context()).Debug("Client rejected", "remote", r.RemoteAddr, "reason", result.Reason)
			a.writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if host, _, err := net.SplitHostPort(key); err == nil {
			key = host
		}
		if !a.limiter.Allow(key) {
			w.Header().Set("Retry-After", "1")
			a.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) validToken(token string) bool {
	if a.tokenHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(a.tokenHash), []byte(token)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) == 1
}

// requestLogger attaches a request scoped logger and records request metrics.
func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := a.logger.With("request_id", middleware.GetReqID(r.Context()))
		r = r.WithContext(logging.WithContext(r.Context(), logger))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		a.metrics.RecordRequest(endpoint, status)
		logger.Debug("API request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Debug("Failed to encode response", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, map[string]string{"error": message})
}
