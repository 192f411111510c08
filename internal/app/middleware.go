package app

import (
	"crypto/sha256"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
	"golang.org/x/crypto/bcrypt"

	"github.com/atmos-esg/atmos/internal/observability"
	"github.com/atmos-esg/atmos/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the Atmos middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return cfg.Metrics.Middleware(next)
		})
	}
	return middlewares
}

// TokenAuth guards API routes with a single bearer token compared against a
// bcrypt hash. The upstream gateway performs real authentication and forwards
// the acting user in X-Actor-ID.
type TokenAuth struct {
	logger    *slog.Logger
	tokenHash string

	mu      sync.Mutex
	granted map[[32]byte]struct{}
}

// NewTokenAuth constructs the token middleware.
func NewTokenAuth(logger *slog.Logger, tokenHash string) *TokenAuth {
	return &TokenAuth{logger: logger, tokenHash: tokenHash, granted: make(map[[32]byte]struct{})}
}

// Middleware verifies the Authorization header and stores the actor id.
func (a *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" || !a.verify(token) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		ctx := r.Context()
		if actor := strings.TrimSpace(r.Header.Get("X-Actor-ID")); actor != "" {
			ctx = shared.ContextWithActor(ctx, actor)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// verify memoises successful bcrypt comparisons so the cost factor is paid
// once per token value, not per request.
func (a *TokenAuth) verify(token string) bool {
	sum := sha256.Sum256([]byte(token))
	a.mu.Lock()
	_, ok := a.granted[sum]
	a.mu.Unlock()
	if ok {
		return true
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.tokenHash), []byte(token)); err != nil {
		return false
	}
	a.mu.Lock()
	a.granted[sum] = struct{}{}
	a.mu.Unlock()
	return true
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
