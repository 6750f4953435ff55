package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	"github.com/mandir-erp/mandir-ledger/internal/observability"
	"github.com/mandir-erp/mandir-ledger/internal/platform/httpx"
	internalShared "github.com/mandir-erp/mandir-ledger/internal/shared"
)

// IdempotencyHeader carries the client's request key on writes.
const IdempotencyHeader = "Idempotency-Key"

// SessionLoader resolves the caller's session.
type SessionLoader interface {
	Load(ctx context.Context, r *http.Request) (internalShared.Session, error)
}

// IdempotencyGuard claims request keys.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Release(ctx context.Context, key, module string) error
}

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger      *slog.Logger
	Config      *Config
	Sessions    SessionLoader
	Idempotency IdempotencyGuard
	Metrics     *observability.Metrics
}

// MiddlewareStack installs the common chain for every route.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "no-referrer",
		SSLRedirect:        cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:      cfg.Config == nil || !cfg.Config.IsProduction(),
	})

	timeout := 30 * time.Second
	limit := 120
	if cfg.Config != nil {
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		if cfg.Config.RateLimit > 0 {
			limit = cfg.Config.RateLimit
		}
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
		httprate.Limit(limit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	return middlewares
}

// ActorMiddleware puts the session's actor on the request context and rejects
// requests without one.
func ActorMiddleware(sessions SessionLoader, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessions.Load(r.Context(), r)
			if err != nil {
				if !errors.Is(err, internalShared.ErrNoSession) {
					logger.Error("load session", slog.Any("error", err))
					httpx.RespondError(w, shared.Persistence("load session", err))
					return
				}
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			ctx := internalShared.ContextWithActor(r.Context(), sess.Actor())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdempotencyMiddleware claims the Idempotency-Key of a write once per actor and
// route. A replayed key gets 409. The claim is released when the request fails,
// so the client may retry with the same key.
func IdempotencyMiddleware(guard IdempotencyGuard, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if key == "" || r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			actor, _ := internalShared.ActorFromContext(r.Context())
			scoped := strconv.FormatInt(actor.ID, 10) + ":" + key
			module := r.Method + " " + r.URL.Path
			if err := guard.CheckAndInsert(r.Context(), scoped, module); err != nil {
				if errors.Is(err, internalShared.ErrIdempotencyConflict) {
					httpx.Problem(w, http.StatusConflict, "Duplicate Request", "idempotency key already used", string(shared.KindAlreadyProcessed))
					return
				}
				logger.Error("claim idempotency key", slog.Any("error", err))
				httpx.RespondError(w, shared.Persistence("idempotency", err))
				return
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if ww.Status() >= http.StatusBadRequest {
				if err := guard.Release(context.WithoutCancel(r.Context()), scoped, module); err != nil {
					logger.Warn("release idempotency key", slog.Any("error", err))
				}
			}
		})
	}
}
