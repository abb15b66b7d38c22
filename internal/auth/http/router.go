package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/aussiebroadwan/portal/api/auth" // Swagger docs
	"github.com/aussiebroadwan/portal/internal/auth/domain"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

// Reconciler is the part of service.AuthService the handlers drive.
type Reconciler interface {
	Login(ctx context.Context, email, password string) bool
	Logout(ctx context.Context)
	State() domain.AuthState
	Ready() bool
}

// Pinger checks the profile store connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	limits       httpx.Limits

	store      Pinger
	reconciler Reconciler
	gatherer   prometheus.Gatherer
	keys       KeyPublisher
}

func NewRouter(
	buildVersion string,
	st Pinger,
	reconciler Reconciler,
	gatherer prometheus.Gatherer,
	limits httpx.Limits,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		limits:       limits,
		store:        st,
		reconciler:   reconciler,
		gatherer:     gatherer,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Recover,
	}

	return r
}

// PublishKeys serves keys at /.well-known/jwks.json. Call before ApplyRoutes.
func (r *Router) PublishKeys(keys KeyPublisher) {
	r.keys = keys
}

func (r *Router) ApplyRoutes() {
	r.registerSession()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Portal Auth Agent API
//	@version		0.1.0
//	@description	Reconciles the identity provider's session with the portal's profile store.
//	@description
//	@description	The agent holds one session. Login and logout drive it; GET /v1/session reads it.
//
//	@contact.name	AussieBroadWAN Team
//	@contact.url	https://github.com/aussiebroadwan/portal
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host			localhost:8080
//	@BasePath		/
//
//	@schemes		http https
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerSession() {
	h := &SessionHandler{Reconciler: r.reconciler}

	// POST /login - strict rate limit (credential submission)
	r.Mux.Handle("POST /v1/session/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(r.limits.Strict),
		),
	)

	r.Mux.Handle("POST /v1/session/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(r.limits.Moderate),
		),
	)

	r.Mux.Handle("GET /v1/session",
		httpx.Chain(http.HandlerFunc(h.HandleGet),
			httpx.RateLimitByIP(r.limits.Lenient),
		),
	)
}

func (r *Router) registerSystem() {
	// Probes and scrapes are not rate limited.
	info := probeInfo{started: r.startTime, version: r.buildVersion}
	r.Mux.Handle("GET /livez", LivezHandler(info))
	r.Mux.Handle("GET /readyz", ReadyzHandler(info, r.store, r.reconciler))
	r.Mux.Handle("GET /metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))

	if r.keys != nil {
		r.Mux.Handle("GET /.well-known/jwks.json",
			httpx.Chain(JWKSHandler(r.keys), httpx.RateLimitByIP(r.limits.Lenient)),
		)
	}
}
