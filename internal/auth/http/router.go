package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/keyhouse/internal/auth/domain"
	"github.com/aussiebroadwan/keyhouse/internal/auth/service"
	"github.com/aussiebroadwan/keyhouse/pkg/authsdk"
	"github.com/aussiebroadwan/keyhouse/pkg/httpx"
	"github.com/aussiebroadwan/keyhouse/pkg/slogx"

	_ "github.com/aussiebroadwan/keyhouse/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	engine       *service.Engine
	decoder      httpx.TokenDecoder
	db           Pinger
	kv           KVStater
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	cookies      cookieJar

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// NewRouter builds a router. Cookies are marked Secure unless debug is set.
func NewRouter(
	engine *service.Engine,
	decoder httpx.TokenDecoder,
	db Pinger,
	kvs KVStater,
	buildVersion string,
	debug bool,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slogx.Discard()
	}

	r := &Router{
		Mux:          http.NewServeMux(),
		engine:       engine,
		decoder:      decoder,
		db:           db,
		kv:           kvs,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		cookies: cookieJar{
			secure: !debug,
			maxAge: engine.RefreshTTL(),
		},
	}

	// Request logging first, then the gate for protected prefixes
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Gate(decoder, authsdk.PathMe, authsdk.PathThrottle),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Keyhouse Authentication Service API
//	@version		0.1.0
//	@description	Authorization code flow with PKCE, rotating refresh tokens bound to a csrf token, and HMAC-signed access tokens.
//	@description
//	@description				Refresh and csrf tokens travel as cookies scoped to /v1/auth/refresh.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/keyhouse
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	// Credential endpoints - strict rate limit by IP
	r.Mux.Handle("POST "+authsdk.PathRegistration,
		httpx.Chain(&RegistrationHandler{Engine: r.engine},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST "+authsdk.PathCode,
		httpx.Chain(&CodeHandler{Engine: r.engine},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST "+authsdk.PathToken,
		httpx.Chain(&TokenHandler{Engine: r.engine, cookies: r.cookies},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// Token maintenance - moderate rate limit
	r.Mux.Handle("POST "+authsdk.PathRefresh,
		httpx.Chain(&RefreshHandler{Engine: r.engine, cookies: r.cookies},
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST "+authsdk.PathRevoke,
		httpx.Chain(&RevokeHandler{Engine: r.engine, cookies: r.cookies},
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// Gated by the global middleware; limited per subject
	r.Mux.Handle("GET "+authsdk.PathMe,
		httpx.Chain(&MeHandler{Engine: r.engine},
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		),
	)

	// Admin only
	throttle := httpx.Chain(&ThrottleHandler{Engine: r.engine},
		httpx.RequirePrivilege(domain.PrivilegeAdmin),
		httpx.RateLimitBySubject(httpx.ModerateLimit),
	)
	r.Mux.Handle("GET "+authsdk.PathThrottle+"{username}", throttle)
	r.Mux.Handle("DELETE "+authsdk.PathThrottle+"{username}", throttle)
}

func (r *Router) registerSystem() {
	// Health check endpoints - public rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.db, r.kv),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)

	if r.Metrics != nil {
		r.Mux.Handle("GET /metrics", r.Metrics)
	}
}
