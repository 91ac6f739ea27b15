package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nftlend/core"
	"nftlend/gateway/auth"
	"nftlend/gateway/middleware"
)

// Rate limit keys applied to each route group.
const (
	LimitRead  = "read"
	LimitWrite = "write"
	LimitAdmin = "admin"
)

var ErrNodeRequired = errors.New("routes: node required")

type Config struct {
	Node          *core.Node
	Index         EventIndex
	Logger        *slog.Logger
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
}

// New builds the HTTP surface of a node. Reads are public, writes need an
// authenticated actor and registry administration also needs the admin
// scope.
func New(cfg Config) (http.Handler, error) {
	if cfg.Node == nil {
		return nil, ErrNodeRequired
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	authn := cfg.Authenticator
	if authn == nil {
		authn = middleware.NewAuthenticator(middleware.AuthConfig{}, logger)
	}
	srv := &server{node: cfg.Node, index: cfg.Index, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORS))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(g chi.Router) {
			srv.use(g, cfg, "read", LimitRead)
			srv.mountLoanQueries(g)
			srv.mountRefinanceQueries(g)
			srv.mountAssetQueries(g)
			srv.mountAdminQueries(g)
			srv.mountAccountQueries(g)
		})
		v1.Group(func(g chi.Router) {
			g.Use(authn.Middleware())
			srv.use(g, cfg, "write", LimitWrite)
			srv.mountLoans(g)
			srv.mountRefinance(g)
			srv.mountAssets(g)
			srv.mountOwnership(g)
			srv.mountAccounts(g)
		})
		v1.Group(func(g chi.Router) {
			g.Use(authn.Middleware(auth.ScopeAdmin))
			srv.use(g, cfg, "admin", LimitAdmin)
			srv.mountAdmin(g)
		})
	})
	return otelhttp.NewHandler(r, "nftlend-gateway"), nil
}

// use installs the per-group rate limit and observability middleware.
func (s *server) use(g chi.Router, cfg Config, name, limitKey string) {
	if cfg.RateLimiter != nil {
		g.Use(cfg.RateLimiter.Middleware(limitKey))
	}
	if cfg.Observability != nil {
		g.Use(cfg.Observability.Middleware(name))
	}
}
