// Package server assembles the portal HTTP surface: the live page, its
// client assets, the script download, health and the unlock backend.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/dise/partnerportal/client"
	"github.com/dise/partnerportal/internal/config"
	"github.com/dise/partnerportal/internal/portal"
	"github.com/dise/partnerportal/internal/provisioning"
	"github.com/dise/partnerportal/internal/signageos"
	"github.com/dise/partnerportal/internal/toast"
	"github.com/dise/partnerportal/internal/unlock"
	"github.com/dise/partnerportal/internal/views"
	"github.com/dise/partnerportal/pkg/audit"
	"github.com/dise/partnerportal/pkg/health"
	"github.com/dise/partnerportal/pkg/limits"
	"github.com/dise/partnerportal/pkg/logging"
	"github.com/dise/partnerportal/pkg/router"
	"github.com/dise/partnerportal/pkg/transport"
)

// Paths served besides the live page.
const (
	AssetsPath = "/_live/"
	HealthPath = "/health"
	ScriptPath = "/tools/signageos-chromeos/script"
)

const limiterCleanup = time.Minute

// Options carries dependencies that tests replace.
type Options struct {
	Version string
	Logger  logging.Logger
	// SignageOS is the HTTP client for the signageOS API.
	SignageOS *http.Client
	// UnlockDoer sends the portal's unlock requests.
	UnlockDoer unlock.Doer
	// Audit overrides the rotating audit file.
	Audit audit.Logger
	Clock toast.Clock
}

// Server is the portal HTTP server.
type Server struct {
	cfg     *config.Config
	log     logging.Logger
	live    *router.Router
	limiter *limits.TokenBucket
	audit   audit.Logger
	health  *health.Checker
	router  chi.Router
	http    *http.Server
}

// New wires the server from cfg. It opens the audit log when the unlock
// backend is enabled.
func New(cfg *config.Config, opts Options) (*Server, error) {
	log := opts.Logger
	if log == nil {
		log = logging.DefaultLogger
	}

	s := &Server{
		cfg: cfg,
		log: log,
		live: router.New(router.Options{
			MaxSessions: cfg.Server.MaxSessions,
			WebSocket:   &transport.WebSocketConfig{AllowedOrigins: cfg.Server.CORSOrigins},
			Logger:      log,
		}),
		health: health.NewChecker(opts.Version),
	}
	s.health.AddCriticalCheck("sessions",
		health.SessionCapacityCheck(s.live.Sessions().Count, cfg.Server.MaxSessions), time.Second)

	var unlockHandler *signageos.Handler
	if cfg.SignageOS.Enabled {
		h, err := s.buildBackend(opts)
		if err != nil {
			return nil, err
		}
		unlockHandler = h
	}

	var unlockClient *unlock.Client
	if endpoint := cfg.UnlockEndpoint(); endpoint != "" {
		unlockClient = unlock.NewClient(endpoint, opts.UnlockDoer)
	}

	s.router = s.buildRouter(portal.Options{
		Registry:  views.Default(),
		Unlock:    unlockClient,
		CurlBase:  cfg.Unlock.CurlBase,
		Assets:    AssetsPath,
		ScriptURL: ScriptPath,
		Clock:     opts.Clock,
		Logger:    log,
	}, unlockHandler)

	s.http = &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) buildBackend(opts Options) (*signageos.Handler, error) {
	api, err := signageos.NewClient(signageos.Config{
		BaseURL:  s.cfg.SignageOS.BaseURL,
		XAuth:    s.cfg.SignageOS.XAuth,
		APIKey:   s.cfg.SignageOS.APIKey,
		Timeout:  s.cfg.SignageOS.Timeout,
		PageSize: s.cfg.SignageOS.PageSize,
	}, opts.SignageOS)
	if err != nil {
		return nil, err
	}

	s.audit = opts.Audit
	if s.audit == nil {
		rl, err := audit.NewRotatingLogger(audit.RotationConfig{
			Path:       s.cfg.Audit.Path,
			MaxBytes:   s.cfg.Audit.MaxBytes,
			MaxBackups: s.cfg.Audit.MaxBackups,
		})
		if err != nil {
			return nil, fmt.Errorf("opening audit log: %w", err)
		}
		s.audit = rl

		path := s.cfg.Audit.Path
		s.health.AddCheck("audit_log", health.ErrorCheck(func() error {
			return audit.CheckWritable(path)
		}), time.Second)
	}

	s.limiter = limits.NewTokenBucket(s.cfg.RateLimit.Rate, s.cfg.RateLimit.Burst)
	return signageos.NewHandler(api, s.audit), nil
}

func (s *Server) buildRouter(opts portal.Options, unlockHandler *signageos.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if s.cfg.Server.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(logging.RequestLogger(s.log))
	r.Use(middleware.Recoverer)

	origins := s.cfg.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Method(http.MethodGet, "/", s.live.Live(portal.Factory(opts)))
	r.Handle(AssetsPath+"*", http.StripPrefix(AssetsPath, client.Handler()))
	r.Method(http.MethodGet, HealthPath, s.health.Handler())
	r.Get(ScriptPath, provisioning.Handler().ServeHTTP)
	r.Head(ScriptPath, provisioning.Handler().ServeHTTP)

	if unlockHandler != nil {
		r.With(limits.RateLimitMiddleware(s.limiter, limits.IPKeyFunc, unlockHandler.LimitExceeded())).
			Post(unlock.Path, unlockHandler.ServeHTTP)
	}
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Live returns the live session router.
func (s *Server) Live() *router.Router { return s.live }

// ListenAndServe listens on the configured address and serves until
// Shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln. Session expiry and limiter cleanup run
// alongside until the listener stops.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.live.Run(gctx) })
	if s.limiter != nil {
		g.Go(func() error { return s.limiter.Run(gctx, limiterCleanup) })
	}
	g.Go(func() error {
		defer cancel()
		s.log.Info("portal listening", logging.String("address", ln.Addr().String()))
		if err := s.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return g.Wait()
}

// Shutdown stops accepting HTTP requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// ShutdownSessions terminates the live sessions.
func (s *Server) ShutdownSessions(ctx context.Context) error {
	return s.live.Shutdown(ctx)
}

// Close closes the audit log.
func (s *Server) Close(context.Context) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Close()
}
