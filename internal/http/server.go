package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"neovest/internal/auth"
	"neovest/internal/cache"
	"neovest/internal/dashboard"
	applog "neovest/internal/log"
	"neovest/internal/middleware/ratelimit"
	"neovest/internal/middleware/security"
	"neovest/internal/middleware/trace"
	"neovest/internal/records"
	appweb "neovest/web"
)

const (
	signInPath = "/signin"

	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readyCheckTimeout = 5 * time.Second
	cacheCleanupEvery = 10 * time.Minute
	staticMaxAge      = 3600
)

// Pinger is implemented by backends that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the server to its collaborators. Auth, Dashboard, Writer and
// Querier are required.
type Options struct {
	Addr      string
	Auth      *auth.Service
	Dashboard *dashboard.Service
	Writer    records.Writer
	Querier   records.Querier
	Pinger    Pinger // optional

	Location          *time.Location   // time.Local when nil
	Now               func() time.Time // time.Now when nil
	SecureCookies     bool
	TrustedProxies    []string
	RequestsPerMinute int
	ExpenseListLimit  int

	Logger *applog.Logger
}

type appMetrics struct {
	expensesCreated atomic.Int64
	signIns         atomic.Int64
	started         time.Time
}

type Server struct {
	http.Server
	templates *template.Template

	auth      *auth.Service
	dashboard *dashboard.Service
	writer    records.Writer
	querier   records.Querier
	pinger    Pinger

	loc       *time.Location
	now       func() time.Time
	secure    bool
	listLimit int

	detector *security.Detector
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	caches   *cache.Manager

	logger     *applog.Logger
	structured *applog.StructuredLogger
	metrics    appMetrics

	unfollowAuth func()
	shutdownOnce sync.Once
}

// NewServer parses the embedded templates, builds the middleware chain and
// registers every route.
func NewServer(opts Options) (*Server, error) {
	if opts.Auth == nil || opts.Dashboard == nil || opts.Writer == nil || opts.Querier == nil {
		return nil, errors.New("http server: auth, dashboard, writer and querier are required")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.ExpenseListLimit <= 0 {
		opts.ExpenseListLimit = 50
	}

	detector, err := security.NewDetector(opts.TrustedProxies...)
	if err != nil {
		return nil, fmt.Errorf("configure trusted proxies: %w", err)
	}

	t, err := template.New("").Funcs(templateFuncs(opts.Location)).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	logger := opts.Logger.WithComponent(applog.ComponentHTTP)
	s := &Server{
		templates:  t,
		auth:       opts.Auth,
		dashboard:  opts.Dashboard,
		writer:     opts.Writer,
		querier:    opts.Querier,
		pinger:     opts.Pinger,
		loc:        opts.Location,
		now:        opts.Now,
		secure:     opts.SecureCookies,
		listLimit:  opts.ExpenseListLimit,
		detector:   detector,
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RequestsPerMinute}),
		tracer:     trace.NewMiddleware(opts.Logger, detector.ExtractClientIP),
		caches:     cache.NewManager(opts.Logger),
		logger:     logger,
		structured: applog.NewStructuredLogger(logger),
	}
	s.metrics.started = opts.Now()

	s.caches.Register(opts.Dashboard)
	s.caches.StartCleanup(cacheCleanupEvery)
	s.unfollowAuth = opts.Dashboard.FollowAuth(opts.Auth)

	s.Server = http.Server{
		Addr:         opts.Addr,
		Handler:      s.routes(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(staticMaxAge)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err.Error())
	}

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	public := func(h http.HandlerFunc) http.Handler {
		return security.NoStore(s.auth.OptionalUser(h))
	}
	mux.Handle(signInPath, public(s.handleSignIn))
	mux.Handle("/signup", public(s.handleSignUp))
	mux.Handle("/signout", public(s.handleSignOut))

	requireUser := s.auth.RequireUser(signInPath)
	private := func(h http.HandlerFunc) http.Handler {
		return security.NoStore(requireUser(h))
	}
	mux.Handle("/", private(s.handleIndex))
	mux.Handle("/ui/stats", private(s.handleStatsPartial))
	mux.Handle("/ui/categories", private(s.handleCategoriesPartial))
	mux.Handle("/ui/activity", private(s.handleActivityPartial))
	mux.Handle("/ui/refresh", private(s.handleRefresh))
	mux.Handle("/expenses", private(s.handleExpenses))
	mux.Handle("/api/dashboard", private(s.handleAPIDashboard))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited, http.MethodPost)

	var h http.Handler = mux
	h = limit(h)
	h = s.detector.Middleware(h)
	h = headers.Middleware(h)
	h = s.tracer.Middleware(h)
	h = applog.Middleware(s.logger)(h)
	return h
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path,
		applog.FieldComponent, applog.ComponentRateLimit)
	ErrorResponse(http.StatusTooManyRequests, "Too many requests. Please slow down.").
		TriggerErrorNotification("Too many requests. Please try again in a minute.").
		Write(w)
}

// Shutdown stops background cleanup, detaches from auth events and drains
// the HTTP server. It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		if s.unfollowAuth != nil {
			s.unfollowAuth()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// render executes a named template with a 200 status.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	s.renderStatus(w, r, http.StatusOK, name, data)
}

// renderStatus buffers the template so a failure can still become a clean 500.
func (s *Server) renderStatus(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.structured.LogError(r.Context(), "Template render failed", err,
			applog.ComponentTemplate, applog.OpRender,
			applog.NewFields().WithErrorType(applog.ErrorTypeInternal))
		InternalServerError("Something went wrong rendering this page").Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
