package dashboard

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fundingboard/config"
	"fundingboard/internal/cache"
	"fundingboard/internal/metrics"
	"fundingboard/internal/session"
	"fundingboard/internal/store"
	"fundingboard/logger"
)

//go:embed templates/*.tmpl assets/*
var embeddedFS embed.FS

// Dependencies are the collaborators the dashboard serves from.
type Dependencies struct {
	Store    *store.Store
	Sessions *session.Manager
	// Cache is optional; nil renders every chart.
	Cache    cache.Cache
	CacheTTL time.Duration
}

// Server hosts the Gin-powered funding dashboard.
type Server struct {
	cfg           config.DashboardConfig
	log           *logger.Log
	store         *store.Store
	sessions      *session.Manager
	cache         cache.Cache
	cacheTTL      time.Duration
	hub           *hub
	limiter       *clientLimiter
	loc           *time.Location
	now           func() time.Time
	metricStore   *metricStore
	logStore      *logStore
	metricHandler metrics.MetricHandlerID
	httpServer    *http.Server
}

// NewServer constructs the dashboard server.
func NewServer(cfg config.DashboardConfig, deps Dependencies, log *logger.Log) (*Server, error) {
	if deps.Store == nil {
		return nil, errors.New("dashboard requires a store")
	}
	if deps.Sessions == nil {
		return nil, errors.New("dashboard requires a session manager")
	}
	if log == nil {
		log = logger.GetLogger()
	}

	cfg.Address = normalizeAddress(cfg.Address)

	if cfg.LogHistory <= 0 {
		cfg.LogHistory = 200
	}
	if cfg.MetricsHistory <= 0 {
		cfg.MetricsHistory = 200
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "fundingboard_session"
	}

	loc := time.Local
	if cfg.LabelTimezone != "" {
		l, err := time.LoadLocation(cfg.LabelTimezone)
		if err != nil {
			return nil, fmt.Errorf("invalid label timezone %q: %w", cfg.LabelTimezone, err)
		}
		loc = l
	}

	metricStore := newMetricStore(cfg.MetricsHistory)
	handlerID := metrics.RegisterMetricHandler(metricStore.handle)

	logStore := newLogStore(cfg.LogHistory)
	log.AddHook(logStore)

	server := &Server{
		cfg:           cfg,
		log:           log,
		store:         deps.Store,
		sessions:      deps.Sessions,
		cache:         deps.Cache,
		cacheTTL:      deps.CacheTTL,
		limiter:       newClientLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize),
		loc:           loc,
		now:           time.Now,
		metricStore:   metricStore,
		logStore:      logStore,
		metricHandler: handlerID,
	}

	if cfg.Websocket.Enabled {
		server.hub = newHub(cfg.Websocket.PingInterval, deps.Store.Meta, log)
		deps.Store.Subscribe(server.hub.broadcastReload)
	}

	return server, nil
}

// Run starts the dashboard HTTP server and blocks until the provided context is
// cancelled or the underlying HTTP server exits with an error.
func (s *Server) Run(ctx context.Context, appName string) error {
	if s == nil {
		return nil
	}

	defer s.cleanup()

	router, err := s.buildRouter(appName)
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.WithComponent("dashboard").WithFields(logger.Fields{"address": s.cfg.Address}).Info("dashboard listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if s.hub != nil {
			s.hub.close()
		}
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	if s.logStore != nil {
		s.logStore.close()
	}
	if s.hub != nil {
		s.hub.close()
	}
}

// Address reports the network address the dashboard server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter(appName string) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	// Allow running behind load balancers by trusting all proxies. Gin's
	// trusted proxy list can be overridden via GIN_TRUSTED_PROXIES.
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.Use(
		s.recovery(),
		requestID(),
		s.accessLog(),
		s.rateLimit(),
	)

	tmpl := template.Must(template.New("dashboard").ParseFS(embeddedFS, "templates/index.tmpl"))
	router.SetHTMLTemplate(tmpl)

	if assetsFS, err := fsSub("assets"); err == nil {
		router.StaticFS("/assets", http.FS(assetsFS))
	}

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.GET("/api/metrics", s.handleMetrics)
	router.GET("/api/logs", s.handleLogs)

	withSession := router.Group("/", s.sessionCookie())
	withSession.GET("/", func(c *gin.Context) { s.handleIndex(c, appName) })
	withSession.GET("/api/state", s.handleGetState)
	withSession.PUT("/api/state", s.handlePutState)
	withSession.GET("/api/coins", s.handleCoins)
	withSession.GET("/api/coins/:coin/history", s.handleHistory)
	withSession.GET("/api/coins/:coin/chart.png", s.handleChart)

	if s.hub != nil {
		router.GET("/ws", s.hub.handle)
	}

	return router, nil
}

func fsSub(path string) (fs.FS, error) {
	sub, err := fs.Sub(embeddedFS, path)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
