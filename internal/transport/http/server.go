package feedhttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"feedmux/internal/feed"
	"feedmux/internal/logger"
	"feedmux/internal/providers"
	"feedmux/internal/store/eventlog"
)

// Server exposes the aggregator over HTTP: latest price and history reads,
// provider health, a newline-JSON live stream and a rendered price chart.
type Server struct {
	addr   string
	router *gin.Engine
}

type ServerConfig struct {
	Addr     string
	Agg      *feed.Aggregator
	Events   *eventlog.Store
	Registry *providers.Registry
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Agg == nil {
		return nil, errors.New("feed http server requires an aggregator")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &handlers{agg: cfg.Agg, events: cfg.Events, registry: cfg.Registry}
	api := router.Group("/api/feed")
	{
		api.GET("/symbols", h.symbols)
		api.GET("/price/:symbol", h.price)
		api.GET("/history/:symbol", h.history)
		api.GET("/providers/:symbol", h.providerStates)
		api.GET("/events", h.eventLog)
		api.GET("/stream/:symbol", h.stream)
	}
	router.GET("/chart/:symbol", h.chart)

	return &Server{addr: cfg.Addr, router: router}, nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, status, client, dur)
	}
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start runs the HTTP server until ctx is cancelled or serving fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }
