// Package http serves the contract metadata endpoint browsers and the CLI
// connect through.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"moff.io/crowdfund/internal/config"
	"moff.io/crowdfund/pkg/errors"
	"moff.io/crowdfund/pkg/log"
	"moff.io/crowdfund/pkg/log/middleware"
)

type Server struct {
	source  Source
	limiter Limiter

	listen         string
	origins        []string
	requestTimeout time.Duration
	perMinute      int

	srv *http.Server
}

// NewServer serves source. A nil limiter disables rate limiting.
func NewServer(source Source, limiter Limiter) *Server {
	return &Server{source: source, limiter: limiter, listen: ":5000"}
}

// Apply implements starter.Configurable.
func (s *Server) Apply(conf *config.Configuration) {
	m := conf.MetadataServer
	s.listen = m.Listen
	s.origins = m.AllowedOrigins
	s.requestTimeout = m.RequestTimeout
	s.perMinute = m.RateLimitPerMinute
}

// Handler builds the gin engine.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(middleware.RecoveredHTTPLog(), middleware.CORS(s.origins...), middleware.TimeoutHTTP(s.requestTimeout))
	api := router.Group("/api")
	if s.limiter != nil && s.perMinute > 0 {
		api.Use(rateLimit(s.limiter, s.perMinute))
	}
	api.GET("/contracts", s.getContracts)
	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func (s *Server) getContracts(ctx *gin.Context) {
	resp, err := s.source.Contract(ctx.Request.Context())
	if err != nil {
		log.Errorf("load contract metadata: %v", err)
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "contract metadata unavailable"})
		return
	}
	if !resp.Complete() {
		log.Warnf("contract details are missing, address=%q abi=%d bytes", resp.ContractAddress, len(resp.ContractABI))
	}
	ctx.JSON(http.StatusOK, resp)
}

// Start implements starter.Startable. It returns once the listener stops.
func (s *Server) Start(ctx context.Context) {
	s.srv = &http.Server{Addr: s.listen, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	log.Infof("Metadata server listening on %s", s.listen)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error(errors.WrapAndReport(err, "metadata server"))
	}
}

// Stop implements starter.Stopable.
func (s *Server) Stop() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Warnf("shutdown metadata server: %v", err)
	}
}
