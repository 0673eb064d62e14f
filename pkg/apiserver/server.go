package apiserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/retailhub/hybridsync/pkg/apiserver/handlers"
	"github.com/retailhub/hybridsync/pkg/apiserver/middleware"
	"github.com/retailhub/hybridsync/pkg/auth"
	"github.com/retailhub/hybridsync/pkg/config"
)

type Server struct {
	router *gin.Engine
	engine handlers.SyncEngine
	tokens *auth.TokenManager
	cfg    *config.Config
	logger *zap.Logger
}

func NewServer(engine handlers.SyncEngine, tokens *auth.TokenManager, cfg *config.Config, logger *zap.Logger) *Server {
	s := &Server{
		engine: engine,
		tokens: tokens,
		cfg:    cfg,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/sync")
	{
		api.Use(middleware.RateLimit(s.cfg.Server.RateLimit, s.cfg.Server.RateBurst))
		api.Use(middleware.Auth(s.tokens, auth.ScopeSync))

		syncHandler := handlers.NewSyncHandler(s.engine, s.logger, s.cfg.Sync.Relay.BatchSize, s.cfg.Sync.DefaultLookbackMinutes)
		api.POST("/events", syncHandler.Enqueue)
		api.POST("/dispatch", syncHandler.Dispatch)
		api.POST("/resolve/:id", syncHandler.Resolve)
		api.GET("/status", syncHandler.List)
		api.GET("/status/summary", syncHandler.Summary)
		api.GET("/status/hybrid", syncHandler.Hybrid)
		api.GET("/status/breakdown", syncHandler.Breakdown)
		api.GET("/status/forecast", syncHandler.Forecast)
		api.GET("/entries/:id/attempts", syncHandler.Attempts)
	}

	s.router = r
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
