package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sentinel-core/internal/engine"
	"sentinel-core/internal/events"
	"sentinel-core/internal/monitor"
)

// Server wires the status surface and the operator routes around the engine.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	Engine    engine.Service
	Metrics   *monitor.SystemMetrics
	JWTSecret string
}

func NewServer(bus *events.Bus, svc engine.Service, metrics *monitor.SystemMetrics, jwtSecret string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())         // Panic recovery (first)
	r.Use(RequestIDMiddleware())  // Request ID tracking
	r.Use(RequestLogger(metrics)) // Request logging (after ID is set)
	r.Use(RateLimitMiddleware())  // Rate limiting
	r.Use(TimeoutMiddleware(10 * time.Second))
	r.Use(CORSMiddleware()) // CORS (last before routes)

	s := &Server{
		Router:    r,
		Bus:       bus,
		Engine:    svc,
		Metrics:   metrics,
		JWTSecret: jwtSecret,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.Router.Group("/api")
	{
		api.GET("/health", s.health)
		api.GET("/risk", s.getRisk)
		api.GET("/metrics", s.getMetrics)
		api.GET("/trade-history", s.getTradeHistory)
		api.GET("/strategies", s.getStrategies)
		api.GET("/assets", s.getAssets)
		api.GET("/live", s.getLive)

		admin := api.Group("/admin")
		admin.Use(AuthMiddleware(s.JWTSecret))
		{
			admin.POST("/killswitch/reset", s.resetKillSwitch)
			admin.POST("/killswitch/activate", s.activateKillSwitch)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	st := s.Engine.SystemStatus()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"killSwitch":  st.KillSwitch,
		"autoTrading": st.AutoTrading,
		"timestamp":   st.ServerTime,
	})
}

// HTTPServer returns an http.Server for addr so the caller controls shutdown.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
