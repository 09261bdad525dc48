// Package httpapi exposes a gridpath.Service over HTTP and WebSocket.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pdrpinto/gridpath"
)

const defaultResultTTL = 5 * time.Minute

// Reloader regenerates the service's grid from its configuration source and
// waits for the result.
type Reloader interface {
	Reload(ctx context.Context) (*gridpath.Grid, uint64, error)
}

type Options struct {
	Logger *slog.Logger
	// ResultTTL is how long finished requests stay pollable.
	ResultTTL time.Duration
	// Reloader backs POST /api/grid/regenerate. Without one the endpoint
	// answers 501.
	Reloader Reloader
	// Gatherer backs /metrics. The default is prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

type Server struct {
	service  *gridpath.Service
	logger   *slog.Logger
	reloader Reloader
	requests *registry
	upgrader websocket.Upgrader
	engine   *gin.Engine
}

func New(service *gridpath.Service, options Options) *Server {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.ResultTTL <= 0 {
		options.ResultTTL = defaultResultTTL
	}
	if options.Gatherer == nil {
		options.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		service:  service,
		logger:   options.Logger,
		reloader: options.Reloader,
		requests: newRegistry(options.ResultTTL),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.logRequests())

	api := engine.Group("/api")
	api.POST("/paths", s.createPath)
	api.GET("/paths/:id", s.getPath)
	api.POST("/snap", s.snap)
	api.GET("/grid", s.describeGrid)
	api.GET("/grid/nodes", s.gridNodes)
	api.POST("/grid/regenerate", s.regenerate)
	api.GET("/ws", s.streamPaths)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(options.Gatherer, promhttp.HandlerOpts{})))

	s.engine = engine
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		c.Next()
		s.logger.Debug("http_request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(began)),
		)
	}
}
