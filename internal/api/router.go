package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Pinger is checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Router struct {
	Engine *gin.Engine
}

// NewRouter wires the public health and metrics endpoints and the
// authenticated mail API.
func NewRouter(mailHandler *MailHandler, jwtSecret, serviceName string, checks map[string]Pinger, log *zap.Logger) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(serviceName), TraceMiddleware(), AccessLog(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", readyHandler(checks))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.POST("/transform", mailHandler.Transform)
		auth.POST("/batch", mailHandler.Batch)
		auth.GET("/messages/:id", mailHandler.GetMessage)
		auth.PUT("/threads/:id/category", mailHandler.SetThreadCategory)
		auth.PUT("/accounts", mailHandler.SaveAccount)
	}

	return &Router{Engine: r}
}

func readyHandler(checks map[string]Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

func (r *Router) Handler() http.Handler {
	return r.Engine
}
